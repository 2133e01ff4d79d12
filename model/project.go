package model

import "time"

/*
Project is a logical grouping of crawl targets

Id: primary key, auto generated
CreatedAt: time when entity is created
Name: display name of the project

Jobs, sources and users hang off a project. Users are attached through
ProjectMember since one canonical user can show up in many projects.
*/
type Project struct {
	Id        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	Name      string `gorm:"not null"`
}

/*
ProjectMember is the many-to-many join of User and Project

Id: primary key
UserID: canonical or duplicate user
ProjectID: project the user was observed in

(UserID, ProjectID) is unique.
*/
type ProjectMember struct {
	Id        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"not null;index:,unique,composite:membership"`
	ProjectID uint `gorm:"not null;index:,unique,composite:membership"`
}
