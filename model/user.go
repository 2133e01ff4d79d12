package model

import "gorm.io/datatypes"

/*
User is a canonical cross platform identity

Id: primary key, auto generated
Name: display name, the merge key
DiscordUsername, GithubUsername, TwitterUsername: per platform usernames,
each nullable
Data: payload copied from the platform user the row was created from
DuplicateOfID:
DuplicateOf: canonical user this row was merged into, "belongs-to" self relation

A user with a null DuplicateOfID is canonical. A canonical user plus every row
pointing at it form one identity group.
*/
type User struct {
	Id              uint    `gorm:"primaryKey"`
	Name            *string `gorm:"index"`
	DiscordUsername *string `gorm:"index"`
	GithubUsername  *string `gorm:"index"`
	TwitterUsername *string `gorm:"index"`
	Data            datatypes.JSON
	DuplicateOfID   *uint `gorm:"index"`
	DuplicateOf     *User `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
}
