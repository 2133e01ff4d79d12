package model

/*

Sources are crawl targets under a Project. Their ids are platform native and
never generated locally, so discovering the same target twice resolves to one
row.

DiscordGuild groups channels, a DiscordChannel is what actually gets crawled.
GithubRepo is identified by the GitHub repository id.
TwitterHandle is identified by the numeric Twitter user id behind the handle.

*/

type DiscordGuild struct {
	Id        int64            `gorm:"primaryKey;autoIncrement:false"`
	Name      string           `gorm:"not null"`
	ProjectID uint             `gorm:"not null;index"`
	Project   Project          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Channels  []DiscordChannel `gorm:"foreignKey:GuildID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

type DiscordChannel struct {
	Id      int64  `gorm:"primaryKey;autoIncrement:false"`
	Name    string `gorm:"not null"`
	GuildID int64  `gorm:"not null;index"`
}

type GithubRepo struct {
	Id        int64   `gorm:"primaryKey;autoIncrement:false"`
	Owner     string  `gorm:"not null"`
	Name      string  `gorm:"not null"`
	ProjectID uint    `gorm:"not null;index"`
	Project   Project `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

type TwitterHandle struct {
	Id        int64   `gorm:"primaryKey;autoIncrement:false"`
	Handle    string  `gorm:"not null"`
	ProjectID uint    `gorm:"not null;index"`
	Project   Project `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}
