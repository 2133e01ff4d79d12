package model

type DiscordMessage struct {
	BaseMessage
	ChannelID int64 `gorm:"not null;index"`
}

func (DiscordMessage) TableName() string { return "discord_messages" }

type DiscordReaction struct{ BaseReaction }

func (DiscordReaction) TableName() string { return "discord_reactions" }

type DiscordThread struct{ BaseThread }

func (DiscordThread) TableName() string { return "discord_threads" }

type DiscordUser struct{ BasePlatformUser }

func (DiscordUser) TableName() string { return "discord_users" }

// DiscordEvent is a gateway event saved by the live listener. Gateway events
// carry no stable id and are not tied to a job.
type DiscordEvent struct {
	Id int64 `gorm:"primaryKey"`
	BaseEvent
}

func (DiscordEvent) TableName() string { return "discord_events" }

func (e *DiscordEvent) KeyConditions() map[string]interface{} {
	return map[string]interface{}{"id": e.Id}
}
