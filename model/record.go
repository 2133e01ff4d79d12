package model

import (
	"time"

	"gorm.io/datatypes"
)

// The base records below are embedded by every per-platform table. Promoted
// columns live on the struct, everything else a platform returns is kept in
// Data untouched.

/*
BaseMessage is a piece of content authored by a platform user

Id: platform native id, globally unique per platform
JobID: job that first wrote the row
UserID: platform native id of the author
Message: text content
Timestamp: when the message was authored or last edited
Data: raw platform payload
*/
type BaseMessage struct {
	Id        int64     `gorm:"primaryKey;autoIncrement:false"`
	JobID     uint      `gorm:"not null;index"`
	UserID    int64     `gorm:"not null;index"`
	Message   string    `gorm:"not null"`
	Timestamp time.Time `gorm:"not null;index"`
	Data      datatypes.JSON
}

func (m *BaseMessage) KeyConditions() map[string]interface{} {
	return map[string]interface{}{"id": m.Id}
}

func (m *BaseMessage) Payload() datatypes.JSON { return m.Data }

func (m *BaseMessage) SetPayload(data datatypes.JSON) { m.Data = data }

/*
BaseReaction is a user reacting to a message

Id: surrogate key
(MessageID, UserID, Reaction): natural key, unique
*/
type BaseReaction struct {
	Id        uint      `gorm:"primaryKey"`
	MessageID int64     `gorm:"not null;index:,unique,composite:reaction_key"`
	UserID    int64     `gorm:"not null;index:,unique,composite:reaction_key"`
	Reaction  string    `gorm:"not null;index:,unique,composite:reaction_key"`
	JobID     uint      `gorm:"not null;index"`
	Timestamp time.Time `gorm:"not null"`
	Data      datatypes.JSON
}

func (r *BaseReaction) KeyConditions() map[string]interface{} {
	return map[string]interface{}{
		"message_id": r.MessageID,
		"user_id":    r.UserID,
		"reaction":   r.Reaction,
	}
}

func (r *BaseReaction) Payload() datatypes.JSON { return r.Data }

func (r *BaseReaction) SetPayload(data datatypes.JSON) { r.Data = data }

/*
BaseRelation is a directed typed edge between two platform node ids, usually
user to user or user to repo

Id: surrogate key
(FromNodeID, ToNodeID, RelationType): natural key, unique
*/
type BaseRelation struct {
	Id           uint         `gorm:"primaryKey"`
	FromNodeID   int64        `gorm:"not null;index:,unique,composite:relation_edge"`
	ToNodeID     int64        `gorm:"not null;index:,unique,composite:relation_edge"`
	RelationType RelationType `gorm:"type:varchar(25);not null;index:,unique,composite:relation_edge"`
	JobID        uint         `gorm:"not null;index"`
	Timestamp    time.Time    `gorm:"not null"`
	Data         datatypes.JSON
}

func (r *BaseRelation) KeyConditions() map[string]interface{} {
	return map[string]interface{}{
		"from_node_id":  r.FromNodeID,
		"to_node_id":    r.ToNodeID,
		"relation_type": r.RelationType,
	}
}

func (r *BaseRelation) Payload() datatypes.JSON { return r.Data }

func (r *BaseRelation) SetPayload(data datatypes.JSON) { r.Data = data }

// BaseEvent is a raw platform activity record.
type BaseEvent struct {
	Event     string         `gorm:"not null;index"`
	UserID    *int64         `gorm:"index"`
	Timestamp time.Time      `gorm:"not null"`
	Data      datatypes.JSON `gorm:"not null"`
}

func (e *BaseEvent) Payload() datatypes.JSON { return e.Data }

func (e *BaseEvent) SetPayload(data datatypes.JSON) { e.Data = data }

// BaseThread links a reply to the message it answers.
type BaseThread struct {
	Id              uint      `gorm:"primaryKey"`
	JobID           uint      `gorm:"not null;index"`
	ParentMessageID int64     `gorm:"not null;index"`
	MessageID       int64     `gorm:"not null;uniqueIndex"`
	Timestamp       time.Time `gorm:"not null"`
}

/*
BasePlatformUser is an identity on one platform

Id: platform native user id
Username: handle or login, null until known
Name: display name, null until profiles are crawled
Data: raw profile payload
JobID: job that first observed this user

Rows are derived from messages, reactions and relations, then enriched by
profile crawls.
*/
type BasePlatformUser struct {
	Id       int64   `gorm:"primaryKey;autoIncrement:false"`
	Username *string `gorm:"index"`
	Name     *string
	Data     datatypes.JSON
	JobID    uint `gorm:"not null;index"`
}

func (u *BasePlatformUser) KeyConditions() map[string]interface{} {
	return map[string]interface{}{"id": u.Id}
}

func (u *BasePlatformUser) Payload() datatypes.JSON { return u.Data }

func (u *BasePlatformUser) SetPayload(data datatypes.JSON) { u.Data = data }
