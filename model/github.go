package model

type GithubMessage struct{ BaseMessage }

func (GithubMessage) TableName() string { return "github_messages" }

type GithubReaction struct{ BaseReaction }

func (GithubReaction) TableName() string { return "github_reactions" }

type GithubRelation struct{ BaseRelation }

func (GithubRelation) TableName() string { return "github_relations" }

type GithubThread struct{ BaseThread }

func (GithubThread) TableName() string { return "github_threads" }

type GithubUser struct{ BasePlatformUser }

func (GithubUser) TableName() string { return "github_users" }

type GithubEvent struct {
	Id    int64 `gorm:"primaryKey;autoIncrement:false"`
	JobID uint  `gorm:"not null;index"`
	BaseEvent
}

func (GithubEvent) TableName() string { return "github_events" }

func (e *GithubEvent) KeyConditions() map[string]interface{} {
	return map[string]interface{}{"id": e.Id}
}
