package model

import "fmt"

type Platform string

const (
	PlatformDiscord Platform = "discord"
	PlatformGithub  Platform = "github"
	PlatformTwitter Platform = "twitter"
)

var AllPlatform = []Platform{
	PlatformDiscord,
	PlatformGithub,
	PlatformTwitter,
}

func (e Platform) IsValid() bool {
	switch e {
	case PlatformDiscord, PlatformGithub, PlatformTwitter:
		return true
	}
	return false
}

func (e Platform) String() string {
	return string(e)
}

// ParsePlatform converts a user provided string into a Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	if !p.IsValid() {
		return "", fmt.Errorf("%s is not a valid Platform", s)
	}
	return p, nil
}

type JobStatus string

const (
	JobStatusNew     JobStatus = "new"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	// Never written by the job machine, operators set it by hand.
	JobStatusError JobStatus = "error"
)

var AllJobStatus = []JobStatus{
	JobStatusNew,
	JobStatusRunning,
	JobStatusDone,
	JobStatusError,
}

func (e JobStatus) IsValid() bool {
	switch e {
	case JobStatusNew, JobStatusRunning, JobStatusDone, JobStatusError:
		return true
	}
	return false
}

func (e JobStatus) String() string {
	return string(e)
}

type RelationType string

const (
	RelationTypeWatching RelationType = "watching"
	RelationTypeStarred  RelationType = "starred"
	RelationTypeForked   RelationType = "forked"

	RelationTypeFriend   RelationType = "friend"
	RelationTypeFollower RelationType = "follower"
)

var GithubRelationTypes = []RelationType{
	RelationTypeWatching,
	RelationTypeStarred,
	RelationTypeForked,
}

var TwitterRelationTypes = []RelationType{
	RelationTypeFriend,
	RelationTypeFollower,
}

func (e RelationType) String() string {
	return string(e)
}

const (
	ReactionTypeLike = "like"

	DiscordEventReactionAdd = "MESSAGE_REACTION_ADD"
)
