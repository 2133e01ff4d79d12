package model

// AllModels lists every table in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Project{},
		&User{},
		&ProjectMember{},
		&Job{},

		&DiscordGuild{},
		&DiscordChannel{},
		&GithubRepo{},
		&TwitterHandle{},

		&DiscordMessage{},
		&DiscordReaction{},
		&DiscordThread{},
		&DiscordUser{},
		&DiscordEvent{},

		&GithubMessage{},
		&GithubReaction{},
		&GithubRelation{},
		&GithubThread{},
		&GithubUser{},
		&GithubEvent{},

		&Tweet{},
		&TwitterReaction{},
		&TwitterRelation{},
		&TwitterThread{},
		&TwitterUser{},
	}
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences s, treating nil as empty.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
