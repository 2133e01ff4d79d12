package model

type Tweet struct{ BaseMessage }

func (Tweet) TableName() string { return "tweets" }

type TwitterReaction struct{ BaseReaction }

func (TwitterReaction) TableName() string { return "twitter_reactions" }

type TwitterRelation struct{ BaseRelation }

func (TwitterRelation) TableName() string { return "twitter_relations" }

type TwitterThread struct{ BaseThread }

func (TwitterThread) TableName() string { return "twitter_threads" }

type TwitterUser struct{ BasePlatformUser }

func (TwitterUser) TableName() string { return "twitter_users" }
