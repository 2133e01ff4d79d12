// Package twitter ingests handle timelines, mentions and hashtag searches
// along with likes, followers and profiles.
package twitter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Luismorlan/community/collector"
	"github.com/Luismorlan/community/collector/clients"
	"github.com/Luismorlan/community/ingest"
	"github.com/Luismorlan/community/model"
	"github.com/Luismorlan/community/store"
	"github.com/Luismorlan/community/utils"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	CrawlTypeHandleMessages = "handle_messages"
	CrawlTypeHashtag        = "hashtag"

	StageCrawlTweets     = "crawl_tweets"
	StagePopulateThreads = "populate_threads"
	StageCrawlReactions  = "crawl_reactions"
	StageCrawlRelations  = "crawl_relations"
	StagePopulateUsers   = "populate_users"
	StageCrawlProfiles   = "crawl_profiles"
)

// Config is the persisted config of a twitter job. Query is a handle without
// the @ for handle_messages and a tag without the # for hashtag.
type Config struct {
	Query     string `mapstructure:"query"`
	CrawlType string `mapstructure:"crawl_type"`
	Since     string `mapstructure:"since"`
	Until     string `mapstructure:"until"`
}

var Users = ingest.UserPopulation{
	UserTable: model.TwitterUser{}.TableName(),
	Sources: []ingest.UserSource{
		{Table: model.Tweet{}.TableName(), IDColumn: "user_id", UsernamePath: []string{"username"}},
		{Table: model.TwitterReaction{}.TableName(), IDColumn: "user_id", UsernamePath: []string{"username"}},
		{Table: model.TwitterRelation{}.TableName(), IDColumn: "from_node_id", UsernamePath: []string{"username"}},
	},
}

type Pipeline struct {
	db               *gorm.DB
	fetcher          collector.Fetcher
	chunkSize        int
	profileChunkSize int
}

func NewPipeline(db *gorm.DB, fetcher collector.Fetcher, chunkSize, profileChunkSize int) *Pipeline {
	return &Pipeline{db: db, fetcher: fetcher, chunkSize: chunkSize, profileChunkSize: profileChunkSize}
}

func (p *Pipeline) Platform() model.Platform { return model.PlatformTwitter }

func (p *Pipeline) NormalizeConfig(config map[string]interface{}) (map[string]interface{}, error) {
	return ingest.NormalizeTimes(config, ingest.DateLayout, "since", "until")
}

func (p *Pipeline) Stages(job *model.Job) ([]ingest.Stage, error) {
	var config Config
	if err := ingest.DecodeConfig(job, &config, "crawl_type"); err != nil {
		return nil, err
	}
	switch config.CrawlType {
	case CrawlTypeHandleMessages:
		return []ingest.Stage{
			{Name: StageCrawlTweets, Run: p.CrawlTweets},
			{Name: StagePopulateThreads, Run: p.PopulateThreads},
			{Name: StageCrawlReactions, Run: p.CrawlReactions},
			{Name: StageCrawlRelations, Run: p.CrawlRelations},
			{Name: StagePopulateUsers, Run: p.PopulateUsers},
			{Name: StageCrawlProfiles, Run: p.CrawlProfiles},
		}, nil
	case CrawlTypeHashtag:
		return []ingest.Stage{
			{Name: StageCrawlTweets, Run: p.CrawlTweets},
			{Name: StagePopulateThreads, Run: p.PopulateThreads},
			{Name: StagePopulateUsers, Run: p.PopulateUsers},
			{Name: StageCrawlProfiles, Run: p.CrawlProfiles},
		}, nil
	}
	return nil, fmt.Errorf("unsupported crawl_type: %s", config.CrawlType)
}

// Queries lists the tweet crawls a job runs: the handle's timeline plus
// everything mentioning or replying to it, or the hashtag search.
func Queries(job *model.Job) ([]collector.Query, error) {
	var config Config
	if err := ingest.DecodeConfig(job, &config, "query", "crawl_type"); err != nil {
		return nil, err
	}
	since, err := ingest.ParseTime(config.Since, ingest.DateLayout)
	if err != nil {
		return nil, err
	}
	until, err := ingest.ParseTime(config.Until, ingest.DateLayout)
	if err != nil {
		return nil, err
	}
	switch config.CrawlType {
	case CrawlTypeHandleMessages:
		handle := strings.TrimPrefix(config.Query, "@")
		return []collector.Query{
			{Kind: clients.KindUserTweets, Target: handle, Since: since, Until: until},
			{Kind: clients.KindSearchTweets, Target: "@" + handle, Since: since, Until: until},
		}, nil
	case CrawlTypeHashtag:
		return []collector.Query{
			{Kind: clients.KindSearchTweets, Target: "#" + strings.TrimPrefix(config.Query, "#"), Since: since, Until: until},
		}, nil
	}
	return nil, fmt.Errorf("unsupported crawl_type: %s", config.CrawlType)
}

func (p *Pipeline) CrawlTweets(ctx context.Context, job *model.Job) error {
	queries, err := Queries(job)
	if err != nil {
		return err
	}
	for _, q := range queries {
		err := collector.FetchAll(ctx, p.fetcher, q, func(page collector.Page) error {
			tweets := make([]model.Tweet, 0, len(page.Records))
			for _, r := range page.Records {
				tweet, err := RecordToTweet(r, job.Id)
				if err != nil {
					return err
				}
				tweets = append(tweets, tweet)
			}
			return ingest.WriteChunks(tweets, p.chunkSize, func(chunk []model.Tweet) error {
				_, err := store.BulkCreate(ctx, p.db, chunk)
				return err
			})
		})
		if err != nil {
			return errors.Wrapf(err, "fail to crawl %s %s", q.Kind, q.Target)
		}
	}
	return nil
}

func (p *Pipeline) PopulateThreads(ctx context.Context, job *model.Job) error { return nil }

// CrawlReactions records the likes of every tweet written by job.
func (p *Pipeline) CrawlReactions(ctx context.Context, job *model.Job) error {
	var tweets []model.Tweet
	err := p.db.WithContext(ctx).Select("id", "timestamp").
		Where("job_id = ?", job.Id).Order("id").Find(&tweets).Error
	if err != nil {
		return errors.Wrapf(err, "fail to load tweets of job %d", job.Id)
	}
	for _, tweet := range tweets {
		q := collector.Query{Kind: clients.KindLikingUsers, Target: strconv.FormatInt(tweet.Id, 10)}
		err := collector.FetchAll(ctx, p.fetcher, q, func(page collector.Page) error {
			reactions := make([]model.TwitterReaction, 0, len(page.Records))
			for _, r := range page.Records {
				userID, err := r.Int64("id")
				if err != nil {
					return err
				}
				reactions = append(reactions, model.TwitterReaction{BaseReaction: model.BaseReaction{
					MessageID: tweet.Id,
					UserID:    userID,
					Reaction:  model.ReactionTypeLike,
					JobID:     job.Id,
					Timestamp: tweet.Timestamp,
					Data:      datatypes.JSON(r.JSON()),
				}})
			}
			return ingest.WriteChunks(reactions, p.chunkSize, func(chunk []model.TwitterReaction) error {
				return store.BulkUpsert(ctx, p.db, chunk)
			})
		})
		if err != nil {
			return errors.Wrapf(err, "fail to crawl likes of tweet %d", tweet.Id)
		}
	}
	return nil
}

// CrawlRelations records the followers of the handle behind job. Followers
// carry no follow date, the crawl time stands in.
func (p *Pipeline) CrawlRelations(ctx context.Context, job *model.Job) error {
	if job.SourceID == nil {
		return fmt.Errorf("job %d has no twitter handle", job.Id)
	}
	handleID := *job.SourceID
	now := time.Now().UTC()
	q := collector.Query{Kind: clients.KindFollowers, Target: strconv.FormatInt(handleID, 10)}
	return collector.FetchAll(ctx, p.fetcher, q, func(page collector.Page) error {
		relations := make([]model.TwitterRelation, 0, len(page.Records))
		for _, r := range page.Records {
			from, err := r.Int64("id")
			if err != nil {
				return err
			}
			relations = append(relations, model.TwitterRelation{BaseRelation: model.BaseRelation{
				FromNodeID:   from,
				ToNodeID:     handleID,
				RelationType: model.RelationTypeFollower,
				JobID:        job.Id,
				Timestamp:    now,
				Data:         datatypes.JSON(r.JSON()),
			}})
		}
		return ingest.WriteChunks(relations, p.chunkSize, func(chunk []model.TwitterRelation) error {
			return store.BulkUpsert(ctx, p.db, chunk)
		})
	})
}

func (p *Pipeline) PopulateUsers(ctx context.Context, job *model.Job) error {
	_, err := ingest.PopulateUsers(ctx, p.db, job, Users)
	return err
}

// CrawlProfiles looks up the users first seen by job, profileChunkSize ids
// per request.
func (p *Pipeline) CrawlProfiles(ctx context.Context, job *model.Job) error {
	var ids []int64
	err := p.db.WithContext(ctx).Model(&model.TwitterUser{}).
		Where("job_id = ?", job.Id).Order("id").Pluck("id", &ids).Error
	if err != nil {
		return errors.Wrapf(err, "fail to load users of job %d", job.Id)
	}
	for _, chunk := range utils.Chunkify(ids, p.profileChunkSize) {
		target := make([]string, 0, len(chunk))
		for _, id := range chunk {
			target = append(target, strconv.FormatInt(id, 10))
		}
		q := collector.Query{Kind: clients.KindUsers, Target: strings.Join(target, ",")}
		err := collector.FetchAll(ctx, p.fetcher, q, func(page collector.Page) error {
			users := make([]model.TwitterUser, 0, len(page.Records))
			for _, r := range page.Records {
				user, err := RecordToUser(r, job.Id)
				if err != nil {
					return err
				}
				users = append(users, user)
			}
			return ingest.WriteChunks(users, p.chunkSize, func(chunk []model.TwitterUser) error {
				return store.BulkUpdate(ctx, p.db, chunk)
			})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func RecordToTweet(r collector.Record, jobID uint) (model.Tweet, error) {
	id, err := r.Int64("id")
	if err != nil {
		return model.Tweet{}, err
	}
	userID, err := r.Int64("user_id")
	if err != nil {
		return model.Tweet{}, err
	}
	ts, err := r.Time("timestamp")
	if err != nil {
		return model.Tweet{}, err
	}
	return model.Tweet{BaseMessage: model.BaseMessage{
		Id:        id,
		JobID:     jobID,
		UserID:    userID,
		Message:   r.String("text"),
		Timestamp: ts,
		Data:      datatypes.JSON(r.Without().JSON()),
	}}, nil
}

// RecordToUser reads a v2 user object.
func RecordToUser(r collector.Record, jobID uint) (model.TwitterUser, error) {
	id, err := r.Int64("id")
	if err != nil {
		return model.TwitterUser{}, err
	}
	return model.TwitterUser{BasePlatformUser: model.BasePlatformUser{
		Id:       id,
		Username: model.StringPtr(r.String("username")),
		Name:     model.StringPtr(r.String("name")),
		Data:     datatypes.JSON(r.JSON()),
		JobID:    jobID,
	}}, nil
}
