// Package github ingests repository activity from the GitHub archive.
package github

import (
	"context"
	"strconv"
	"strings"

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
	StagePopulateProject   = "populate_project"
	StagePopulateEvents    = "populate_events"
	StagePopulateRelations = "populate_relations"
	StagePopulateMessages  = "populate_messages"
	StagePopulateThreads   = "populate_threads"
	StagePopulateUsers     = "populate_users"
	StageCrawlProfiles     = "crawl_profiles"
)

type Config struct {
	ID    int64  `mapstructure:"id"`
	Owner string `mapstructure:"owner"`
	Name  string `mapstructure:"name"`
	Since string `mapstructure:"since"`
}

// GitHub actors carry no username in the archive, profiles fill it in later.
var Users = ingest.UserPopulation{
	UserTable: model.GithubUser{}.TableName(),
	Sources: []ingest.UserSource{
		{Table: model.GithubEvent{}.TableName(), IDColumn: "user_id"},
		{Table: model.GithubMessage{}.TableName(), IDColumn: "user_id"},
		{Table: model.GithubRelation{}.TableName(), IDColumn: "from_node_id"},
	},
}

type Pipeline struct {
	db        *gorm.DB
	fetcher   collector.Fetcher
	chunkSize int
}

// NewPipeline writes in chunks of chunkSize, which is also how many profiles
// are requested per archive search.
func NewPipeline(db *gorm.DB, fetcher collector.Fetcher, chunkSize int) *Pipeline {
	return &Pipeline{db: db, fetcher: fetcher, chunkSize: chunkSize}
}

func (p *Pipeline) Platform() model.Platform { return model.PlatformGithub }

func (p *Pipeline) NormalizeConfig(config map[string]interface{}) (map[string]interface{}, error) {
	return ingest.NormalizeTimes(config, ingest.TimestampLayout, "since")
}

func (p *Pipeline) Stages(job *model.Job) ([]ingest.Stage, error) {
	return []ingest.Stage{
		{Name: StagePopulateProject, Run: p.PopulateProject},
		{Name: StagePopulateEvents, Run: p.PopulateEvents},
		{Name: StagePopulateRelations, Run: p.PopulateRelations},
		{Name: StagePopulateMessages, Run: p.PopulateMessages},
		{Name: StagePopulateThreads, Run: p.PopulateThreads},
		{Name: StagePopulateUsers, Run: p.PopulateUsers},
		{Name: StageCrawlProfiles, Run: p.CrawlProfiles},
	}, nil
}

func (p *Pipeline) PopulateProject(ctx context.Context, job *model.Job) error { return nil }

func (p *Pipeline) PopulateThreads(ctx context.Context, job *model.Job) error { return nil }

func (p *Pipeline) query(job *model.Job, kind string) (collector.Query, error) {
	var config Config
	if err := ingest.DecodeConfig(job, &config, "id"); err != nil {
		return collector.Query{}, err
	}
	since, err := ingest.ParseTime(config.Since, ingest.TimestampLayout)
	if err != nil {
		return collector.Query{}, err
	}
	return collector.Query{Kind: kind, Target: strconv.FormatInt(config.ID, 10), Since: since}, nil
}

// crawl pages through kind and writes every converted record with BulkCreate.
func crawl[T any, PT interface {
	*T
	store.Entity
}](ctx context.Context, p *Pipeline, job *model.Job, kind string, convert func(collector.Record) ([]T, error)) error {
	q, err := p.query(job, kind)
	if err != nil {
		return err
	}
	return collector.FetchAll(ctx, p.fetcher, q, func(page collector.Page) error {
		objs := []T{}
		for _, r := range page.Records {
			converted, err := convert(r)
			if err != nil {
				return err
			}
			objs = append(objs, converted...)
		}
		return ingest.WriteChunks(objs, p.chunkSize, func(chunk []T) error {
			_, err := store.BulkCreate[T, PT](ctx, p.db, chunk)
			return err
		})
	})
}

func (p *Pipeline) PopulateEvents(ctx context.Context, job *model.Job) error {
	return crawl[model.GithubEvent](ctx, p, job, clients.KindRepoEvents, func(r collector.Record) ([]model.GithubEvent, error) {
		e, err := RecordToEvent(r, job.Id)
		return []model.GithubEvent{e}, err
	})
}

func (p *Pipeline) PopulateRelations(ctx context.Context, job *model.Job) error {
	return crawl[model.GithubRelation](ctx, p, job, clients.KindRepoRelations, func(r collector.Record) ([]model.GithubRelation, error) {
		return RecordToRelations(r, job.Id)
	})
}

func (p *Pipeline) PopulateMessages(ctx context.Context, job *model.Job) error {
	return crawl[model.GithubMessage](ctx, p, job, clients.KindRepoMessages, func(r collector.Record) ([]model.GithubMessage, error) {
		m, err := RecordToMessage(r, job.Id)
		return []model.GithubMessage{m}, err
	})
}

func (p *Pipeline) PopulateUsers(ctx context.Context, job *model.Job) error {
	_, err := ingest.PopulateUsers(ctx, p.db, job, Users)
	return err
}

// CrawlProfiles fills login and name of the users first seen by job.
func (p *Pipeline) CrawlProfiles(ctx context.Context, job *model.Job) error {
	var ids []int64
	err := p.db.WithContext(ctx).Model(&model.GithubUser{}).
		Where("job_id = ?", job.Id).Order("id").Pluck("id", &ids).Error
	if err != nil {
		return errors.Wrapf(err, "fail to load users of job %d", job.Id)
	}
	for _, chunk := range utils.Chunkify(ids, p.chunkSize) {
		target := make([]string, 0, len(chunk))
		for _, id := range chunk {
			target = append(target, strconv.FormatInt(id, 10))
		}
		q := collector.Query{Kind: clients.KindUserProfiles, Target: strings.Join(target, ",")}
		err := collector.FetchAll(ctx, p.fetcher, q, func(page collector.Page) error {
			users := make([]model.GithubUser, 0, len(page.Records))
			for _, r := range page.Records {
				u, err := RecordToUser(r, job.Id)
				if err != nil {
					return err
				}
				users = append(users, u)
			}
			return store.BulkUpdate(ctx, p.db, users)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func RecordToEvent(r collector.Record, jobID uint) (model.GithubEvent, error) {
	id, err := r.Int64("id")
	if err != nil {
		return model.GithubEvent{}, err
	}
	userID, err := r.Int64("user_id")
	if err != nil {
		return model.GithubEvent{}, err
	}
	ts, err := r.Time("timestamp")
	if err != nil {
		return model.GithubEvent{}, err
	}
	return model.GithubEvent{
		Id:    id,
		JobID: jobID,
		BaseEvent: model.BaseEvent{
			Event:     r.String("event"),
			UserID:    &userID,
			Timestamp: ts,
			Data:      datatypes.JSON(r.Without("id", "event", "user_id", "timestamp").JSON()),
		},
	}, nil
}

// RecordToRelations yields one relation per flag set on a repo user stat.
func RecordToRelations(r collector.Record, jobID uint) ([]model.GithubRelation, error) {
	from, err := r.Int64("user_id")
	if err != nil {
		return nil, err
	}
	to, err := r.Int64("repo_id")
	if err != nil {
		return nil, err
	}
	ts, err := r.Time("timestamp")
	if err != nil {
		return nil, err
	}
	data := datatypes.JSON(r.Without(append([]string{"user_id", "repo_id", "timestamp"},
		relationFlags()...)...).JSON())
	res := []model.GithubRelation{}
	for _, relationType := range model.GithubRelationTypes {
		if flag, _ := r[string(relationType)].(bool); !flag {
			continue
		}
		res = append(res, model.GithubRelation{BaseRelation: model.BaseRelation{
			FromNodeID:   from,
			ToNodeID:     to,
			RelationType: relationType,
			JobID:        jobID,
			Timestamp:    ts,
			Data:         data,
		}})
	}
	return res, nil
}

func relationFlags() []string {
	res := make([]string, 0, len(model.GithubRelationTypes))
	for _, t := range model.GithubRelationTypes {
		res = append(res, string(t))
	}
	return res
}

// RecordToMessage reads an issue or a comment, the title wins over the body.
func RecordToMessage(r collector.Record, jobID uint) (model.GithubMessage, error) {
	id, err := r.Int64("id")
	if err != nil {
		return model.GithubMessage{}, err
	}
	userID, err := r.Int64("user_id")
	if err != nil {
		return model.GithubMessage{}, err
	}
	ts, err := r.Time("timestamp")
	if err != nil {
		return model.GithubMessage{}, err
	}
	message := r.String("title")
	if message == "" {
		message = r.String("body")
	}
	return model.GithubMessage{BaseMessage: model.BaseMessage{
		Id:        id,
		JobID:     jobID,
		UserID:    userID,
		Message:   message,
		Timestamp: ts,
		Data:      datatypes.JSON(r.Without("id", "user_id", "title", "body", "timestamp").JSON()),
	}}, nil
}

func RecordToUser(r collector.Record, jobID uint) (model.GithubUser, error) {
	id, err := r.Int64("user_id")
	if err != nil {
		return model.GithubUser{}, err
	}
	return model.GithubUser{BasePlatformUser: model.BasePlatformUser{
		Id:       id,
		Username: model.StringPtr(r.String("login")),
		Name:     model.StringPtr(r.String("name")),
		Data:     datatypes.JSON(r.Without("user_id", "login", "name").JSON()),
		JobID:    jobID,
	}}, nil
}
