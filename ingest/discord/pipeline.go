// Package discord ingests Discord channel history and gateway reaction events.
package discord

import (
	"context"
	"fmt"
	"strconv"

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
	StageCrawlMessages     = "crawl_messages"
	StagePopulateThreads   = "populate_threads"
	StagePopulateReactions = "populate_reactions"
	StagePopulateUsers     = "populate_users"
)

// Config is the persisted config of a channel crawl.
type Config struct {
	GuildID   int64  `mapstructure:"guild_id"`
	ChannelID int64  `mapstructure:"channel_id"`
	Since     string `mapstructure:"since"`
}

var Users = ingest.UserPopulation{
	UserTable: model.DiscordUser{}.TableName(),
	Sources: []ingest.UserSource{
		{Table: model.DiscordMessage{}.TableName(), IDColumn: "user_id", UsernamePath: []string{"author", "username"}},
		{Table: model.DiscordReaction{}.TableName(), IDColumn: "user_id", UsernamePath: []string{"author", "username"}},
	},
}

type Pipeline struct {
	db        *gorm.DB
	fetcher   collector.Fetcher
	chunkSize int
}

func NewPipeline(db *gorm.DB, fetcher collector.Fetcher, chunkSize int) *Pipeline {
	return &Pipeline{db: db, fetcher: fetcher, chunkSize: chunkSize}
}

func (p *Pipeline) Platform() model.Platform { return model.PlatformDiscord }

func (p *Pipeline) NormalizeConfig(config map[string]interface{}) (map[string]interface{}, error) {
	return ingest.NormalizeTimes(config, ingest.TimestampLayout, "since")
}

func (p *Pipeline) Stages(job *model.Job) ([]ingest.Stage, error) {
	return []ingest.Stage{
		{Name: StageCrawlMessages, Run: p.CrawlMessages},
		{Name: StagePopulateThreads, Run: p.PopulateThreads},
		{Name: StagePopulateReactions, Run: p.PopulateReactions},
		{Name: StagePopulateUsers, Run: p.PopulateUsers},
	}, nil
}

// CrawlMessages stores the channel history from since onwards.
func (p *Pipeline) CrawlMessages(ctx context.Context, job *model.Job) error {
	var config Config
	if err := ingest.DecodeConfig(job, &config, "guild_id", "channel_id"); err != nil {
		return err
	}
	since, err := ingest.ParseTime(config.Since, ingest.TimestampLayout)
	if err != nil {
		return err
	}
	q := collector.Query{
		Kind:   clients.KindChannelMessages,
		Target: strconv.FormatInt(config.ChannelID, 10),
		Since:  since,
	}
	return collector.FetchAll(ctx, p.fetcher, q, func(page collector.Page) error {
		messages := make([]model.DiscordMessage, 0, len(page.Records))
		for _, r := range page.Records {
			m, err := RecordToMessage(r, job.Id, config.ChannelID)
			if err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return ingest.WriteChunks(messages, p.chunkSize, func(chunk []model.DiscordMessage) error {
			_, err := store.BulkCreate(ctx, p.db, chunk)
			return err
		})
	})
}

// RecordToMessage promotes the columns of a channel message record, the whole
// record stays in Data.
func RecordToMessage(r collector.Record, jobID uint, channelID int64) (model.DiscordMessage, error) {
	id, err := r.Int64("id")
	if err != nil {
		return model.DiscordMessage{}, err
	}
	userID, err := r.Int64("author", "id")
	if err != nil {
		return model.DiscordMessage{}, err
	}
	ts, err := r.Time("timestamp")
	if err != nil {
		return model.DiscordMessage{}, err
	}
	return model.DiscordMessage{
		BaseMessage: model.BaseMessage{
			Id:        id,
			JobID:     jobID,
			UserID:    userID,
			Message:   r.String("content"),
			Timestamp: ts,
			Data:      datatypes.JSON(r.JSON()),
		},
		ChannelID: channelID,
	}, nil
}

// PopulateThreads is kept so stage names stay stable, replies are not tracked
// yet.
func (p *Pipeline) PopulateThreads(ctx context.Context, job *model.Job) error {
	return nil
}

// PopulateReactions turns reaction add events of the job's channel into
// reactions that are not recorded yet.
func (p *Pipeline) PopulateReactions(ctx context.Context, job *model.Job) error {
	var config Config
	if err := ingest.DecodeConfig(job, &config, "channel_id"); err != nil {
		return err
	}
	db := p.db.WithContext(context.WithoutCancel(ctx))
	messageID := fmt.Sprintf("CAST(%s AS BIGINT)", utils.JSONValueExpr(db, "data", "message_id"))
	reaction := utils.JSONValueExpr(db, "data", "emoji", "name")
	channel := utils.JSONValueExpr(db, "data", "channel_id")

	events := fmt.Sprintf(
		"SELECT %s AS message_id, user_id, %s AS reaction, timestamp FROM %s WHERE event = ? AND %s = ?",
		messageID, reaction, model.DiscordEvent{}.TableName(), channel)
	insert := fmt.Sprintf(
		"INSERT INTO %[1]s (message_id, user_id, reaction, job_id, timestamp) "+
			"SELECT e.message_id, e.user_id, e.reaction, CAST(? AS BIGINT), MIN(e.timestamp) FROM (%[2]s) e "+
			"WHERE e.message_id IS NOT NULL AND e.user_id IS NOT NULL AND e.reaction IS NOT NULL "+
			"AND NOT EXISTS (SELECT 1 FROM %[1]s r WHERE r.message_id = e.message_id "+
			"AND r.user_id = e.user_id AND r.reaction = e.reaction) "+
			"GROUP BY e.message_id, e.user_id, e.reaction ON CONFLICT DO NOTHING",
		model.DiscordReaction{}.TableName(), events)
	err := db.Exec(insert, job.Id, model.DiscordEventReactionAdd, strconv.FormatInt(config.ChannelID, 10)).Error
	return errors.Wrapf(err, "fail to populate reactions for job %d", job.Id)
}

func (p *Pipeline) PopulateUsers(ctx context.Context, job *model.Job) error {
	_, err := ingest.PopulateUsers(ctx, p.db, job, Users)
	return err
}
