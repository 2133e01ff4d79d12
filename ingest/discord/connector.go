package discord

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Luismorlan/community/collector"
	"github.com/Luismorlan/community/collector/clients"
	"github.com/Luismorlan/community/ingest"
	"github.com/Luismorlan/community/model"
	"github.com/Luismorlan/community/store"
	Logger "github.com/Luismorlan/community/utils/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Directory enumerates what the bot can see.
type Directory interface {
	Guilds(ctx context.Context) ([]clients.DiscordGuild, error)
	TextChannels(ctx context.Context, guildID string) ([]clients.DiscordChannel, error)
}

type Connector struct {
	db        *gorm.DB
	machine   *ingest.Machine
	directory Directory
}

// NewConnector accepts a nil directory, discovery then fails while crawling
// known channels still works.
func NewConnector(db *gorm.DB, machine *ingest.Machine, directory Directory) *Connector {
	return &Connector{db: db, machine: machine, directory: directory}
}

func (c *Connector) Discover(ctx context.Context, projectID uint, _ string) (int, error) {
	return c.DiscoverGuilds(ctx, projectID)
}

// DiscoverGuilds registers every guild the bot is in under project, then
// discovers their channels. Returns the number of new channels.
func (c *Connector) DiscoverGuilds(ctx context.Context, projectID uint) (int, error) {
	if c.directory == nil {
		return 0, errors.New("discord discovery needs a bot token")
	}
	guilds, err := c.directory.Guilds(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "fail to list discord guilds")
	}
	total := 0
	for _, g := range guilds {
		id, err := strconv.ParseInt(g.ID, 10, 64)
		if err != nil {
			return total, errors.Wrapf(err, "invalid guild id %q", g.ID)
		}
		guild := model.DiscordGuild{Id: id, Name: g.Name, ProjectID: projectID}
		if _, err := store.GetOrCreate(ctx, c.db, &guild, map[string]interface{}{"id": id}); err != nil {
			return total, err
		}
		created, err := c.DiscoverChannels(ctx, &guild)
		total += created
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// DiscoverChannels registers the text channels of guild.
func (c *Connector) DiscoverChannels(ctx context.Context, guild *model.DiscordGuild) (int, error) {
	if c.directory == nil {
		return 0, errors.New("discord discovery needs a bot token")
	}
	channels, err := c.directory.TextChannels(ctx, strconv.FormatInt(guild.Id, 10))
	if err != nil {
		return 0, errors.Wrapf(err, "fail to list channels of guild %d", guild.Id)
	}
	total := 0
	for _, ch := range channels {
		id, err := strconv.ParseInt(ch.ID, 10, 64)
		if err != nil {
			return total, errors.Wrapf(err, "invalid channel id %q", ch.ID)
		}
		channel := model.DiscordChannel{Id: id, Name: ch.Name, GuildID: guild.Id}
		created, err := store.GetOrCreate(ctx, c.db, &channel, map[string]interface{}{"id": id})
		if err != nil {
			return total, err
		}
		if created {
			total++
		}
	}
	return total, nil
}

// CrawlMessages creates and enqueues one job per channel of guild.
func (c *Connector) CrawlMessages(ctx context.Context, guild *model.DiscordGuild) ([]*model.Job, error) {
	var channels []model.DiscordChannel
	if err := c.db.WithContext(ctx).Where("guild_id = ?", guild.Id).Order("id").Find(&channels).Error; err != nil {
		return nil, errors.Wrapf(err, "fail to load channels of guild %d", guild.Id)
	}
	jobs := []*model.Job{}
	for i := range channels {
		job, err := c.CrawlChannel(ctx, guild, &channels[i])
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// CrawlChannel creates and enqueues a job reading the channel from the newest
// message already stored for it.
func (c *Connector) CrawlChannel(ctx context.Context, guild *model.DiscordGuild, channel *model.DiscordChannel) (*model.Job, error) {
	config := map[string]interface{}{"guild_id": guild.Id, "channel_id": channel.Id}
	since, err := c.Since(ctx, channel.Id)
	if err != nil {
		return nil, err
	}
	if since != nil {
		config["since"] = *since
	}
	return c.machine.AddJob(ctx, guild.ProjectID, model.PlatformDiscord, &channel.Id, config)
}

// CrawlSources creates and enqueues one job per listed channel.
func (c *Connector) CrawlSources(ctx context.Context, ids []int64) ([]*model.Job, error) {
	db := c.db.WithContext(ctx)
	var channels []model.DiscordChannel
	if err := db.Where("id IN ?", ids).Order("id").Find(&channels).Error; err != nil {
		return nil, errors.Wrap(err, "fail to load discord channels")
	}
	found := make([]int64, 0, len(channels))
	for _, channel := range channels {
		found = append(found, channel.Id)
	}
	if err := ingest.CheckSources("discord channel", ids, found); err != nil {
		return nil, err
	}
	jobs := []*model.Job{}
	for i := range channels {
		var guild model.DiscordGuild
		if err := db.Take(&guild, "id = ?", channels[i].GuildID).Error; err != nil {
			return jobs, errors.Wrapf(err, "fail to load guild of channel %d", channels[i].Id)
		}
		job, err := c.CrawlChannel(ctx, &guild, &channels[i])
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Since is the newest message timestamp stored for the channel.
func (c *Connector) Since(ctx context.Context, channelID int64) (*time.Time, error) {
	return ingest.LatestTimestamp(ctx,
		c.db.Model(&model.DiscordMessage{}).Where("channel_id = ?", channelID), "timestamp")
}

func (c *Connector) CrawlAll(ctx context.Context) ([]*model.Job, error) {
	var guilds []model.DiscordGuild
	if err := c.db.WithContext(ctx).Order("id").Find(&guilds).Error; err != nil {
		return nil, errors.Wrap(err, "fail to load discord guilds")
	}
	jobs := []*model.Job{}
	for i := range guilds {
		created, err := c.CrawlMessages(ctx, &guilds[i])
		jobs = append(jobs, created...)
		if err != nil {
			return jobs, err
		}
	}
	return jobs, nil
}

// SaveEvent appends one gateway event, events are never deduplicated.
func (c *Connector) SaveEvent(ctx context.Context, eventName string, payload map[string]interface{}) error {
	record := collector.Record(payload)
	event := model.DiscordEvent{BaseEvent: model.BaseEvent{
		Event:     eventName,
		Timestamp: time.Now().UTC(),
	}}
	if userID, err := record.Int64("user_id"); err == nil {
		event.UserID = &userID
	} else if userID, err := record.Int64("author", "id"); err == nil {
		event.UserID = &userID
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "fail to marshal %s event", eventName)
	}
	event.Data = data
	created, err := store.BulkCreate(ctx, c.db, []model.DiscordEvent{event})
	if err != nil {
		return err
	}
	Logger.Log.WithField("event", eventName).Debugf("saved %d discord event", created)
	return nil
}
