package discord

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Luismorlan/community/collector"
	"github.com/Luismorlan/community/collector/clients"
	"github.com/Luismorlan/community/ingest"
	"github.com/Luismorlan/community/model"
	"github.com/Luismorlan/community/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeDirectory struct {
	guilds   []clients.DiscordGuild
	channels map[string][]clients.DiscordChannel
}

func (d *fakeDirectory) Guilds(ctx context.Context) ([]clients.DiscordGuild, error) {
	return d.guilds, nil
}

func (d *fakeDirectory) TextChannels(ctx context.Context, guildID string) ([]clients.DiscordChannel, error) {
	return d.channels[guildID], nil
}

type fakeEnqueuer struct{ ids []uint }

func (e *fakeEnqueuer) EnqueueJobs(ctx context.Context, ids ...uint) error {
	e.ids = append(e.ids, ids...)
	return nil
}

func record(id, author, username, ts string) collector.Record {
	return collector.Record{
		"id":        id,
		"content":   "hello " + id,
		"timestamp": ts,
		"author":    map[string]interface{}{"id": author, "username": username},
	}
}

// pagedFetcher serves one page per cursor and remembers the queries it saw.
func pagedFetcher(pages map[string]collector.Page, queries *[]collector.Query) collector.Fetcher {
	return collector.FetcherFunc(func(ctx context.Context, q collector.Query, cursor string) (collector.Page, error) {
		*queries = append(*queries, q)
		return pages[cursor], nil
	})
}

func setup(t *testing.T) (*gorm.DB, *model.Project) {
	db, _ := utils.CreateTempDB(t)
	project := &model.Project{Name: "community"}
	require.Nil(t, db.Create(project).Error)
	return db, project
}

func TestDiscoverGuilds(t *testing.T) {
	db, project := setup(t)
	ctx := context.Background()
	dir := &fakeDirectory{
		guilds: []clients.DiscordGuild{{ID: "100", Name: "guild"}},
		channels: map[string][]clients.DiscordChannel{
			"100": {{ID: "1", Name: "general"}, {ID: "2", Name: "dev"}},
		},
	}
	c := NewConnector(db, ingest.NewMachine(db), dir)

	created, err := c.Discover(ctx, project.Id, "")
	require.Nil(t, err)
	assert.Equal(t, 2, created)

	// Discovering again resolves to the same rows.
	created, err = c.Discover(ctx, project.Id, "")
	require.Nil(t, err)
	assert.Equal(t, 0, created)

	var guild model.DiscordGuild
	require.Nil(t, db.Preload("Channels").Take(&guild, 100).Error)
	assert.Equal(t, project.Id, guild.ProjectID)
	assert.Len(t, guild.Channels, 2)

	_, err = NewConnector(db, ingest.NewMachine(db), nil).Discover(ctx, project.Id, "")
	assert.NotNil(t, err)
}

func TestPipeline_CrawlMessages(t *testing.T) {
	db, project := setup(t)
	ctx := context.Background()
	queries := []collector.Query{}
	fetcher := pagedFetcher(map[string]collector.Page{
		"": {Records: []collector.Record{
			record("11", "7", "ann", "2022-01-01T00:00:01Z"),
			record("12", "8", "bob", "2022-01-01T00:00:02Z"),
		}, NextCursor: "12"},
		"12": {Records: []collector.Record{
			record("13", "7", "ann", "2022-01-01T00:00:03Z"),
			// Redelivered message is skipped.
			record("12", "8", "bob", "2022-01-01T00:00:02Z"),
		}},
	}, &queries)
	m := ingest.NewMachine(db, NewPipeline(db, fetcher, 1))
	enqueuer := &fakeEnqueuer{}
	m.SetEnqueuer(enqueuer)

	require.Nil(t, db.Create(&model.DiscordGuild{Id: 100, Name: "guild", ProjectID: project.Id}).Error)
	require.Nil(t, db.Create(&model.DiscordChannel{Id: 1, Name: "general", GuildID: 100}).Error)
	c := NewConnector(db, m, nil)

	jobs, err := c.CrawlAll(ctx)
	require.Nil(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, []uint{jobs[0].Id}, enqueuer.ids)
	assert.Equal(t, int64(1), *jobs[0].SourceID)
	assert.JSONEq(t, `{"guild_id": 100, "channel_id": 1}`, string(jobs[0].Config))

	require.Nil(t, m.Process(ctx, jobs[0].Id))
	assert.Equal(t, "1", queries[0].Target)
	assert.True(t, queries[0].Since.IsZero())

	var messages []model.DiscordMessage
	require.Nil(t, db.Order("id").Find(&messages).Error)
	require.Len(t, messages, 3)
	assert.Equal(t, int64(7), messages[0].UserID)
	assert.Equal(t, "hello 11", messages[0].Message)
	assert.Equal(t, int64(1), messages[0].ChannelID)

	var users []model.DiscordUser
	require.Nil(t, db.Order("id").Find(&users).Error)
	require.Len(t, users, 2)
	assert.Equal(t, "ann", model.StringValue(users[0].Username))
	assert.Equal(t, "bob", model.StringValue(users[1].Username))

	// The next crawl of the channel starts from its newest message.
	jobs, err = c.CrawlAll(ctx)
	require.Nil(t, err)
	require.Len(t, jobs, 1)
	assert.JSONEq(t, `{"guild_id": 100, "channel_id": 1, "since": "2022-01-01T00:00:03Z"}`, string(jobs[0].Config))
}

func TestConnector_SinceScopedToChannel(t *testing.T) {
	db, project := setup(t)
	ctx := context.Background()
	job := &model.Job{ProjectID: project.Id, Platform: model.PlatformDiscord, Config: []byte(`{}`)}
	require.Nil(t, db.Create(job).Error)
	for i, channel := range []int64{1, 2} {
		m, err := RecordToMessage(record("5"+string(rune('0'+i)), "7", "ann",
			time.Date(2022, 1, 1+i, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)), job.Id, channel)
		require.Nil(t, err)
		require.Nil(t, db.Create(&m).Error)
	}
	c := NewConnector(db, ingest.NewMachine(db), nil)

	since, err := c.Since(ctx, 1)
	require.Nil(t, err)
	assert.Equal(t, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), *since)
	since, err = c.Since(ctx, 3)
	require.Nil(t, err)
	assert.Nil(t, since)
}

func reactionEvent(t *testing.T, c *Connector, channel, message, user, emoji string) {
	require.Nil(t, c.SaveEvent(context.Background(), model.DiscordEventReactionAdd, map[string]interface{}{
		"channel_id": channel,
		"message_id": message,
		"user_id":    user,
		"emoji":      map[string]interface{}{"name": emoji},
	}))
}

func TestPipeline_PopulateReactions(t *testing.T) {
	db, project := setup(t)
	ctx := context.Background()
	job := &model.Job{ProjectID: project.Id, Platform: model.PlatformDiscord, Config: []byte(`{"channel_id": 1}`)}
	require.Nil(t, db.Create(job).Error)
	c := NewConnector(db, ingest.NewMachine(db), nil)

	reactionEvent(t, c, "1", "11", "7", "+1")
	// Same reaction delivered twice.
	reactionEvent(t, c, "1", "11", "7", "+1")
	reactionEvent(t, c, "1", "11", "8", "+1")
	// Other channel is left to its own job.
	reactionEvent(t, c, "2", "21", "7", "+1")
	require.Nil(t, c.SaveEvent(ctx, "MESSAGE_CREATE", map[string]interface{}{
		"channel_id": "1", "id": "12", "author": map[string]interface{}{"id": "9"},
	}))

	var events []model.DiscordEvent
	require.Nil(t, db.Order("id").Find(&events).Error)
	require.Len(t, events, 5)
	assert.Equal(t, int64(9), *events[4].UserID)
	var payload map[string]interface{}
	require.Nil(t, json.Unmarshal(events[0].Data, &payload))
	assert.Equal(t, "11", payload["message_id"])

	p := NewPipeline(db, nil, 10)
	require.Nil(t, p.PopulateReactions(ctx, job))
	require.Nil(t, p.PopulateReactions(ctx, job))

	var reactions []model.DiscordReaction
	require.Nil(t, db.Order("user_id").Find(&reactions).Error)
	require.Len(t, reactions, 2)
	assert.Equal(t, int64(11), reactions[0].MessageID)
	assert.Equal(t, int64(7), reactions[0].UserID)
	assert.Equal(t, "+1", reactions[0].Reaction)
	assert.Equal(t, job.Id, reactions[0].JobID)
	assert.Equal(t, int64(8), reactions[1].UserID)
}

func TestPipeline_StageNames(t *testing.T) {
	db, project := setup(t)
	m := ingest.NewMachine(db, NewPipeline(db, nil, 10))
	job, err := m.Create(context.Background(), project.Id, model.PlatformDiscord, nil,
		map[string]interface{}{"channel_id": 1})
	require.Nil(t, err)
	names, err := m.StageNames(context.Background(), job.Id)
	require.Nil(t, err)
	assert.Equal(t, []string{StageCrawlMessages, StagePopulateThreads, StagePopulateReactions, StagePopulateUsers}, names)
}

func TestConnector_CrawlSources(t *testing.T) {
	db, project := setup(t)
	ctx := context.Background()
	queries := []collector.Query{}
	m := ingest.NewMachine(db, NewPipeline(db, pagedFetcher(map[string]collector.Page{}, &queries), 1))
	enqueuer := &fakeEnqueuer{}
	m.SetEnqueuer(enqueuer)
	require.Nil(t, db.Create(&model.DiscordGuild{Id: 100, Name: "guild", ProjectID: project.Id}).Error)
	require.Nil(t, db.Create(&[]model.DiscordChannel{
		{Id: 1, Name: "general", GuildID: 100},
		{Id: 2, Name: "random", GuildID: 100},
	}).Error)
	c := NewConnector(db, m, nil)

	jobs, err := c.CrawlSources(ctx, []int64{2})
	require.Nil(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(2), *jobs[0].SourceID)
	assert.Equal(t, project.Id, jobs[0].ProjectID)
	assert.JSONEq(t, `{"guild_id": 100, "channel_id": 2}`, string(jobs[0].Config))

	_, err = c.CrawlSources(ctx, []int64{3})
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "unknown discord channel ids [3]")
	assert.Len(t, enqueuer.ids, 1)
}
