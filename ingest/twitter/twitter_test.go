package twitter

import (
	"context"
	"strings"
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

type fakeProfiles map[string]int64

func (f fakeProfiles) GetProfile(ctx context.Context, handle string) (clients.TwitterProfile, error) {
	return clients.TwitterProfile{UserID: f[handle], Username: handle}, nil
}

type fakeEnqueuer struct{ ids []uint }

func (e *fakeEnqueuer) EnqueueJobs(ctx context.Context, ids ...uint) error {
	e.ids = append(e.ids, ids...)
	return nil
}

func tweet(id, user, username string, ts int64) collector.Record {
	return collector.Record{"id": id, "user_id": user, "username": username, "text": "tweet " + id, "timestamp": ts}
}

func user(id, username, name string) collector.Record {
	return collector.Record{"id": id, "username": username, "name": name}
}

// fakeTwitter serves single pages keyed by kind and target.
type fakeTwitter struct {
	pages   map[string][]collector.Record
	queries []collector.Query
}

func (f *fakeTwitter) Fetch(ctx context.Context, q collector.Query, cursor string) (collector.Page, error) {
	f.queries = append(f.queries, q)
	if q.Kind != clients.KindUsers {
		return collector.Page{Records: f.pages[q.Kind+":"+q.Target]}, nil
	}
	res := []collector.Record{}
	for _, id := range strings.Split(q.Target, ",") {
		res = append(res, f.pages[q.Kind+":"+id]...)
	}
	return collector.Page{Records: res}, nil
}

func newFakeTwitter() *fakeTwitter {
	day := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	return &fakeTwitter{pages: map[string][]collector.Record{
		clients.KindUserTweets + ":acme": {
			tweet("1", "100", "acme", day),
			tweet("2", "100", "acme", day+3600),
		},
		clients.KindSearchTweets + ":@acme": {
			tweet("3", "200", "ann", day+86400),
			// The handle's own reply shows up in both crawls.
			tweet("2", "100", "acme", day+3600),
		},
		clients.KindSearchTweets + ":#golang": {
			tweet("4", "300", "bob", day),
		},
		clients.KindLikingUsers + ":1": {user("200", "ann", "Ann"), user("201", "cid", "Cid")},
		clients.KindLikingUsers + ":3": {user("100", "acme", "Acme")},
		clients.KindFollowers + ":100": {user("201", "cid", "Cid"), user("202", "dee", "")},
		clients.KindUsers + ":100":     {user("100", "acme", "Acme Inc")},
		clients.KindUsers + ":200":     {user("200", "ann", "Ann A")},
		clients.KindUsers + ":201":     {user("201", "cid", "Cid C")},
		clients.KindUsers + ":300":     {user("300", "bob", "Bob")},
	}}
}

func setup(t *testing.T, f collector.Fetcher) (*gorm.DB, *model.Project, *ingest.Machine, *fakeEnqueuer) {
	db, _ := utils.CreateTempDB(t)
	project := &model.Project{Name: "community"}
	require.Nil(t, db.Create(project).Error)
	m := ingest.NewMachine(db, NewPipeline(db, f, 2, 1))
	enqueuer := &fakeEnqueuer{}
	m.SetEnqueuer(enqueuer)
	return db, project, m, enqueuer
}

func TestAddHandle(t *testing.T) {
	db, project, m, _ := setup(t, newFakeTwitter())
	c := NewConnector(db, m, fakeProfiles{"acme": 100})

	created, err := c.Discover(context.Background(), project.Id, "@acme")
	require.Nil(t, err)
	assert.Equal(t, 1, created)
	created, err = c.Discover(context.Background(), project.Id, "acme")
	require.Nil(t, err)
	assert.Equal(t, 0, created)

	var handle model.TwitterHandle
	require.Nil(t, db.Take(&handle, 100).Error)
	assert.Equal(t, "acme", handle.Handle)

	_, _, err = c.AddHandle(context.Background(), project.Id, " @ ")
	assert.NotNil(t, err)
}

func TestPipeline_HandleMessages(t *testing.T) {
	f := newFakeTwitter()
	db, project, m, enqueuer := setup(t, f)
	ctx := context.Background()
	c := NewConnector(db, m, fakeProfiles{"acme": 100})
	_, _, err := c.AddHandle(ctx, project.Id, "acme")
	require.Nil(t, err)

	jobs, err := c.CrawlAll(ctx)
	require.Nil(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, []uint{jobs[0].Id}, enqueuer.ids)
	assert.JSONEq(t, `{"query": "acme", "crawl_type": "handle_messages"}`, string(jobs[0].Config))

	names, err := m.StageNames(ctx, jobs[0].Id)
	require.Nil(t, err)
	assert.Equal(t, []string{StageCrawlTweets, StagePopulateThreads, StageCrawlReactions,
		StageCrawlRelations, StagePopulateUsers, StageCrawlProfiles}, names)

	require.Nil(t, m.Process(ctx, jobs[0].Id))

	var tweets []model.Tweet
	require.Nil(t, db.Order("id").Find(&tweets).Error)
	require.Len(t, tweets, 3)
	assert.Equal(t, "tweet 1", tweets[0].Message)
	assert.Equal(t, time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC), tweets[2].Timestamp.UTC())

	var reactions []model.TwitterReaction
	require.Nil(t, db.Order("message_id, user_id").Find(&reactions).Error)
	require.Len(t, reactions, 3)
	assert.Equal(t, model.ReactionTypeLike, reactions[0].Reaction)
	assert.Equal(t, int64(1), reactions[0].MessageID)
	assert.Equal(t, int64(200), reactions[0].UserID)

	var relations []model.TwitterRelation
	require.Nil(t, db.Order("from_node_id").Find(&relations).Error)
	require.Len(t, relations, 2)
	assert.Equal(t, int64(100), relations[0].ToNodeID)
	assert.Equal(t, model.RelationTypeFollower, relations[0].RelationType)

	var users []model.TwitterUser
	require.Nil(t, db.Order("id").Find(&users).Error)
	require.Len(t, users, 4)
	byID := map[int64]model.TwitterUser{}
	for _, u := range users {
		byID[u.Id] = u
	}
	assert.Equal(t, "acme", model.StringValue(byID[100].Username))
	assert.Equal(t, "Acme Inc", model.StringValue(byID[100].Name))
	assert.Equal(t, "Cid C", model.StringValue(byID[201].Name))
	// No profile came back for 202, the follower payload username stays.
	assert.Equal(t, "dee", model.StringValue(byID[202].Username))
	assert.Nil(t, byID[202].Name)

	// Likes and followers converge when the job runs again.
	require.Nil(t, m.Process(ctx, jobs[0].Id))
	var count int64
	require.Nil(t, db.Model(&model.TwitterReaction{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
	require.Nil(t, db.Model(&model.TwitterRelation{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	// The next handle crawl starts from the newest tweet's day.
	jobs, err = c.CrawlAll(ctx)
	require.Nil(t, err)
	assert.JSONEq(t, `{"query": "acme", "crawl_type": "handle_messages", "since": "2022-01-02"}`,
		string(jobs[0].Config))
}

func TestPipeline_Hashtag(t *testing.T) {
	f := newFakeTwitter()
	db, project, m, _ := setup(t, f)
	ctx := context.Background()
	c := NewConnector(db, m, fakeProfiles{})

	job, err := c.CrawlHashtag(ctx, project.Id, "#golang",
		time.Date(2022, 1, 1, 10, 0, 0, 0, time.UTC), time.Time{})
	require.Nil(t, err)
	assert.JSONEq(t, `{"query": "golang", "crawl_type": "hashtag", "since": "2022-01-01"}`, string(job.Config))
	assert.Nil(t, job.SourceID)

	require.Nil(t, m.Process(ctx, job.Id))
	assert.Equal(t, "#golang", f.queries[0].Target)
	assert.Equal(t, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), f.queries[0].Since)
	for _, q := range f.queries {
		assert.NotEqual(t, clients.KindLikingUsers, q.Kind)
	}

	var users []model.TwitterUser
	require.Nil(t, db.Find(&users).Error)
	require.Len(t, users, 1)
	assert.Equal(t, "Bob", model.StringValue(users[0].Name))

	// Hashtag tweets never move the since of a handle.
	since, err := c.Since(ctx, 300)
	require.Nil(t, err)
	assert.Nil(t, since)
}

func TestPipeline_UnsupportedCrawlType(t *testing.T) {
	db, project, m, _ := setup(t, newFakeTwitter())
	job, err := m.Create(context.Background(), project.Id, model.PlatformTwitter, nil,
		map[string]interface{}{"query": "x", "crawl_type": "replies"})
	require.Nil(t, err)
	err = m.Process(context.Background(), job.Id)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "unsupported crawl_type")

	var stored model.Job
	require.Nil(t, db.Take(&stored, job.Id).Error)
	assert.Equal(t, model.JobStatusRunning, stored.Status)
}

func TestConnector_CrawlSources(t *testing.T) {
	db, project, m, enqueuer := setup(t, newFakeTwitter())
	ctx := context.Background()
	c := NewConnector(db, m, fakeProfiles{"acme": 100, "globex": 200})
	for _, handle := range []string{"acme", "globex"} {
		_, _, err := c.AddHandle(ctx, project.Id, handle)
		require.Nil(t, err)
	}

	jobs, err := c.CrawlSources(ctx, []int64{200})
	require.Nil(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(200), *jobs[0].SourceID)
	assert.JSONEq(t, `{"query": "globex", "crawl_type": "handle_messages"}`, string(jobs[0].Config))
	assert.Equal(t, []uint{jobs[0].Id}, enqueuer.ids)

	_, err = c.CrawlSources(ctx, []int64{300, 100})
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "unknown twitter handle ids [300]")
	assert.Len(t, enqueuer.ids, 1)
}
