package github

import (
	"context"
	"strings"
	"testing"

	"github.com/Luismorlan/community/collector"
	"github.com/Luismorlan/community/collector/clients"
	"github.com/Luismorlan/community/ingest"
	"github.com/Luismorlan/community/model"
	"github.com/Luismorlan/community/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeLister struct{ repos []clients.GithubRepo }

func (l *fakeLister) ListRepos(ctx context.Context, owner string) ([]clients.GithubRepo, error) {
	return l.repos, nil
}

type fakeEnqueuer struct{ ids []uint }

func (e *fakeEnqueuer) EnqueueJobs(ctx context.Context, ids ...uint) error {
	e.ids = append(e.ids, ids...)
	return nil
}

// archive answers every kind with a single page and remembers the queries.
type archive struct {
	records map[string][]collector.Record
	queries []collector.Query
}

func (a *archive) Fetch(ctx context.Context, q collector.Query, cursor string) (collector.Page, error) {
	a.queries = append(a.queries, q)
	if q.Kind != clients.KindUserProfiles {
		return collector.Page{Records: a.records[q.Kind]}, nil
	}
	res := []collector.Record{}
	for _, r := range a.records[q.Kind] {
		for _, id := range strings.Split(q.Target, ",") {
			if r.String("user_id") == id {
				res = append(res, r)
			}
		}
	}
	return collector.Page{Records: res}, nil
}

func newArchive() *archive {
	return &archive{records: map[string][]collector.Record{
		clients.KindRepoEvents: {
			{"id": "1", "event": "PushEvent", "user_id": "10", "repo_id": "500", "timestamp": "2022-01-01T00:00:00Z"},
			{"id": "2", "event": "ForkEvent", "user_id": "11", "forkrepo_id": "500", "timestamp": "2022-01-02T00:00:00Z"},
		},
		clients.KindRepoRelations: {
			{"user_id": "12", "repo_id": "500", "starred": true, "watching": true, "forked": false,
				"pr_raised": true, "timestamp": "2022-01-03T00:00:00Z"},
		},
		clients.KindRepoMessages: {
			{"id": "100", "user_id": "10", "repo_id": "500", "title": "bug", "body": "it breaks", "timestamp": "2022-01-04T00:00:00Z"},
			{"id": "101", "user_id": "13", "repo_id": "500", "issue_id": "100", "body": "same here", "timestamp": "2022-01-05T00:00:00Z"},
		},
		clients.KindUserProfiles: {
			{"user_id": "10", "login": "ann", "name": "Ann", "company": "acme"},
			{"user_id": "13", "login": "bob"},
		},
	}}
}

func setup(t *testing.T) (*gorm.DB, *model.Project) {
	db, _ := utils.CreateTempDB(t)
	project := &model.Project{Name: "community"}
	require.Nil(t, db.Create(project).Error)
	return db, project
}

func TestDiscoverRepos(t *testing.T) {
	db, project := setup(t)
	ctx := context.Background()
	lister := &fakeLister{repos: []clients.GithubRepo{{ID: 500, Owner: "acme", Name: "widget"}}}
	c := NewConnector(db, ingest.NewMachine(db), lister)

	created, err := c.Discover(ctx, project.Id, "acme")
	require.Nil(t, err)
	assert.Equal(t, 1, created)
	created, err = c.Discover(ctx, project.Id, "acme")
	require.Nil(t, err)
	assert.Equal(t, 0, created)

	_, err = c.Discover(ctx, project.Id, "")
	assert.NotNil(t, err)
}

func TestPipeline_Process(t *testing.T) {
	db, project := setup(t)
	ctx := context.Background()
	a := newArchive()
	m := ingest.NewMachine(db, NewPipeline(db, a, 1))
	enqueuer := &fakeEnqueuer{}
	m.SetEnqueuer(enqueuer)
	require.Nil(t, db.Create(&model.GithubRepo{Id: 500, Owner: "acme", Name: "widget", ProjectID: project.Id}).Error)
	c := NewConnector(db, m, nil)

	jobs, err := c.CrawlAll(ctx)
	require.Nil(t, err)
	require.Len(t, jobs, 1)
	assert.JSONEq(t, `{"id": 500, "owner": "acme", "name": "widget"}`, string(jobs[0].Config))
	assert.Equal(t, []uint{jobs[0].Id}, enqueuer.ids)

	require.Nil(t, m.Process(ctx, jobs[0].Id))

	var events []model.GithubEvent
	require.Nil(t, db.Order("id").Find(&events).Error)
	require.Len(t, events, 2)
	assert.Equal(t, "ForkEvent", events[1].Event)
	assert.JSONEq(t, `{"forkrepo_id": "500"}`, string(events[1].Data))

	var relations []model.GithubRelation
	require.Nil(t, db.Order("relation_type").Find(&relations).Error)
	require.Len(t, relations, 2)
	assert.Equal(t, model.RelationTypeStarred, relations[0].RelationType)
	assert.Equal(t, model.RelationTypeWatching, relations[1].RelationType)
	assert.Equal(t, int64(12), relations[0].FromNodeID)
	assert.Equal(t, int64(500), relations[0].ToNodeID)
	assert.JSONEq(t, `{"pr_raised": true}`, string(relations[0].Data))

	var messages []model.GithubMessage
	require.Nil(t, db.Order("id").Find(&messages).Error)
	require.Len(t, messages, 2)
	assert.Equal(t, "bug", messages[0].Message)
	assert.Equal(t, "same here", messages[1].Message)

	var users []model.GithubUser
	require.Nil(t, db.Order("id").Find(&users).Error)
	require.Len(t, users, 4)
	assert.Equal(t, []int64{10, 11, 12, 13}, []int64{users[0].Id, users[1].Id, users[2].Id, users[3].Id})
	assert.Equal(t, "ann", model.StringValue(users[0].Username))
	assert.Equal(t, "Ann", model.StringValue(users[0].Name))
	assert.JSONEq(t, `{"company": "acme"}`, string(users[0].Data))
	assert.Nil(t, users[1].Username)
	assert.Equal(t, "bob", model.StringValue(users[3].Username))
	assert.Nil(t, users[3].Name)

	// Re-processing converges on the same rows.
	require.Nil(t, m.Process(ctx, jobs[0].Id))
	var count int64
	require.Nil(t, db.Model(&model.GithubUser{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)
	require.Nil(t, db.Model(&model.GithubRelation{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	// The next job reads from the newest message of the repo.
	jobs, err = c.CrawlAll(ctx)
	require.Nil(t, err)
	assert.JSONEq(t, `{"id": 500, "owner": "acme", "name": "widget", "since": "2022-01-05T00:00:00Z"}`,
		string(jobs[0].Config))
	stored, err := m.Get(ctx, jobs[0].Id)
	require.Nil(t, err)
	require.Nil(t, m.RunStage(ctx, stored.Id, StagePopulateEvents))
	last := a.queries[len(a.queries)-1]
	assert.Equal(t, "500", last.Target)
	assert.Equal(t, "2022-01-05T00:00:00Z", last.Since.Format("2006-01-02T15:04:05Z07:00"))
}

func TestRecordToRelations_NoFlags(t *testing.T) {
	relations, err := RecordToRelations(collector.Record{
		"user_id": 1.0, "repo_id": 2.0, "timestamp": "2022-01-01T00:00:00Z",
	}, 1)
	require.Nil(t, err)
	assert.Empty(t, relations)

	_, err = RecordToRelations(collector.Record{"repo_id": 2.0}, 1)
	assert.NotNil(t, err)
}

func TestConnector_CrawlSources(t *testing.T) {
	db, project := setup(t)
	ctx := context.Background()
	m := ingest.NewMachine(db, NewPipeline(db, newArchive(), 1))
	enqueuer := &fakeEnqueuer{}
	m.SetEnqueuer(enqueuer)
	require.Nil(t, db.Create(&[]model.GithubRepo{
		{Id: 500, Owner: "acme", Name: "widget", ProjectID: project.Id},
		{Id: 501, Owner: "acme", Name: "gadget", ProjectID: project.Id},
	}).Error)
	c := NewConnector(db, m, nil)

	jobs, err := c.CrawlSources(ctx, []int64{501})
	require.Nil(t, err)
	require.Len(t, jobs, 1)
	assert.JSONEq(t, `{"id": 501, "owner": "acme", "name": "gadget"}`, string(jobs[0].Config))
	assert.Equal(t, []uint{jobs[0].Id}, enqueuer.ids)

	_, err = c.CrawlSources(ctx, []int64{500, 999})
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "unknown github repo ids [999]")
	var count int64
	require.Nil(t, db.Model(&model.Job{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
