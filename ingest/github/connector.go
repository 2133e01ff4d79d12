package github

import (
	"context"
	"time"

	"github.com/Luismorlan/community/collector/clients"
	"github.com/Luismorlan/community/ingest"
	"github.com/Luismorlan/community/model"
	"github.com/Luismorlan/community/store"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// RepoLister enumerates the repositories of an owner.
type RepoLister interface {
	ListRepos(ctx context.Context, owner string) ([]clients.GithubRepo, error)
}

type Connector struct {
	db      *gorm.DB
	machine *ingest.Machine
	repos   RepoLister
}

func NewConnector(db *gorm.DB, machine *ingest.Machine, repos RepoLister) *Connector {
	return &Connector{db: db, machine: machine, repos: repos}
}

func (c *Connector) Discover(ctx context.Context, projectID uint, owner string) (int, error) {
	return c.DiscoverRepos(ctx, projectID, owner)
}

// DiscoverRepos registers every repository of owner under project and returns
// how many were new.
func (c *Connector) DiscoverRepos(ctx context.Context, projectID uint, owner string) (int, error) {
	if owner == "" {
		return 0, errors.New("github discovery needs an owner")
	}
	repos, err := c.repos.ListRepos(ctx, owner)
	if err != nil {
		return 0, errors.Wrapf(err, "fail to list repositories of %s", owner)
	}
	total := 0
	for _, r := range repos {
		repo := model.GithubRepo{Id: r.ID, Owner: r.Owner, Name: r.Name, ProjectID: projectID}
		created, err := store.GetOrCreate(ctx, c.db, &repo, map[string]interface{}{"id": r.ID})
		if err != nil {
			return total, err
		}
		if created {
			total++
		}
	}
	return total, nil
}

// CrawlMessages creates and enqueues a job for repo.
func (c *Connector) CrawlMessages(ctx context.Context, repo *model.GithubRepo) (*model.Job, error) {
	config := map[string]interface{}{"id": repo.Id, "owner": repo.Owner, "name": repo.Name}
	since, err := c.Since(ctx, repo.Id)
	if err != nil {
		return nil, err
	}
	if since != nil {
		config["since"] = *since
	}
	return c.machine.AddJob(ctx, repo.ProjectID, model.PlatformGithub, &repo.Id, config)
}

// Since is the newest message written by an earlier job of the repo.
func (c *Connector) Since(ctx context.Context, repoID int64) (*time.Time, error) {
	query := c.db.Model(&model.GithubMessage{}).
		Joins("JOIN jobs ON jobs.id = github_messages.job_id").
		Where("jobs.source_id = ? AND jobs.platform = ?", repoID, model.PlatformGithub)
	return ingest.LatestTimestamp(ctx, query, "github_messages.timestamp")
}

// CrawlSources creates and enqueues a job for every listed github repo.
func (c *Connector) CrawlSources(ctx context.Context, ids []int64) ([]*model.Job, error) {
	var repos []model.GithubRepo
	if err := c.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&repos).Error; err != nil {
		return nil, errors.Wrap(err, "fail to load repos")
	}
	found := make([]int64, 0, len(repos))
	for _, source := range repos {
		found = append(found, source.Id)
	}
	if err := ingest.CheckSources("github repo", ids, found); err != nil {
		return nil, err
	}
	return c.crawl(ctx, repos)
}

func (c *Connector) CrawlAll(ctx context.Context) ([]*model.Job, error) {
	var repos []model.GithubRepo
	if err := c.db.WithContext(ctx).Order("id").Find(&repos).Error; err != nil {
		return nil, errors.Wrap(err, "fail to load github repos")
	}
	return c.crawl(ctx, repos)
}

func (c *Connector) crawl(ctx context.Context, sources []model.GithubRepo) ([]*model.Job, error) {
	jobs := []*model.Job{}
	for i := range sources {
		job, err := c.CrawlMessages(ctx, &sources[i])
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
