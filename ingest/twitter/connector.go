package twitter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Luismorlan/community/collector/clients"
	"github.com/Luismorlan/community/ingest"
	"github.com/Luismorlan/community/model"
	"github.com/Luismorlan/community/store"
	"github.com/Luismorlan/community/utils"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ProfileResolver turns a handle into its numeric user id.
type ProfileResolver interface {
	GetProfile(ctx context.Context, handle string) (clients.TwitterProfile, error)
}

type Connector struct {
	db       *gorm.DB
	machine  *ingest.Machine
	profiles ProfileResolver
}

func NewConnector(db *gorm.DB, machine *ingest.Machine, profiles ProfileResolver) *Connector {
	return &Connector{db: db, machine: machine, profiles: profiles}
}

func (c *Connector) Discover(ctx context.Context, projectID uint, handle string) (int, error) {
	_, created, err := c.AddHandle(ctx, projectID, handle)
	if created {
		return 1, err
	}
	return 0, err
}

// AddHandle registers handle under project. A handle already known keeps its
// original project.
func (c *Connector) AddHandle(ctx context.Context, projectID uint, handle string) (*model.TwitterHandle, bool, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return nil, false, errors.New("twitter handle is empty")
	}
	profile, err := c.profiles.GetProfile(ctx, handle)
	if err != nil {
		return nil, false, err
	}
	h := &model.TwitterHandle{Id: profile.UserID, Handle: handle, ProjectID: projectID}
	created, err := store.GetOrCreate(ctx, c.db, h, map[string]interface{}{"id": profile.UserID})
	if err != nil {
		return nil, false, err
	}
	return h, created, nil
}

// CrawlMessages creates and enqueues a handle_messages job for handle.
func (c *Connector) CrawlMessages(ctx context.Context, handle *model.TwitterHandle) (*model.Job, error) {
	config := map[string]interface{}{"query": handle.Handle, "crawl_type": CrawlTypeHandleMessages}
	since, err := c.Since(ctx, handle.Id)
	if err != nil {
		return nil, err
	}
	if since != nil {
		config["since"] = *since
	}
	return c.machine.AddJob(ctx, handle.ProjectID, model.PlatformTwitter, &handle.Id, config)
}

// Since is the newest tweet written by an earlier handle_messages job of the
// handle.
func (c *Connector) Since(ctx context.Context, handleID int64) (*time.Time, error) {
	crawlType := utils.JSONValueExpr(c.db, "jobs.config", "crawl_type")
	query := c.db.Model(&model.Tweet{}).
		Joins("JOIN jobs ON jobs.id = tweets.job_id").
		Where("jobs.source_id = ? AND jobs.platform = ?", handleID, model.PlatformTwitter).
		Where(fmt.Sprintf("%s = ?", crawlType), CrawlTypeHandleMessages)
	return ingest.LatestTimestamp(ctx, query, "tweets.timestamp")
}

// CrawlHashtag creates and enqueues a hashtag job. Zero since and until leave
// the window open.
func (c *Connector) CrawlHashtag(ctx context.Context, projectID uint, tag string, since, until time.Time) (*model.Job, error) {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	if tag == "" {
		return nil, errors.New("hashtag is empty")
	}
	config := map[string]interface{}{"query": tag, "crawl_type": CrawlTypeHashtag}
	if !since.IsZero() {
		config["since"] = since
	}
	if !until.IsZero() {
		config["until"] = until
	}
	return c.machine.AddJob(ctx, projectID, model.PlatformTwitter, nil, config)
}

// CrawlSources creates and enqueues a job for every listed twitter handle.
func (c *Connector) CrawlSources(ctx context.Context, ids []int64) ([]*model.Job, error) {
	var handles []model.TwitterHandle
	if err := c.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&handles).Error; err != nil {
		return nil, errors.Wrap(err, "fail to load handles")
	}
	found := make([]int64, 0, len(handles))
	for _, source := range handles {
		found = append(found, source.Id)
	}
	if err := ingest.CheckSources("twitter handle", ids, found); err != nil {
		return nil, err
	}
	return c.crawl(ctx, handles)
}

func (c *Connector) CrawlAll(ctx context.Context) ([]*model.Job, error) {
	var handles []model.TwitterHandle
	if err := c.db.WithContext(ctx).Order("id").Find(&handles).Error; err != nil {
		return nil, errors.Wrap(err, "fail to load twitter handles")
	}
	return c.crawl(ctx, handles)
}

func (c *Connector) crawl(ctx context.Context, sources []model.TwitterHandle) ([]*model.Job, error) {
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
