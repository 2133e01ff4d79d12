// Package ingest drives crawl jobs through their platform stages and derives
// platform users from what the stages wrote.
package ingest

import (
	"context"

	"github.com/Luismorlan/community/model"
)

// StageFunc runs one step of a job. It must be safe to run again on the same
// job.
type StageFunc func(ctx context.Context, job *model.Job) error

type Stage struct {
	Name string
	Run  StageFunc
}

// Pipeline is what a platform plugs into the Machine.
type Pipeline interface {
	Platform() model.Platform
	// NormalizeConfig rewrites crawl parameters into the form persisted on the
	// job, e.g. the date format of since and until.
	NormalizeConfig(config map[string]interface{}) (map[string]interface{}, error)
	// Stages returns the ordered stage list for job.
	Stages(job *model.Job) ([]Stage, error)
}

// Enqueuer hands jobs to the task queue, some worker eventually calls
// Machine.Process for each of them.
type Enqueuer interface {
	EnqueueJobs(ctx context.Context, jobIDs ...uint) error
}

// Connector is the shared surface of every platform's source connector.
type Connector interface {
	// CrawlAll creates and enqueues a job for every known source of the
	// platform, returning the created jobs.
	CrawlAll(ctx context.Context) ([]*model.Job, error)
	// CrawlSources is CrawlAll restricted to the given source ids: channel ids
	// for Discord, repo ids for GitHub and handle ids for Twitter. Unknown ids
	// fail before any job is created.
	CrawlSources(ctx context.Context, ids []int64) ([]*model.Job, error)
	// Discover registers the crawl targets reachable for project. target is
	// platform specific, e.g. the owner for GitHub and unused for Discord.
	Discover(ctx context.Context, projectID uint, target string) (int, error)
}
