package app_config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// CommunityAppConfig tunes the worker, scheduler and ingestion pipelines.
type CommunityAppConfig struct {
	// Number of tasks a worker runs concurrently.
	WORKER_POOL_SIZE int `yaml:"WORKER_POOL_SIZE"`
	// Records per bulk write for Twitter and Discord pipelines.
	BULK_CREATE_CHUNK_SIZE int `yaml:"BULK_CREATE_CHUNK_SIZE"`
	// Records per bulk write for the GitHub pipeline, archive pages are large.
	GITHUB_BULK_CREATE_CHUNK_SIZE int `yaml:"GITHUB_BULK_CREATE_CHUNK_SIZE"`
	// User ids per profile lookup call.
	PROFILE_CHUNK_SIZE int `yaml:"PROFILE_CHUNK_SIZE"`
	// Crawl every known source every other interval. 0 disables it.
	CRAWL_EVERY_SECOND int64 `yaml:"CRAWL_EVERY_SECOND"`
	// Run populate_users and merge_all for every project every other
	// interval. 0 disables it.
	MERGE_EVERY_SECOND int64 `yaml:"MERGE_EVERY_SECOND"`
	// Attempts per fetch call before a transient failure aborts the stage.
	FETCH_MAX_RETRIES uint64 `yaml:"FETCH_MAX_RETRIES"`
	// Initial backoff between fetch attempts in milliseconds.
	FETCH_INITIAL_BACKOFF_MS int64 `yaml:"FETCH_INITIAL_BACKOFF_MS"`
	// How long fetched pages stay in the response cache. 0 disables caching.
	FETCH_CACHE_TTL_SECOND int64 `yaml:"FETCH_CACHE_TTL_SECOND"`
}

// DefaultCommunityAppConfig is used for any key the yaml file leaves out.
func DefaultCommunityAppConfig() CommunityAppConfig {
	return CommunityAppConfig{
		WORKER_POOL_SIZE:              4,
		BULK_CREATE_CHUNK_SIZE:        100,
		GITHUB_BULK_CREATE_CHUNK_SIZE: 1000,
		PROFILE_CHUNK_SIZE:            100,
		CRAWL_EVERY_SECOND:            24 * 3600,
		MERGE_EVERY_SECOND:            3600,
		FETCH_MAX_RETRIES:             5,
		FETCH_INITIAL_BACKOFF_MS:      500,
		FETCH_CACHE_TTL_SECOND:        0,
	}
}

func ParseCommunityAppConfig(path string) (CommunityAppConfig, error) {
	c := DefaultCommunityAppConfig()
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrapf(err, "fail to read app config %s", path)
	}
	if err = yaml.Unmarshal(yamlFile, &c); err != nil {
		return c, errors.Wrapf(err, "fail to unmarshal app config %s", path)
	}
	return c, nil
}
