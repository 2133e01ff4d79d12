// Package bootstrap wires the store, platform clients, pipelines and task
// executor together for the binaries.
package bootstrap

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/Luismorlan/community/app_config"
	"github.com/Luismorlan/community/collector"
	"github.com/Luismorlan/community/collector/clients"
	"github.com/Luismorlan/community/identity"
	"github.com/Luismorlan/community/ingest"
	"github.com/Luismorlan/community/ingest/discord"
	"github.com/Luismorlan/community/ingest/github"
	"github.com/Luismorlan/community/ingest/twitter"
	"github.com/Luismorlan/community/model"
	"github.com/Luismorlan/community/panoptic/modules"
	"github.com/Luismorlan/community/utils"
	Logger "github.com/Luismorlan/community/utils/log"
	twitterscraper "github.com/n0madic/twitter-scraper"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Credentials read from env. A platform whose credentials are missing gets no
// pipeline, its jobs fail with "no pipeline registered".
const (
	EnvDiscordBotToken    = "DISCORD_BOT_TOKEN"
	EnvGithubToken        = "GITHUB_TOKEN"
	EnvArchiveAddresses   = "ES_ADDRESSES"
	EnvArchiveUsername    = "ES_USERNAME"
	EnvArchivePassword    = "ES_PASSWORD"
	EnvTwitterBearerToken = "TWITTER_BEARER_TOKEN"
)

type App struct {
	Config     app_config.CommunityAppConfig
	DB         *gorm.DB
	Machine    *ingest.Machine
	Identity   *identity.Engine
	Connectors map[model.Platform]ingest.Connector
	Discord    *discord.Connector
	Executor   *modules.TaskExecutor
}

// NewApp connects to the database and builds every configured platform.
func NewApp(ctx context.Context, config app_config.CommunityAppConfig) (*App, error) {
	db, err := utils.GetDBConnection()
	if err != nil {
		return nil, errors.Wrap(err, "fail to connect to database")
	}
	return NewAppWithDB(ctx, config, db, cache(ctx, config))
}

// NewAppWithDB builds the App on an open database. cache may be nil.
func NewAppWithDB(ctx context.Context, config app_config.CommunityAppConfig, db *gorm.DB, cache collector.Cache) (*App, error) {
	app := &App{
		Config:     config,
		DB:         db,
		Machine:    ingest.NewMachine(db),
		Identity:   identity.NewEngine(db, nil),
		Connectors: map[model.Platform]ingest.Connector{},
	}

	wrap := func(f collector.Fetcher, prefix string) collector.Fetcher {
		return collector.Wrap(f, cache,
			time.Duration(config.FETCH_CACHE_TTL_SECOND)*time.Second, prefix,
			config.FETCH_MAX_RETRIES,
			time.Duration(config.FETCH_INITIAL_BACKOFF_MS)*time.Millisecond)
	}

	if token := os.Getenv(EnvDiscordBotToken); token != "" {
		client, err := clients.NewDiscordClient(token)
		if err != nil {
			return nil, errors.Wrap(err, "fail to create discord client")
		}
		app.Machine.Register(discord.NewPipeline(db, wrap(client, "discord:"), config.BULK_CREATE_CHUNK_SIZE))
		app.Discord = discord.NewConnector(db, app.Machine, client)
	} else {
		// Live events can still be stored without a bot token.
		app.Discord = discord.NewConnector(db, app.Machine, nil)
		Logger.Log.Warnf("%s not set, discord crawling disabled", EnvDiscordBotToken)
	}
	app.Connectors[model.PlatformDiscord] = app.Discord

	if addresses := os.Getenv(EnvArchiveAddresses); addresses != "" {
		archive, err := clients.NewGithubArchiveClient(clients.ArchiveConfig{
			Addresses: strings.Split(addresses, ","),
			Username:  os.Getenv(EnvArchiveUsername),
			Password:  os.Getenv(EnvArchivePassword),
		})
		if err != nil {
			return nil, err
		}
		app.Machine.Register(github.NewPipeline(db, wrap(archive, "github:"), config.GITHUB_BULK_CREATE_CHUNK_SIZE))
		app.Connectors[model.PlatformGithub] = github.NewConnector(db, app.Machine,
			clients.NewGithubRepoClient(ctx, os.Getenv(EnvGithubToken)))
	} else {
		Logger.Log.Warnf("%s not set, github crawling disabled", EnvArchiveAddresses)
	}

	if token := os.Getenv(EnvTwitterBearerToken); token != "" {
		client := clients.NewTwitterClient(twitterscraper.New(), clients.NewBearerHttpClient(token, nil))
		app.Machine.Register(twitter.NewPipeline(db, wrap(client, "twitter:"),
			config.BULK_CREATE_CHUNK_SIZE, config.PROFILE_CHUNK_SIZE))
		app.Connectors[model.PlatformTwitter] = twitter.NewConnector(db, app.Machine, client)
	} else {
		Logger.Log.Warnf("%s not set, twitter crawling disabled", EnvTwitterBearerToken)
	}

	app.Executor = modules.NewTaskExecutor(db, app.Machine, app.Identity, app.Connectors, app.Discord)
	return app, nil
}

// cache returns the redis response cache when caching is enabled and redis is
// reachable.
func cache(ctx context.Context, config app_config.CommunityAppConfig) collector.Cache {
	if config.FETCH_CACHE_TTL_SECOND <= 0 || os.Getenv("REDIS_HOST") == "" {
		return nil
	}
	c, err := collector.GetRedisCache(ctx)
	if err != nil {
		Logger.Log.WithError(err).Warn("response cache disabled")
		return nil
	}
	return c
}

// Connector returns the connector of platform, if one is configured.
func (a *App) Connector(platform model.Platform) (ingest.Connector, error) {
	c, ok := a.Connectors[platform]
	if !ok {
		return nil, errors.Errorf("%s is not configured", platform)
	}
	return c, nil
}

// Close releases the database connections.
func (a *App) Close() {
	if err := utils.CloseDB(a.DB); err != nil {
		Logger.Log.WithError(err).Warn("fail to close database")
	}
}
