package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Luismorlan/community/ingest/twitter"
	"github.com/Luismorlan/community/model"
	"github.com/Luismorlan/community/panoptic"
	"github.com/Luismorlan/community/utils"
	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func crawlCommand() *cobra.Command {
	var (
		hashtag   string
		projectID uint
		since     string
		until     string
		sourceIDs []int64
	)
	cmd := &cobra.Command{
		Use:       "crawl {discord|github|twitter}",
		Short:     "Create and process a crawl job for every known or listed source of a platform",
		ValidArgs: []string{"discord", "github", "twitter"},
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := model.ParsePlatform(args[0])
			if err != nil {
				return err
			}
			if hashtag != "" && platform != model.PlatformTwitter {
				return fmt.Errorf("--hashtag only applies to twitter")
			}
			if hashtag != "" && projectID == 0 {
				return fmt.Errorf("--hashtag needs a non zero --project")
			}
			app, _, err := newInlineApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			connector, err := app.Connector(platform)
			if err != nil {
				return err
			}

			if hashtag != "" {
				tw, ok := connector.(*twitter.Connector)
				if !ok {
					return fmt.Errorf("twitter connector has type %T", connector)
				}
				sinceTime, untilTime, err := parseRange(since, until)
				if err != nil {
					return err
				}
				job, err := tw.CrawlHashtag(cmd.Context(), projectID, hashtag, sinceTime, untilTime)
				if err != nil {
					return err
				}
				cmd.Printf("processed hashtag job %d\n", job.Id)
				return nil
			}

			var jobs []*model.Job
			if len(sourceIDs) > 0 {
				jobs, err = connector.CrawlSources(cmd.Context(), sourceIDs)
			} else {
				jobs, err = connector.CrawlAll(cmd.Context())
			}
			if err != nil {
				return err
			}
			cmd.Printf("processed %d %s jobs\n", len(jobs), platform)
			return nil
		},
	}
	cmd.Flags().StringVar(&hashtag, "hashtag", "", "crawl this twitter hashtag instead of the known handles")
	cmd.Flags().UintVar(&projectID, "project", 0, "project the hashtag job belongs to")
	cmd.Flags().StringVar(&since, "since", "", "earliest tweet date of the hashtag job")
	cmd.Flags().StringVar(&until, "until", "", "latest tweet date of the hashtag job")
	cmd.Flags().Int64SliceVar(&sourceIDs, "source", nil, "only crawl these channel, repo or handle ids")
	cmd.MarkFlagsRequiredTogether("hashtag", "project")
	cmd.MarkFlagsMutuallyExclusive("hashtag", "source")
	return cmd
}

func discoverCommand() *cobra.Command {
	var (
		projectID uint
		target    string
	)
	cmd := &cobra.Command{
		Use:   "discover {discord|github|twitter}",
		Short: "Register the crawl targets of a project",
		Long: "discord registers every guild and text channel the bot can see, " +
			"github every repository of --target (an owner), twitter the handle --target.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := model.ParsePlatform(args[0])
			if err != nil {
				return err
			}
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			connector, err := app.Connector(platform)
			if err != nil {
				return err
			}
			created, err := connector.Discover(cmd.Context(), projectID, target)
			if err != nil {
				return err
			}
			cmd.Printf("registered %d new %s sources\n", created, platform)
			return nil
		},
	}
	cmd.Flags().UintVar(&projectID, "project", 0, "project the sources belong to")
	cmd.Flags().StringVar(&target, "target", "", "github owner or twitter handle")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func processCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "process <job id>...",
		Short: "Run every stage of the given jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			app, enqueuer, err := newInlineApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			return enqueuer.EnqueueJobs(cmd.Context(), ids...)
		},
	}
}

func runStageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run-stage <job id> <stage>",
		Short: "Run a single stage of a job again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[:1])
			if err != nil {
				return err
			}
			app, enqueuer, err := newInlineApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			task := panoptic.NewTask(panoptic.TaskRunStage)
			task.Ids = ids
			task.Stage = args[1]
			return enqueuer.Enqueue(cmd.Context(), task)
		},
	}
}

func populateUsersCommand() *cobra.Command {
	var merge bool
	cmd := &cobra.Command{
		Use:   "populate-users [project id]...",
		Short: "Create users and memberships from the platform users of projects, every project when none is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			app, enqueuer, err := newInlineApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			task := panoptic.NewTask(panoptic.TaskPopulateProjectUsers)
			task.Ids = ids
			task.Merge = merge
			return enqueuer.Enqueue(cmd.Context(), task)
		},
	}
	cmd.Flags().BoolVar(&merge, "merge", false, "merge users by name afterwards")
	return cmd
}

func mergeUsersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "merge-users",
		Short: "Point users sharing a name at the lowest id among them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			merged, err := app.Identity.MergeAll(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("merged %d users\n", merged)
			return nil
		},
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update every table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := utils.GetDBConnection()
			if err != nil {
				return err
			}
			defer utils.CloseDB(db)
			return utils.DatabaseSetupAndMigration(db)
		},
	}
}

func parseIDs(args []string) ([]uint, error) {
	ids := make([]uint, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "%q is not an id", arg)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

// parseRange accepts any date format dateparse knows, empty means unbounded.
func parseRange(since, until string) (time.Time, time.Time, error) {
	var res [2]time.Time
	for i, s := range []string{since, until} {
		if s == "" {
			continue
		}
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, errors.Wrapf(err, "cannot parse date %q", s)
		}
		res[i] = t
	}
	return res[0], res[1], nil
}
