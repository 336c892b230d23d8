package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"msgfetch/client"
	"msgfetch/downloader"
	"msgfetch/internal"
)

var (
	includeInactive bool
	sinceID         int64
	timestamp       string
	syncOutput      string
	syncAll         bool
	syncConcurrency int
	skipMedia       bool
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List subscribed groups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			groups, err := c.GetGroups(ctx, includeInactive)
			if err != nil {
				return err
			}
			renderGroups(os.Stdout, groups)
			return nil
		})
	},
}

var membersCmd = &cobra.Command{
	Use:   "members <group-id>",
	Short: "List the members of a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		groupID, err := parseID("group_id", args[0])
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, c *client.Client) error {
			members, err := c.GetMembers(ctx, groupID)
			if err != nil {
				return err
			}
			renderMembers(os.Stdout, members)
			return nil
		})
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <group-id>",
	Short: "List the messages of a group timeline",
	Example: `  msgfetch messages 12
  msgfetch messages 12 --since-id 4000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		groupID, err := parseID("group_id", args[0])
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, c *client.Client) error {
			messages, err := c.GetMessages(ctx, groupID, sinceID)
			if err != nil {
				return err
			}
			renderMessages(os.Stdout, messages)
			return nil
		})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <url> <path>",
	Short: "Download a single media file",
	Example: `  msgfetch download https://cdn.example.com/1.jpg photos/1.jpg --timestamp 2024-01-02T03:04:05Z`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, path := args[0], args[1]
		return withClient(func(ctx context.Context, c *client.Client) error {
			ok, err := c.DownloadFile(ctx, url, path, timestamp)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("server returned no content for %s", url)
			}
			if !config.QuietMode {
				fmt.Fprintf(os.Stdout, "%s %s\n", statusOK("saved"), path)
			}
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Incrementally back up every subscribed timeline",
	Long: `Sync fetches new messages for every member of every subscribed group, merges
them into <output>/<group>/<member>/messages.json and downloads media that is
not on disk yet. Progress is kept in <output>/sync_state.json so later runs
only fetch what is new.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("output") {
			config.OutputDir = syncOutput
		}
		if cmd.Flags().Changed("concurrency") {
			config.MediaConcurrency = syncConcurrency
		}
		if err := config.ValidateConfig(); err != nil {
			return err
		}

		return withClient(func(ctx context.Context, c *client.Client) error {
			manager := downloader.NewSyncManager(c, c, downloader.SyncOptions{
				OutputDir:        config.OutputDir,
				IncludeInactive:  syncAll,
				MediaConcurrency: config.MediaConcurrency,
				SkipMedia:        skipMedia,
				Quiet:            config.QuietMode,
			}, internal.GetLogger())

			results, err := manager.SyncAll(ctx)
			if len(results) > 0 && !config.QuietMode {
				renderSyncResults(os.Stdout, results)
			}
			return err
		})
	},
}

func parseID(field, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, internal.NewValidationErrorWithValue(field, "must be a positive integer", raw)
	}
	return id, nil
}

func init() {
	groupsCmd.Flags().BoolVarP(&includeInactive, "all", "a", false, "Include expired, suspended and canceled subscriptions")

	messagesCmd.Flags().Int64Var(&sinceID, "since-id", 0, "Only list messages newer than this id")

	downloadCmd.Flags().StringVar(&timestamp, "timestamp", "", "RFC 3339 time to set as the file's modification time")

	syncCmd.Flags().StringVarP(&syncOutput, "output", "o", "output", "Output directory (env: MSGFETCH_OUTPUT_DIR)")
	syncCmd.Flags().BoolVarP(&syncAll, "all", "a", false, "Include groups whose subscription is no longer active")
	syncCmd.Flags().IntVar(&syncConcurrency, "concurrency", downloader.DefaultMediaConcurrency, "Parallel media downloads (1-32) (env: MSGFETCH_MEDIA_CONCURRENCY)")
	syncCmd.Flags().BoolVar(&skipMedia, "skip-media", false, "Export messages without downloading media")
}
