package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	llmProvider string
	llmModel    string
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "voicepost",
		Short:         "Draft, schedule and publish posts in your own voice",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().StringVar(&llmProvider, "provider", "", "llm provider (openai, anthropic, gemini); key from <PROVIDER>_API_KEY")
	root.PersistentFlags().StringVar(&llmModel, "model", "", "llm model (default: provider default)")

	root.AddCommand(draftCmd())
	root.AddCommand(scheduleCmd())
	root.AddCommand(unscheduleCmd())
	root.AddCommand(dueCmd())
	root.AddCommand(postCmd())
	root.AddCommand(publishDueCmd())
	root.AddCommand(slotCmd())
	root.AddCommand(generateCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(retweetsCmd())
	root.AddCommand(scanCmd())
	root.AddCommand(voiceCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func draftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Manage drafts",
	}

	cmd.AddCommand(draftAddCmd())
	cmd.AddCommand(draftListCmd())
	cmd.AddCommand(draftShowCmd())
	cmd.AddCommand(draftScheduledCmd())
	cmd.AddCommand(draftExportCmd())
	return cmd
}

func draftAddCmd() *cobra.Command {
	var opts addOptions

	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Add a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.text = args[0]
			return runDraftAdd(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.media, "media", "", "attachment path inside the media directory")
	cmd.Flags().StringVar(&opts.notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&opts.quote, "quote", "", "quote this tweet id")
	return cmd
}

func draftListCmd() *cobra.Command {
	var (
		status     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraftList(cmd.Context(), status, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only drafts with this status (pending, scheduled, posted)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func draftShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraftShow(cmd.Context(), args[0])
		},
	}
}

func draftScheduledCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraftScheduled(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func draftExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write a spreadsheet-safe copy of the draft table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraftExport(cmd.Context())
		},
	}
}

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <id> <time>",
		Short: "Schedule a draft, e.g. 2026-02-02T14:00",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd.Context(), args[0], args[1])
		},
	}
}

func unscheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unschedule <id>",
		Short: "Return a scheduled draft to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnschedule(cmd.Context(), args[0])
		},
	}
}

func dueCmd() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "due",
		Short: "List drafts due for publishing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDue(cmd.Context(), at)
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "evaluate at this RFC 3339 time instead of now")
	return cmd
}

func postCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "post <id>",
		Short: "Publish one draft now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPost(cmd.Context(), args[0])
		},
	}
}

func publishDueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish-due",
		Short: "Publish due drafts once; exits non-zero if any attempt failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublishDue(cmd.Context())
		},
	}
}

func slotCmd() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Report whether a time is a strategy slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSlot(at)
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "evaluate at this RFC 3339 time instead of now")
	return cmd
}

func generateCmd() *cobra.Command {
	var (
		count int
		save  bool
		quote string
	)

	cmd := &cobra.Command{
		Use:   "generate <topic>",
		Short: "Generate drafts about a topic (or a quote comment with --quote)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), args[0], count, save, quote)
		},
	}

	cmd.Flags().IntVar(&count, "count", 3, "number of drafts")
	cmd.Flags().BoolVar(&save, "save", false, "store the drafts as pending")
	cmd.Flags().StringVar(&quote, "quote", "", "treat the topic as this tweet's text and write a quote comment")
	return cmd
}

func ingestCmd() *cobra.Command {
	var (
		count int
		limit int
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Generate pending drafts from recent feed entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), count, limit)
		},
	}

	cmd.Flags().IntVar(&count, "count", 1, "drafts per entry")
	cmd.Flags().IntVar(&limit, "limit", 5, "max entries to use")
	return cmd
}

func voiceCmd() *cobra.Command {
	var (
		user       string
		count      int
		importPath string
	)

	cmd := &cobra.Command{
		Use:   "voice [samples-file]",
		Short: "Build the voice profile from sample posts (one per line), a user's timeline, or an existing profile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var samples string
			if len(args) == 1 {
				samples = args[0]
			}
			return runVoice(cmd.Context(), samples, user, count, importPath)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "analyze this user's recent posts")
	cmd.Flags().IntVar(&count, "count", 20, "posts to sample with --user")
	cmd.Flags().StringVar(&importPath, "import", "", "use this file as the voice profile as-is")
	return cmd
}

func retweetsCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "retweets <query>",
		Short: "Search recent posts and draft a quote comment for each",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetweets(cmd.Context(), args[0], count)
		},
	}

	cmd.Flags().IntVar(&count, "count", 5, "posts to quote")
	return cmd
}

func scanCmd() *cobra.Command {
	var options int

	cmd := &cobra.Command{
		Use:   "scan <folder>",
		Short: "Draft posts for every image in a folder inside the media directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), args[0], options)
		},
	}

	cmd.Flags().IntVar(&options, "options", 3, "drafts per image")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with publishing loop and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
