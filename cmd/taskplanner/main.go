package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"task-planner/internal/config"
	"task-planner/internal/logging"
	"task-planner/internal/repository"
	"task-planner/internal/service"
	"task-planner/internal/timeparse"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "taskplanner",
		Short:         "Personal task lists with delegation and reminders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRemindersCmd(), newParseCmd())
	return root
}

func loadConfig() (config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, fmt.Errorf("config: %w", err)
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
	return cfg, logger, nil
}

// openStore connects the configured document store backend.
func openStore(ctx context.Context, cfg config.Config) (repository.DocumentStore, error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		store, err := repository.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		return store, nil
	case config.BackendFile:
		store, err := repository.NewFileStore(cfg.FileStoreDir)
		if err != nil {
			return nil, fmt.Errorf("file store: %w", err)
		}
		return store, nil
	default:
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		return repository.NewGormStore(db), nil
	}
}

func newRemindersCmd() *cobra.Command {
	var owner int64
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Print the durable reminder ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			repo := repository.NewReminderRepository(store)
			reminders, err := repo.ListAll(ctx)
			if owner != 0 {
				reminders, err = repo.ListByOwner(ctx, owner)
			}
			if err != nil {
				return fmt.Errorf("list reminders: %w", err)
			}

			now := time.Now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "REMINDER\tOWNER\tTASK\tFIRE AT (UTC)\tDUE IN")
			for _, r := range reminders {
				due := r.FireAt.Sub(now).Round(time.Second).String()
				if !r.FireAt.After(now) {
					due = "expired"
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", r.ReminderID, r.OwnerID, r.TaskID, r.FireAt.UTC().Format(time.RFC3339), due)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int64Var(&owner, "owner", 0, "only show reminders of this user id")
	return cmd
}

func newParseCmd() *cobra.Command {
	var (
		tz     string
		nowArg string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "parse <expression>",
		Short: "Evaluate a reminder time expression",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("timezone %q: %w", tz, err)
			}
			now := time.Now()
			if nowArg != "" {
				if now, err = time.Parse(time.RFC3339, nowArg); err != nil {
					return fmt.Errorf("--now: %w", err)
				}
			}
			var opts []timeparse.Option
			if strict {
				opts = append(opts, timeparse.WithFallback(nil))
			}

			expr := strings.Join(args, " ")
			at, err := timeparse.New(opts...).Parse(expr, now, loc)
			if errors.Is(err, timeparse.ErrParse) {
				return fmt.Errorf("cannot parse %q: %w", expr, err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s (in %s)\n",
				at.In(loc).Format(time.RFC1123), at.UTC().Format(time.RFC3339), at.Sub(now).Round(time.Second))
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "tz", service.DefaultTimezone, "IANA timezone the expression is read in")
	cmd.Flags().StringVar(&nowArg, "now", "", "reference instant (RFC3339), defaults to the current time")
	cmd.Flags().BoolVar(&strict, "strict", false, "disable the natural-language fallback")
	return cmd
}
