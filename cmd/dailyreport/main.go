package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/TobiSchelling/dailyreport/internal/aggregate"
	"github.com/TobiSchelling/dailyreport/internal/config"
	"github.com/TobiSchelling/dailyreport/internal/database"
	"github.com/TobiSchelling/dailyreport/internal/dispatch"
	"github.com/TobiSchelling/dailyreport/internal/pipeline"
	"github.com/TobiSchelling/dailyreport/internal/server"
	"github.com/TobiSchelling/dailyreport/internal/source"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop().Sugar()
)

func main() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "dailyreport",
	Short:   "Daily feed and messenger KPI report",
	Long:    "dailyreport extracts a week of feed and messenger activity, compares yesterday with the day before and sends the summary and a chart to Telegram.",
	Version: version,
	// Step errors are printed by the commands themselves.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if _, err := aggregate.ParseJoinMode(cfg.Report.Join); err != nil {
			return fmt.Errorf("report.join: %w", err)
		}

		l, err := newLogger(cfg.Logging.Level, verbose)
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(l)
		logger = l.Sugar()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(serveCmd)
}

// newLogger builds the process logger: development output with --verbose,
// console-encoded production output at the configured level otherwise.
func newLogger(level string, verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopmentConfig().Build()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = true
	return zc.Build()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("dailyreport", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/dailyreport/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the ClickHouse source and the Telegram bot.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and local warehouse status",
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, _ := cfg.Location()
		p := newPipeline(nil, nil, nil)
		w := p.Window(today(loc))

		fmt.Printf("Source: %s\n", cfg.Source.Driver)
		if cfg.Source.Driver == "clickhouse" {
			ch := cfg.Source.ClickHouse
			fmt.Printf("  %s (%s) %s, %s\n", ch.Endpoint, ch.Protocol, ch.FeedTable, ch.MessageTable)
		}
		fmt.Printf("Next window: %s\n", w)
		fmt.Printf("Join mode: %s\n", cfg.Report.Join)
		fmt.Printf("Telegram chat: %s\n", orNone(cfg.Telegram.Chat))
		fmt.Printf("Schedule: daily at %s %s, %d retries every %s\n",
			cfg.Schedule.At, cfg.Report.Timezone, cfg.Schedule.Retries, cfg.Schedule.RetryDelay)

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("\nLocal warehouse: %s\n", db.Path())
		fmt.Printf("  Feed actions: %d\n", stats.FeedActions)
		fmt.Printf("  Message actions: %d\n", stats.MessageActions)
		if stats.FirstDay != "" {
			fmt.Printf("  Days: %s .. %s\n", stats.FirstDay, stats.LastDay)
		}
		return nil
	},
}

// --- import command ---

var (
	importFeed     string
	importMessages string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load feed and message events from CSV into the local warehouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		if importFeed == "" && importMessages == "" {
			return fmt.Errorf("nothing to import; pass --feed and/or --messages")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if importFeed != "" {
			f, err := os.Open(importFeed)
			if err != nil {
				return err
			}
			actions, err := database.ReadFeedActionsCSV(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", importFeed, err)
			}
			if err := db.InsertFeedActions(actions); err != nil {
				return fmt.Errorf("storing feed actions: %w", err)
			}
			fmt.Printf("Imported %d feed actions from %s\n", len(actions), importFeed)
		}

		if importMessages != "" {
			f, err := os.Open(importMessages)
			if err != nil {
				return err
			}
			actions, err := database.ReadMessageActionsCSV(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", importMessages, err)
			}
			if err := db.InsertMessageActions(actions); err != nil {
				return fmt.Errorf("storing message actions: %w", err)
			}
			fmt.Printf("Imported %d message actions from %s\n", len(actions), importMessages)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFeed, "feed", "", "CSV file of feed actions")
	importCmd.Flags().StringVar(&importMessages, "messages", "", "CSV file of message actions")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local report preview server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		src, closeSrc, err := openSource(ctx)
		if err != nil {
			return err
		}
		defer closeSrc()

		metrics := pipeline.NewMetrics()
		p := newPipeline(src, nil, metrics)
		loc, _ := cfg.Location()

		srv, err := server.New(p, metrics.Registry, loc, logger)
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func openDB() (*database.DB, error) {
	path := cfg.SQLitePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(path)
}

// openSource connects to the configured event source.
func openSource(ctx context.Context) (source.Source, func() error, error) {
	if cfg.Source.Driver == "sqlite" {
		db, err := openDB()
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	}

	ch := cfg.Source.ClickHouse
	src, err := source.OpenClickHouse(ctx, source.ClickHouseConfig{
		Addr:         ch.Endpoint,
		Protocol:     ch.Protocol,
		Secure:       ch.Secure,
		Database:     ch.Database,
		Username:     ch.Username,
		Password:     os.Getenv(ch.PasswordEnv),
		FeedTable:    ch.FeedTable,
		MessageTable: ch.MessageTable,
		DialTimeout:  ch.DialTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return src, src.Close, nil
}

// newTelegram builds the dispatcher from config and the environment.
func newTelegram() (*dispatch.Telegram, error) {
	tc := cfg.Telegram
	return dispatch.NewTelegram(dispatch.TelegramConfig{
		AppID:       tc.AppID,
		AppHash:     os.Getenv(tc.AppHashEnv),
		BotToken:    os.Getenv(tc.BotTokenEnv),
		Chat:        tc.Chat,
		SessionPath: cfg.SessionPath(),
	}, logger)
}

func newPipeline(src source.Source, disp pipeline.Dispatcher, metrics *pipeline.Metrics) *pipeline.Pipeline {
	// Validated in PersistentPreRunE.
	mode, _ := aggregate.ParseJoinMode(cfg.Report.Join)
	return pipeline.New(src, disp, pipeline.Options{
		WindowDays: cfg.Report.WindowDays,
		Join:       mode,
	}, logger, metrics)
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
