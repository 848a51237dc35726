package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/BTreeMap/GoalPipe/internal/api"
	"github.com/BTreeMap/GoalPipe/internal/lockfile"
	"github.com/BTreeMap/GoalPipe/internal/messaging"
	"github.com/BTreeMap/GoalPipe/internal/models"
	"github.com/BTreeMap/GoalPipe/internal/scheduler"
	"github.com/BTreeMap/GoalPipe/internal/setup"
	"github.com/BTreeMap/GoalPipe/internal/store"
	"github.com/BTreeMap/GoalPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/GoalPipe/internal/util"
	"github.com/BTreeMap/GoalPipe/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for GoalPipe state data
	DefaultStateDir = "/var/lib/goalpipe"
	// DefaultAppDBFileName is the default SQLite database filename for
	// sessions, materials and the message log
	DefaultAppDBFileName = "goalpipe.db"
	// DefaultWhatsAppDBFileName is the default SQLite database filename for
	// the whatsmeow device store
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// BackendWhatsApp selects the whatsmeow transport
	BackendWhatsApp = "whatsapp"
	// BackendTwilio selects the Twilio WhatsApp transport
	BackendTwilio = "twilio"
	// DefaultReminderSchedule fires the stalled-session reminder scan daily
	// at 10:00 server time
	DefaultReminderSchedule = "0 10 * * *"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping GoalPipe")
	if err := run(flags); err != nil {
		slog.Error("GoalPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("GoalPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	WhatsAppDBDSN    string
	ApplicationDBDSN string
	APIAddr          string
	Backend          string
	ReadyTokens      []string
	ResetTokens      []string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput *string
	numeric  *bool
	stateDir *string
	waDSN    *string
	appDSN   *string
	apiAddr  *string
	backend  *string
	config   Config
}

// initializeLogger sets up structured logging
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         os.Getenv("GOALPIPE_STATE_DIR"),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		ApplicationDBDSN: os.Getenv("DATABASE_DSN"),
		APIAddr:          os.Getenv("API_ADDR"),
		Backend:          util.GetEnvWithDefault("MESSAGING_BACKEND", BackendWhatsApp),
		ReadyTokens:      util.ParseListEnv("SETUP_READY_TOKENS"),
		ResetTokens:      util.ParseListEnv("SETUP_RESET_TOKENS"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No GOALPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// DATABASE_URL is accepted as a legacy alias for DATABASE_DSN.
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = os.Getenv("DATABASE_URL")
	}
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = filepath.Join(config.StateDir, DefaultAppDBFileName)
		slog.Debug("No application DSN provided, defaulting to SQLite", "sqlite_path", config.ApplicationDBDSN)
	}

	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		slog.Debug("No WhatsApp DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDBDSN)
	}

	slog.Debug("environment variables loaded",
		"GOALPIPE_STATE_DIR", config.StateDir,
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDBDSN != "",
		"DATABASE_DSN_SET", config.ApplicationDBDSN != "",
		"API_ADDR", config.APIAddr,
		"MESSAGING_BACKEND", config.Backend,
		"SETUP_READY_TOKENS_SET", len(config.ReadyTokens) > 0,
		"SETUP_RESET_TOKENS_SET", len(config.ResetTokens) > 0)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput: flag.String("qr-output", "", "path to write login QR code"),
		numeric:  flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir: flag.String("state-dir", config.StateDir, "state directory for GoalPipe data (overrides $GOALPIPE_STATE_DIR)"),
		waDSN:    flag.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "database DSN for the WhatsApp device store (overrides $WHATSAPP_DB_DSN)"),
		appDSN:   flag.String("db-dsn", config.ApplicationDBDSN, "database DSN for sessions and materials (overrides $DATABASE_DSN)"),
		apiAddr:  flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		backend:  flag.String("backend", config.Backend, "messaging backend: whatsapp or twilio (overrides $MESSAGING_BACKEND)"),
		config:   config,
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"waDSN_set", *flags.waDSN != "",
		"appDSN_set", *flags.appDSN != "",
		"apiAddr", *flags.apiAddr,
		"backend", *flags.backend)

	// Follow a moved state directory when the DSNs were derived from the
	// default one.
	if *flags.stateDir != config.StateDir {
		if *flags.appDSN == filepath.Join(config.StateDir, DefaultAppDBFileName) {
			*flags.appDSN = filepath.Join(*flags.stateDir, DefaultAppDBFileName)
		}
		if *flags.waDSN == "file:"+filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)+"?_foreign_keys=on" {
			*flags.waDSN = "file:" + filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		}
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.appDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.appDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStore opens the application store matching the configured DSN.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.appDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildMessagingService constructs the configured messaging transport.
func buildMessagingService(flags Flags) (messaging.Service, error) {
	switch *flags.backend {
	case BackendTwilio:
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, err
		}
		return messaging.NewTwilioService(client), nil
	default:
		var waOpts []whatsapp.Option
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(client), nil
	}
}

// buildTokenSet merges configured flow-control vocabulary overrides with the
// defaults.
func buildTokenSet(config Config) setup.TokenSet {
	ready := config.ReadyTokens
	if len(ready) == 0 {
		ready = setup.DefaultReadyTokens
	}
	reset := config.ResetTokens
	if len(reset) == 0 {
		reset = setup.DefaultResetTokens
	}
	return setup.NewTokenSet(ready, reset)
}

// run wires the store, messaging transport, setup engine, router, and API
// server together and blocks until shutdown.
func run(flags Flags) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	msgService, err := buildMessagingService(flags)
	if err != nil {
		return err
	}
	if err := msgService.Start(ctx); err != nil {
		return err
	}
	defer msgService.Stop()

	engine := setup.NewEngine(st, msgService,
		setup.WithTokens(buildTokenSet(flags.config)),
		setup.WithCompletionFunc(func(ctx context.Context, event models.SetupCompleted) {
			slog.Info("Setup completed, subscription active",
				"user_id", event.UserID, "plan", event.Plan, "total_tasks", event.Material.TotalTasks)
		}),
	)

	router := messaging.NewResponseRouter(msgService, messaging.WithMessageLog(st))
	router.SetHandler(func(ctx context.Context, from, body string, timestamp int64) (bool, error) {
		return engine.HandleResponse(ctx, from, body)
	})
	router.Start(ctx)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	reminder := setup.NewReminder(st, msgService)
	if err := sched.AddJob(DefaultReminderSchedule, func() {
		if err := reminder.Run(ctx); err != nil {
			slog.Error("Stalled-session reminder scan failed", "error", err)
		}
	}); err != nil {
		return err
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(st, msgService, engine, apiOpts...)

	// Shut the API down on SIGINT/SIGTERM; Run returns once shutdown
	// completes.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("Received shutdown signal", "signal", sig)
		cancel()
		if err := server.Stop(); err != nil {
			slog.Error("API shutdown error", "error", err)
		}
	}()

	return server.Run()
}
