package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ajramos/mailsync/internal/cache"
	"github.com/ajramos/mailsync/internal/config"
	"github.com/ajramos/mailsync/internal/gmail"
	"github.com/ajramos/mailsync/internal/mailbox"
	"github.com/ajramos/mailsync/internal/memstore"
	"github.com/ajramos/mailsync/internal/services"
	"github.com/ajramos/mailsync/internal/tui"
	"github.com/ajramos/mailsync/internal/version"
	"github.com/ajramos/mailsync/pkg/auth"
)

//go:embed demo.json
var demoFixture []byte

const (
	demoAccount = "you@mailsync.local"
	demoLatency = 150 * time.Millisecond
)

type options struct {
	configPath  string
	credentials string
	setup       bool
	version     bool
	demo        bool
	fixture     string
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var o options
	fs.StringVar(&o.configPath, "config", "", "Path to configuration file, .json or .yaml (default: ~/.config/mailsync/config.json)")
	fs.StringVar(&o.credentials, "credentials", "", "Path to OAuth client credentials JSON (default: ~/.config/mailsync/credentials.json)")
	fs.BoolVar(&o.setup, "setup", false, "Check credentials and write a default configuration")
	fs.BoolVar(&o.version, "version", false, "Show version information and exit")
	fs.BoolVar(&o.demo, "demo", false, "Run against an in-memory demo mailbox")
	fs.StringVar(&o.fixture, "fixture", "", "JSON fixture for --demo (default: built-in sample)")
	err := fs.Parse(args)
	return o, err
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		out := fs.Output()
		fmt.Fprintf(out, "%s\n\n", version.GetVersionString())
		fmt.Fprintf(out, "Usage:\n  %s [options]\n\n", fs.Name())
		fmt.Fprintf(out, "Examples:\n")
		fmt.Fprintf(out, "  %s                        # Open your Gmail inbox\n", fs.Name())
		fmt.Fprintf(out, "  %s --demo                 # Try it without an account\n", fs.Name())
		fmt.Fprintf(out, "  %s --setup                # Check credentials and create a config\n\n", fs.Name())
		fmt.Fprintf(out, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(out, "\nEnvironment Variables:\n")
		fmt.Fprintf(out, "  MAILSYNC_CONFIG       Override default config file path\n")
		fmt.Fprintf(out, "  MAILSYNC_CREDENTIALS  Override default credentials file path\n")
		fmt.Fprintf(out, "  MAILSYNC_TOKEN        Override default token file path\n")
	}
}

func main() {
	fs := flag.NewFlagSet("mailsync", flag.ExitOnError)
	fs.Usage = usage(fs)
	opts, _ := parseFlags(fs, os.Args[1:])

	if opts.version {
		fmt.Println(version.GetDetailedVersionString())
		return
	}
	if opts.setup {
		runSetupWizard(os.Stdin, os.Stdout)
		return
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	configPath := getConfigPath(opts.configPath)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Printf("Warning: could not load configuration: %v", err)
		cfg = config.DefaultConfig()
	}

	logger, closeLog := openLogger(cfg)
	defer closeLog()
	logger.Printf("starting %s", version.GetVersionString())

	ctx := context.Background()
	var (
		ctrl    *services.MailboxController
		account string
	)
	if opts.demo {
		var store *memstore.Store
		store, err = openDemoStore(opts.fixture)
		if err != nil {
			return err
		}
		store.SetLogger(logger)
		account = demoAccount
		ctrl = services.NewMailboxController(store, controllerConfig(cfg, account))
	} else {
		var closeCache func()
		ctrl, account, closeCache, err = openGmail(ctx, cfg, opts, logger)
		if err != nil {
			return err
		}
		defer closeCache()
	}
	ctrl.SetLogger(logger)

	app := tui.NewApp(ctrl, cfg, account)
	app.SetLogger(logger)
	return app.Run()
}

// openGmail authorizes, resolves the account and wires the Gmail store with
// the sqlite cache when it is enabled
func openGmail(ctx context.Context, cfg *config.Config, opts options, logger *log.Logger) (*services.MailboxController, string, func(), error) {
	noop := func() {}
	credPath := getCredentialsPath(opts.credentials, cfg.Credentials)
	tokenPath := getTokenPath("", cfg.Token)
	if credPath == "" {
		return nil, "", noop, errors.New("gmail credentials file is required: use --credentials or the config file")
	}
	if _, err := os.Stat(credPath); err != nil {
		return nil, "", noop, fmt.Errorf("credentials file not found at %s; download OAuth client credentials from Google Cloud Console or run --setup", credPath)
	}

	service, err := auth.NewGmailService(ctx, credPath, tokenPath, auth.Scopes...)
	if err != nil {
		return nil, "", noop, fmt.Errorf("initialize Gmail service: %w", err)
	}
	client := gmail.NewClient(service)
	client.SetLogger(logger)
	client.SetRequestTimeout(cfg.GetRequestTimeout())

	account := cfg.Account
	if account == "" {
		if account, err = client.ActiveAccountEmail(ctx); err != nil {
			return nil, "", noop, fmt.Errorf("resolve account: %w", err)
		}
	}

	store := gmail.NewStore(client, gmail.StoreConfig{
		Account:      account,
		MaxResults:   cfg.GetMaxResults(),
		FeedInterval: cfg.GetFeedInterval(),
		Workers:      cfg.GetMutationConcurrency(),
	})
	store.SetLogger(logger)
	ctrl := services.NewMailboxController(store, controllerConfig(cfg, account))

	if !cfg.Cache.Enabled {
		return ctrl, account, noop, nil
	}
	db, err := cache.Open(ctx, cfg.CachePath())
	if err != nil {
		logger.Printf("cache disabled: %v", err)
		return ctrl, account, noop, nil
	}
	cacheSvc := services.NewCacheService(db)
	store.SetCursorStore(cacheSvc)
	ctrl.SetCache(cacheSvc)
	return ctrl, account, func() { _ = db.Close() }, nil
}

// openDemoStore seeds an in-memory store from path, or from the built-in
// sample when path is empty
func openDemoStore(path string) (*memstore.Store, error) {
	store := memstore.New(demoAccount)
	store.SetLatency(demoLatency)
	if path != "" {
		if err := store.LoadFile(config.ExpandPath(path)); err != nil {
			return nil, err
		}
		return store, nil
	}
	if err := store.LoadJSON(demoFixture); err != nil {
		return nil, fmt.Errorf("load demo mailbox: %w", err)
	}
	return store, nil
}

func controllerConfig(cfg *config.Config, account string) services.ControllerConfig {
	return services.ControllerConfig{
		Identity:            services.IdentityFilter{Account: account},
		Folder:              mailbox.ParseFolder(cfg.Sync.InitialFolder),
		PollInterval:        cfg.GetPollInterval(),
		PollCeiling:         cfg.GetPollCeiling(),
		SelectionGrace:      cfg.GetSelectionGrace(),
		MutationConcurrency: cfg.GetMutationConcurrency(),
	}
}

// openLogger writes to the configured log file. Without one it discards.
func openLogger(cfg *config.Config) (*log.Logger, func()) {
	path := config.DefaultLogPath()
	if cfg.LogFile != "" {
		path = config.ResolvePath(cfg.LogFile)
	}
	if path != "" {
		if logger, f, err := tui.OpenLogFile(path); err == nil {
			return logger, func() { _ = f.Close() }
		}
	}
	return log.New(io.Discard, "", 0), func() {}
}

// getConfigPath returns the configuration file path using the following priority:
// 1. CLI flag
// 2. Environment variable MAILSYNC_CONFIG
// 3. Default path ~/.config/mailsync/config.json
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("MAILSYNC_CONFIG"); envPath != "" {
		return config.ExpandPath(envPath)
	}
	return config.DefaultConfigPath()
}

// getCredentialsPath: CLI flag, MAILSYNC_CREDENTIALS, config file, default
func getCredentialsPath(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("MAILSYNC_CREDENTIALS"); envPath != "" {
		return config.ExpandPath(envPath)
	}
	if configValue != "" {
		return config.ResolvePath(configValue)
	}
	credPath, _ := config.DefaultCredentialPaths()
	return credPath
}

// getTokenPath: CLI flag, MAILSYNC_TOKEN, config file, default
func getTokenPath(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("MAILSYNC_TOKEN"); envPath != "" {
		return config.ExpandPath(envPath)
	}
	if configValue != "" {
		return config.ResolvePath(configValue)
	}
	_, tokenPath := config.DefaultCredentialPaths()
	return tokenPath
}

// runSetupWizard reports what is missing and offers to write a default config
func runSetupWizard(in io.Reader, out io.Writer) {
	configPath := config.DefaultConfigPath()
	credPath, tokenPath := config.DefaultCredentialPaths()

	fmt.Fprintln(out, "mailsync setup")
	fmt.Fprintln(out, "==============")
	fmt.Fprintln(out)

	configExists := fileExists(configPath)
	if configExists {
		fmt.Fprintf(out, "Configuration file exists: %s\n", configPath)
	} else {
		fmt.Fprintf(out, "Configuration file will be created: %s\n", configPath)
	}

	if fileExists(credPath) {
		fmt.Fprintf(out, "Credentials file found: %s\n", credPath)
	} else {
		fmt.Fprintf(out, "Credentials file missing: %s\n\n", credPath)
		fmt.Fprintln(out, "To set up Gmail API credentials:")
		fmt.Fprintln(out, "1. Go to https://console.cloud.google.com/")
		fmt.Fprintln(out, "2. Create a project or select an existing one")
		fmt.Fprintln(out, "3. Enable the Gmail API")
		fmt.Fprintln(out, "4. Create OAuth 2.0 credentials (Desktop application)")
		fmt.Fprintf(out, "5. Save the downloaded JSON as %s\n\n", credPath)
	}

	if fileExists(tokenPath) {
		fmt.Fprintf(out, "Token file exists: %s\n", tokenPath)
	} else {
		fmt.Fprintf(out, "Token will be created on first login: %s\n", tokenPath)
	}

	if !configExists {
		fmt.Fprint(out, "\nCreate default configuration file? [Y/n]: ")
		var response string
		_, _ = fmt.Fscanln(in, &response)
		if confirmed(response) {
			if err := config.DefaultConfig().SaveConfig(configPath); err != nil {
				fmt.Fprintf(out, "Failed to create config file: %v\n", err)
				return
			}
			fmt.Fprintf(out, "Created configuration file: %s\n", configPath)
		}
	}

	fmt.Fprintln(out, "\nSetup complete. Run mailsync to open your inbox, or mailsync --demo to try it offline.")
}

func confirmed(response string) bool {
	switch strings.ToLower(strings.TrimSpace(response)) {
	case "", "y", "yes":
		return true
	}
	return false
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
