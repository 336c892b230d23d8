package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"msgfetch/client"
	"msgfetch/internal"
	"msgfetch/utils"
)

var (
	credentialsPath string
	cookiesPath     string
	proxyURL        string
	quiet           bool
	debug           bool
	logLevel        string
	logFile         string
	config          *internal.Config
)

var rootCmd = &cobra.Command{
	Use:     "msgfetch",
	Short:   "Back up fan-club message timelines",
	Version: "v1.0.0",
	Long: `msgfetch talks to the message app API with the session captured by a browser
login, lists groups, members and messages, downloads media and keeps an
incremental local backup of every subscribed timeline.

Examples:
  msgfetch groups
  msgfetch messages 12 --since-id 4000
  msgfetch sync --output backup --concurrency 8
  msgfetch -c session.json --cookies cookies.txt sync

Environment Variables:
  MSGFETCH_CREDENTIALS          Credentials file (default credentials.json)
  MSGFETCH_COOKIES              Netscape cookie file merged into the session
  MSGFETCH_PROXY                Proxy URL
  MSGFETCH_REQUESTS_PER_SECOND  Request pacing (0 disables)
  MSGFETCH_OUTPUT_DIR           Sync output directory
  MSGFETCH_LOG_LEVEL            debug, info, warn or error

Variables may also be placed in a .env file in the working directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfiguration(cmd); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		if err := internal.InitLogger(config); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		internal.LogDebug("Configuration loaded: base=%s, page_size=%d, rps=%.2f, media_concurrency=%d",
			config.BaseURL, config.PageSize, config.RequestsPerSecond, config.MediaConcurrency)
		return nil
	},
}

// loadConfiguration layers defaults, environment and explicitly set flags
func loadConfiguration(cmd *cobra.Command) error {
	config = internal.DefaultConfig()
	if err := config.LoadFromEnv(); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("credentials") {
		config.CredentialsFile = credentialsPath
	}
	if flags.Changed("cookies") {
		config.CookieFile = cookiesPath
	}
	if flags.Changed("proxy") {
		config.Proxy = proxyURL
	}
	if debug {
		config.EnableDebug = true
		config.LogLevel = "debug"
	}
	if quiet {
		config.QuietMode = true
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	if logFile != "" {
		config.LogFile = logFile
	}

	return config.ValidateConfig()
}

// loadCredentials reads the credentials file and merges the optional cookie jar into it.
// A cookie jar alone is enough to start a session.
func loadCredentials() (internal.Credentials, error) {
	creds, err := client.LoadCredentialsFile(config.CredentialsFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || config.CookieFile == "" {
			return internal.Credentials{}, err
		}
		internal.LogInfo("No credentials file at %s, starting from cookies only", config.CredentialsFile)
		creds = internal.Credentials{}
	}

	if config.CookieFile != "" {
		jar, err := client.LoadNetscapeCookies(config.CookieFile)
		if err != nil {
			return internal.Credentials{}, err
		}
		if creds.Cookies == nil {
			creds.Cookies = make(map[string]string, len(jar))
		}
		maps.Copy(creds.Cookies, jar)
		internal.LogDebug("Merged %d cookies from %s", len(jar), config.CookieFile)
	}

	return creds, nil
}

// withClient runs fn with a configured client and writes the possibly
// refreshed credentials back afterwards, even when fn fails.
func withClient(fn func(ctx context.Context, c *client.Client) error) (err error) {
	ctx, cancel := signalContext()
	defer cancel()

	creds, err := loadCredentials()
	if err != nil {
		return err
	}

	httpClient, err := utils.NewHTTPClient(&utils.HTTPClientConfig{
		Timeout:  config.HTTPTimeout,
		ProxyURL: config.Proxy,
	})
	if err != nil {
		return err
	}

	c, err := client.NewFromConfig(httpClient, creds, config)
	if err != nil {
		return err
	}

	defer func() {
		if saveErr := saveCredentialsIfChanged(config.CredentialsFile, creds, c.Credentials()); saveErr != nil && err == nil {
			err = saveErr
		}
	}()

	err = fn(ctx, c)
	reportError(err)
	return err
}

// saveCredentialsIfChanged writes updated to path when any part of the session differs from loaded
func saveCredentialsIfChanged(path string, loaded, updated internal.Credentials) error {
	if updated.Equal(loaded) {
		return nil
	}
	if err := client.SaveCredentialsFile(path, updated); err != nil {
		internal.LogError("Failed to save refreshed credentials: %v", err)
		return err
	}
	internal.LogInfo("Saved refreshed credentials to %s", path)
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			internal.LogInfo("Received signal %v, shutting down gracefully...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// reportError logs the detailed form of typed errors
func reportError(err error) {
	var (
		reqErr  *internal.RequestError
		authErr *internal.AuthError
		valErr  *internal.ValidationError
	)
	switch {
	case err == nil:
	case errors.As(err, &reqErr):
		internal.LogRequestError(reqErr)
	case errors.As(err, &authErr):
		internal.LogError("%s", authErr.DetailedError())
	case errors.As(err, &valErr):
		internal.LogValidationError(valErr)
	}
}

func init() {
	config = internal.DefaultConfig()

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&credentialsPath, "credentials", "c", config.CredentialsFile, "Credentials JSON file (env: MSGFETCH_CREDENTIALS)")
	pf.StringVar(&cookiesPath, "cookies", "", "Netscape-format cookie file merged into the session (env: MSGFETCH_COOKIES)")
	pf.StringVar(&proxyURL, "proxy", "", "HTTP/SOCKS proxy URL (env: MSGFETCH_PROXY)")
	pf.BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output (env: MSGFETCH_QUIET)")
	pf.BoolVarP(&debug, "debug", "d", false, "Enable debug logging with file and line information (env: MSGFETCH_DEBUG)")
	pf.StringVar(&logLevel, "log-level", "", "Set log level (debug, info, warn, error) (env: MSGFETCH_LOG_LEVEL)")
	pf.StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr (env: MSGFETCH_LOG_FILE)")

	rootCmd.AddCommand(groupsCmd, membersCmd, messagesCmd, downloadCmd, syncCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// Exit codes reported by the msgfetch binary
const (
	exitOK             = 0
	exitFailure        = 1
	exitUsage          = 2
	exitSessionExpired = 3
)

// ExitCode maps a command error onto the process exit status
func ExitCode(err error) int {
	var valErr *internal.ValidationError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, internal.ErrSessionExpired):
		return exitSessionExpired
	case errors.As(err, &valErr):
		return exitUsage
	default:
		return exitFailure
	}
}
