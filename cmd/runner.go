package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/repositories"
	"github.com/desertthunder/postx/internal/services"
	"github.com/desertthunder/postx/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Dependencies are built on first use by [Runner.ensure] so that commands like setup
// can run before a database or config file exists.
type Runner struct {
	config      *shared.Config
	configPath  string
	db          *sql.DB
	ownsDB      bool
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	baseURLs    map[models.PlatformType]string
	openBrowser func(string) error
	now         func() time.Time

	accounts *repositories.AccountRepository
	posts    *repositories.PostRepository
	jobs     *repositories.SchedulerJobRepository
	states   *services.StateStore
	guard    *services.TokenGuard
	clients  *services.ClientFactory
	flow     *services.OAuthFlow
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	DB          *sql.DB
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	BaseURLs    map[models.PlatformType]string // API host overrides per platform
	OpenBrowser func(string) error
	Now         func() time.Time
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		db:          opts.DB,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		baseURLs:    opts.BaseURLs,
		openBrowser: opts.OpenBrowser,
		now:         opts.Now,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, connectCommand, accountsCommand, creatorInfoCommand, uploadCommand, postsCommand, scheduleCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger. Components built afterwards use the new one.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// loadConfig reads the config file named by the --config flag, falling back to defaults when it is missing.
func (r *Runner) loadConfig(cmd *cli.Command) error {
	if r.config != nil {
		return nil
	}
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if r.configPath == "" {
		r.config = shared.DefaultConfig()
		return nil
	}

	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		r.config = shared.DefaultConfig()
		return nil
	}

	config, err := shared.LoadConfig(r.configPath)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	r.config = config
	return nil
}

// openDatabase opens the configured database and applies pending migrations.
func (r *Runner) openDatabase() error {
	if r.db != nil {
		return nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	shared.ConfigureDatabase(db, r.config.Database)

	applied, err := shared.RunMigrations(db)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if len(applied) > 0 {
		r.logger.Info("applied migrations", "versions", applied)
	}

	r.db = db
	r.ownsDB = true
	return nil
}

// ensure loads config, opens the database and wires the services. It is safe to call more than once.
func (r *Runner) ensure(cmd *cli.Command) error {
	if r.flow != nil {
		return nil
	}
	// The TUI owns the terminal, so logs go to a file instead.
	if cmd.Bool("tui") {
		fileLogger, err := shared.NewFileLogger(filepath.Join("tmp", "postx-tui.log"))
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		r.SetLogger(fileLogger)
	}
	if cmd.Bool("debug") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	if err := r.loadConfig(cmd); err != nil {
		return err
	}
	if err := r.openDatabase(); err != nil {
		return err
	}

	providers, err := services.NewProviders(r.config.Credentials, r.httpClient)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}

	r.accounts = repositories.NewAccountRepository(r.db)
	r.posts = repositories.NewPostRepository(r.db)
	r.jobs = repositories.NewSchedulerJobRepository(r.db)
	r.states = services.NewStateStore(r.config.OAuth.StateTTL())
	r.guard = services.NewTokenGuard(r.accounts, providers, shared.WithLogger(r.logger, "component", "guard"))
	r.guard.SetClock(r.now)
	r.clients = services.NewClientFactory(r.guard, r.httpClient, r.logger)
	for platform, base := range r.baseURLs {
		r.clients.SetBaseURL(platform, base)
	}
	r.flow = services.NewOAuthFlow(providers, r.states, r.accounts, r.clients, shared.WithLogger(r.logger, "component", "oauth"))
	return nil
}

// with wraps a command action so its dependencies are ready before it runs.
func (r *Runner) with(action cli.ActionFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if err := r.ensure(cmd); err != nil {
			return err
		}
		return action(ctx, cmd)
	}
}

// Close releases the database when the runner opened it.
func (r *Runner) Close() error {
	if r.db != nil && r.ownsDB {
		return r.db.Close()
	}
	return nil
}

// account resolves an account by id, falling back to its sequence number.
func (r *Runner) account(ref string) (*models.Account, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: account", shared.ErrMissingArgument)
	}

	account, err := r.accounts.Get(ref)
	if err == nil {
		return account, nil
	}

	accounts, listErr := r.accounts.List(nil)
	if listErr != nil {
		return nil, listErr
	}
	for _, a := range accounts {
		if fmt.Sprint(a.Sequence) == ref {
			return a, nil
		}
	}
	return nil, err
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
