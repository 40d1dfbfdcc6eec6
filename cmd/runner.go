package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/podx/internal/repositories"
	"github.com/desertthunder/podx/internal/services"
	"github.com/desertthunder/podx/internal/shared"
	"github.com/desertthunder/podx/internal/tasks"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database, HTTP client and remote clients are opened on first use so commands that never
// touch them (and tests) do not pay for them.
type Runner struct {
	config     *shared.Config
	store      *repositories.Store
	directory  services.Directory
	feeds      services.FeedSource
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	mu     sync.Mutex
	db     *sqlx.DB
	engine *tasks.PodcastEngine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	Store      *repositories.Store
	Directory  services.Directory
	Feeds      services.FeedSource
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		store:      opts.Store,
		directory:  opts.Directory,
		feeds:      opts.Feeds,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// Configure loads the file named by --config when it exists, then applies PODX_* overrides
// and the configured log level.
func (r *Runner) Configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" && cmd.IsSet("config") {
		config, err := shared.LoadConfig(path)
		if err != nil {
			return ctx, err
		}
		r.config = config
	}

	if err := shared.ApplyEnv(ctx, r.config, nil); err != nil {
		return ctx, err
	}
	shared.SetLogLevel(r.logger, shared.ParseLogLevel(r.config.Log.Level))
	return ctx, nil
}

// SetLogger replaces the logger. Call it before the engine is first used.
func (r *Runner) SetLogger(l *log.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = l
}

// Engine returns the podcast engine, opening the database and remote clients if needed.
func (r *Runner) Engine() (*tasks.PodcastEngine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engine != nil {
		return r.engine, nil
	}

	if r.store == nil {
		db, err := r.openDatabase()
		if err != nil {
			return nil, err
		}
		if err := shared.RunMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		r.db = db
		r.store = repositories.NewStore(db, r.logger)
	}

	if r.directory == nil || r.feeds == nil {
		if r.httpClient == nil {
			client, err := shared.NewHTTPClient(r.config.HTTP, r.logger)
			if err != nil {
				return nil, fmt.Errorf("failed to create http client: %w", err)
			}
			r.httpClient = client
		}
	}
	if r.directory == nil {
		r.directory = services.NewItunesService(services.ItunesOpts{
			BaseURL:    r.config.Directory.BaseURL,
			Country:    r.config.Directory.Country,
			HTTPClient: r.httpClient,
			RateLimit:  r.config.Directory.RateLimit,
			Burst:      r.config.Directory.Burst,
			Logger:     r.logger,
		})
	}
	if r.feeds == nil {
		r.feeds = services.NewFeedService(services.FeedOpts{
			HTTPClient: r.httpClient,
			Workers:    r.config.Feeds.Workers,
			Logger:     r.logger,
		})
	}

	r.engine = tasks.NewPodcastEngine(tasks.EngineOpts{
		Store:       r.store,
		Directory:   r.directory,
		Feeds:       r.feeds,
		FeedTTL:     r.config.Feeds.TTL,
		PageSize:    r.config.Feeds.PageSize,
		SyncWorkers: r.config.Feeds.Workers,
		Logger:      r.logger,
	})
	return r.engine, nil
}

func (r *Runner) openDatabase() (*sqlx.DB, error) {
	path := r.config.Database.Path
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	shared.ConfigureDatabase(db, path, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	return db, nil
}

// Close releases the database opened by [Runner.Engine].
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	r.store = nil
	r.engine = nil
	return err
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, searchCommand, subscribedCommand, toggleCommand, deleteCommand,
		showCommand, episodesCommand, syncCommand, exportCommand, openCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

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

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
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
