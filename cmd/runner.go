package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/encore/internal/auth"
	"github.com/desertthunder/encore/internal/cache"
	"github.com/desertthunder/encore/internal/catalog"
	"github.com/desertthunder/encore/internal/client"
	"github.com/desertthunder/encore/internal/playback"
	"github.com/desertthunder/encore/internal/shared"
	"github.com/desertthunder/encore/internal/store"
	"github.com/desertthunder/encore/internal/tasks"
	"github.com/desertthunder/encore/internal/ui"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	styles     *ui.Palette

	// wired lazily by ensureStack
	db        *sql.DB
	documents *store.SQLiteStore
	memo      *cache.Cache
	tokens    *auth.TokenStore
	catalog   *catalog.Service
	sessions  *playback.SessionStore
	machine   *playback.Machine
	engine    *tasks.Engine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Styles     *ui.Palette
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
	if opts.Styles == nil {
		opts.Styles = ui.DefaultPalette
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		styles:     opts.Styles,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, linkCommand, searchCommand, favoritesCommand, playCommand, eventCommand, resumeCommand, historyCommand, sweepCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// ensureStack opens the database and wires the cache, stores, resilient
// client, refresh coordinator, catalog service, playback machine, and
// maintenance engine. It is idempotent.
func (r *Runner) ensureStack(ctx context.Context) error {
	if r.db != nil {
		return nil
	}

	cfg := r.config

	db, err := shared.NewDatabase(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.db = db
	r.documents = store.NewSQLiteStore(db)
	r.memo = cache.New(cfg.Cache.MaxEntriesPerNamespace)
	r.memo.StartSweeper(time.Duration(cfg.Cache.SweepIntervalSeconds) * time.Second)
	r.tokens = auth.NewTokenStore(r.documents)

	apiClient := client.New(client.Opts{
		BaseURL:  cfg.Catalog.BaseURL,
		ClientID: cfg.Catalog.ClientID,
		Policy: &client.RetryPolicy{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
			MaxDelay:   time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
		},
		AttemptTimeout: time.Duration(cfg.Retry.AttemptTimeoutMS) * time.Millisecond,
		RatePerSec:     cfg.Catalog.RatePerSec,
		Logger:         r.logger,
	})

	exchanger := auth.NewExchanger(apiClient, cfg.Catalog.TokenURL, cfg.Catalog.ClientID, cfg.Catalog.ClientSecret)
	coordinator := auth.NewCoordinator(r.tokens, exchanger, r.memo, r.logger)

	r.catalog = catalog.NewService(apiClient, coordinator, r.memo, catalog.DefaultTTLPolicy, r.logger)
	r.sessions = playback.NewSessionStore(r.documents, 0)
	r.machine = playback.NewMachine(r.sessions, r.catalog, r.logger)
	r.engine = tasks.NewEngine(r.documents, r.tokens, r.sessions, r.memo, r.logger)

	return nil
}

// Close stops the background cache sweeper and releases the database handle
// if the stack was wired.
func (r *Runner) Close() {
	if r.memo != nil {
		r.memo.Stop()
	}
	if r.db != nil {
		r.db.Close()
		r.db = nil
	}
}

const (
	settingsPartition = "app#settings"
	currentUserKey    = "current_user"
)

type currentUser struct {
	UserID string `json:"user_id"`
}

// saveCurrentUser records which linked account subsequent commands act as.
func (r *Runner) saveCurrentUser(ctx context.Context, userID string) error {
	body, err := store.MarshalBody(currentUser{UserID: userID})
	if err != nil {
		return err
	}
	return r.documents.PutItem(ctx, store.Item{
		Key:  store.Key{Partition: settingsPartition, Sort: currentUserKey},
		Body: body,
	})
}

// session resolves the current user and their access token.
func (r *Runner) session(ctx context.Context) (string, string, error) {
	item, err := r.documents.GetItem(ctx, store.Key{Partition: settingsPartition, Sort: currentUserKey})
	if err != nil {
		return "", "", err
	}
	if item == nil {
		return "", "", fmt.Errorf("%w: no account linked, run 'encore link'", shared.ErrAuthFailed)
	}

	var cu currentUser
	if err := store.UnmarshalBody(item, &cu); err != nil {
		return "", "", err
	}

	record, err := r.tokens.GetByUser(ctx, cu.UserID)
	if err != nil {
		return "", "", err
	}
	if record == nil {
		return "", "", fmt.Errorf("%w: account %s is not linked, run 'encore link'", shared.ErrAuthFailed, cu.UserID)
	}

	return record.UserID, record.AccessToken, nil
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

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
