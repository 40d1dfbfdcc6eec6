// package repositories provides persistence layer implementations for all model types.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/podx/internal/shared"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/sethvargo/go-retry"
)

// Table names used for change notifications.
const (
	TablePodcasts      = "podcasts"
	TableEpisodes      = "episodes"
	TableSearchResults = "search_results"
)

// Store is the entry point to local storage. A Store returned by [Store.WithTx] is bound to
// the transaction and defers its change notifications until commit.
type Store struct {
	db       *sqlx.DB
	tx       *sqlx.Tx
	notifier *Notifier
	pending  map[string]struct{}
	logger   *log.Logger

	Podcasts      *PodcastRepository
	Episodes      *EpisodeRepository
	SearchResults *SearchResultRepository
}

// NewStore creates a Store over db. The logger defaults to stderr.
func NewStore(db *sqlx.DB, logger *log.Logger) *Store {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	s := &Store{
		db:       db,
		notifier: NewNotifier(),
		logger:   shared.WithLogger(logger, "component", "store"),
	}
	s.bind(db)
	return s
}

func (s *Store) bind(ext sqlx.ExtContext) {
	s.Podcasts = &PodcastRepository{db: ext, touch: s.touch}
	s.Episodes = &EpisodeRepository{db: ext, touch: s.touch}
	s.SearchResults = &SearchResultRepository{db: ext, touch: s.touch}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Subscribe registers for change notifications on tables. See [Notifier.Subscribe].
func (s *Store) Subscribe(tables ...string) (<-chan struct{}, func()) {
	return s.notifier.Subscribe(tables...)
}

func (s *Store) touch(table string) {
	if s.tx != nil {
		s.pending[table] = struct{}{}
		return
	}
	s.notifier.Notify(table)
}

// WithTx runs fn inside a transaction and commits when fn returns nil.
//
// A Store already bound to a transaction runs fn directly. Transactions that fail because the
// database is busy are retried a few times with backoff; any other error rolls back and is
// returned unchanged.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(20*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.runTx(ctx, fn)
		if isBusy(err) {
			s.logger.Debug("database busy, retrying transaction", "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *Store) runTx(ctx context.Context, fn func(tx *Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txStore := &Store{
		db:       s.db,
		tx:       tx,
		notifier: s.notifier,
		pending:  make(map[string]struct{}),
		logger:   s.logger,
	}
	txStore.bind(tx)

	if err := fn(txStore); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	tables := make([]string, 0, len(txStore.pending))
	for table := range txStore.pending {
		tables = append(tables, table)
	}
	s.notifier.Notify(tables...)
	return nil
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}

// notFound maps [sql.ErrNoRows] to [shared.ErrNotFound].
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: "+format, append([]any{shared.ErrNotFound}, args...)...)
	}
	return err
}

// nullableID stores the zero id as NULL.
func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// requireRow reports [shared.ErrNotFound] when result touched no rows.
func requireRow(result sql.Result, format string, args ...any) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: "+format, append([]any{shared.ErrNotFound}, args...)...)
	}
	return nil
}
