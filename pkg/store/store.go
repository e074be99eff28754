package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Config configures Init. Zero-value fields fall back to DefaultConfig's
// values where noted.
type Config struct {
	// Path is the SQLite database file path ("" defaults to "memory.db").
	Path string
	// MaxOpenConns bounds the reader pool (default 50).
	MaxOpenConns int
	// MaxIdleConns bounds idle pooled connections (default 10).
	MaxIdleConns int
	// ConnMaxLifetime recycles pooled connections (default 2h).
	ConnMaxLifetime time.Duration
	// WriteQueueCapacity bounds pending write operations (default 1000,
	// overflow fails fast with ErrQueueFull).
	WriteQueueCapacity int
	Logger             Logger
}

// DefaultConfig returns the standard pool sizing and write-queue capacity.
func DefaultConfig() Config {
	return Config{
		Path:               "memory.db",
		MaxOpenConns:       50,
		MaxIdleConns:       10,
		ConnMaxLifetime:    2 * time.Hour,
		WriteQueueCapacity: 1000,
		Logger:             NopLogger(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Path == "" {
		c.Path = d.Path
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = d.MaxOpenConns
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = d.MaxIdleConns
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = d.ConnMaxLifetime
	}
	if c.WriteQueueCapacity == 0 {
		c.WriteQueueCapacity = d.WriteQueueCapacity
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return c
}

// Store is the storage substrate: a pooled *sql.DB for reads plus one
// dedicated writer goroutine draining a bounded queue.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	config Config
	logger Logger
	closed bool

	writeCh  chan writeJob
	writeWG  sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

type writeJob struct {
	fn   func(ctx context.Context, tx *sql.Tx) error
	done chan error
}

// New opens the database, applies migrations, and starts the writer.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-2000", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{
		db:      db,
		config:  cfg,
		logger:  cfg.Logger,
		writeCh: make(chan writeJob, cfg.WriteQueueCapacity),
		stopCh:  make(chan struct{}),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.writeWG.Add(1)
	go s.runWriter()

	s.logger.Info("store initialized", "path", cfg.Path)
	return s, nil
}

// DB exposes the underlying pool for components that run their own
// read-only queries (BM25 rebuild scans, graph corpus scans) without going
// through the write queue.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close stops the writer and closes the pool. Safe to call once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopCh) })
	s.writeWG.Wait()
	return s.db.Close()
}

// runWriter is the sole serialization point for mutations: one goroutine
// drains writeCh and runs each job inside its own transaction.
func (s *Store) runWriter() {
	defer s.writeWG.Done()
	for {
		select {
		case job := <-s.writeCh:
			job.done <- s.runInTx(job.fn)
		case <-s.stopCh:
			// Drain whatever is already queued before exiting so callers
			// blocked on submit don't hang forever.
			for {
				select {
				case job := <-s.writeCh:
					job.done <- s.runInTx(job.fn)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) runInTx(fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// submitWrite enqueues fn for serialized execution, failing fast with
// ErrQueueFull when the write queue is at capacity.
func (s *Store) submitWrite(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	done := make(chan error, 1)
	job := writeJob{fn: fn, done: done}

	select {
	case s.writeCh <- job:
	default:
		return ErrQueueFull
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
