// Package embedcache implements C4: the two-tier embedding cache — a
// bounded in-memory LRU (L1) over a durable SQLite table (L2), with
// write-behind batching (spec.md §4.4).
package embedcache

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/kitsune-search/containerindex/internal/cerr"
	"github.com/kitsune-search/containerindex/internal/serialize"
)

// Defaults named in §4.4.
const (
	DefaultL1Capacity  = 10000
	DefaultFlushInterval = 1 * time.Second
	DefaultBatchSize     = 100
	DefaultMaxBuffer     = 1000
	ShutdownFlushTimeout = 3 * time.Second
)

type writeEntry struct {
	fp        uint64
	bytes     []byte
	createdAt int64
}

// Cache is C4: fingerprint -> unit-norm vector, backed by L1 (LRU) and
// L2 (SQLite), with a dedicated write-behind flusher.
type Cache struct {
	logger *slog.Logger
	dim    int

	l1 *lru.Cache[uint64, []float32]
	db *sql.DB

	flushInterval time.Duration
	batchSize     int
	maxBuffer     int

	mu            sync.Mutex
	buffer        []writeEntry
	flushPending  bool
	closed        bool
	stopFlusher   chan struct{}
	flusherDone   chan struct{}
}

// Config configures Cache construction.
type Config struct {
	Path          string // SQLite file path; "" for in-memory
	L1Capacity    int
	FlushInterval time.Duration
	BatchSize     int
	MaxBuffer     int
	Dimension     int
}

// New opens (or creates) the durable table and starts the write-behind
// flusher goroutine.
func New(cfg Config, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.L1Capacity <= 0 {
		cfg.L1Capacity = DefaultL1Capacity
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = DefaultMaxBuffer
	}

	dsn := ":memory:"
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, cerr.Wrap(cerr.CodeCacheIO, err)
		}
		dsn = cfg.Path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeCacheIO, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS embedding_cache (
		fp INTEGER PRIMARY KEY,
		embedding BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, cerr.Wrap(cerr.CodeCacheIO, err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_embedding_cache_created_at
		ON embedding_cache(created_at)`); err != nil {
		_ = db.Close()
		return nil, cerr.Wrap(cerr.CodeCacheIO, err)
	}

	l1, err := lru.New[uint64, []float32](cfg.L1Capacity)
	if err != nil {
		_ = db.Close()
		return nil, cerr.Wrap(cerr.CodeInternal, err)
	}

	c := &Cache{
		logger:        logger,
		dim:           cfg.Dimension,
		l1:            l1,
		db:            db,
		flushInterval: cfg.FlushInterval,
		batchSize:     cfg.BatchSize,
		maxBuffer:     cfg.MaxBuffer,
		stopFlusher:   make(chan struct{}),
		flusherDone:   make(chan struct{}),
	}

	go c.flushLoop()

	return c, nil
}

// Get returns the cached vector for fp, consulting L1 then L2 and
// promoting an L2 hit into L1 (§4.4).
func (c *Cache) Get(ctx context.Context, fp uint64) ([]float32, bool) {
	if v, ok := c.l1.Get(fp); ok {
		if c.dim != 0 && len(v) != c.dim {
			// Defensive: unexpected length invalidates the L1 entry and
			// is treated as a miss (SPEC_FULL.md Open Question 2).
			c.l1.Remove(fp)
		} else {
			return v, true
		}
	}

	v, ok, err := c.getFromL2(ctx, fp)
	if err != nil {
		c.logger.Warn("cache l2 get failed, degrading to miss", slog.String("error", err.Error()))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	c.l1.Add(fp, v)
	return v, true
}

// GetAll resolves every fingerprint in fps, doing one L1 scan followed by
// a single batched L2 lookup for the L1 misses (§4.4).
func (c *Cache) GetAll(ctx context.Context, fps []uint64) map[uint64][]float32 {
	out := make(map[uint64][]float32, len(fps))
	var misses []uint64

	for _, fp := range fps {
		if v, ok := c.l1.Get(fp); ok {
			if c.dim != 0 && len(v) != c.dim {
				c.l1.Remove(fp)
				misses = append(misses, fp)
			} else {
				out[fp] = v
			}
			continue
		}
		misses = append(misses, fp)
	}

	if len(misses) == 0 {
		return out
	}

	found, err := c.getAllFromL2(ctx, misses)
	if err != nil {
		c.logger.Warn("cache l2 batch get failed, degrading to partial miss", slog.String("error", err.Error()))
		return out
	}
	for fp, v := range found {
		c.l1.Add(fp, v)
		out[fp] = v
	}
	return out
}

// Put populates L1 immediately and enqueues the durable write (§4.4).
func (c *Cache) Put(fp uint64, v []float32) {
	c.l1.Add(fp, v)
	c.enqueue(writeEntry{fp: fp, bytes: serialize.VectorBytes(v), createdAt: time.Now().Unix()})
}

// PutAll is the batched form of Put.
func (c *Cache) PutAll(entries map[uint64][]float32) {
	now := time.Now().Unix()
	for fp, v := range entries {
		c.l1.Add(fp, v)
		c.enqueueNoLock(writeEntry{fp: fp, bytes: serialize.VectorBytes(v), createdAt: now})
	}
	c.maybeScheduleFlush()
}

func (c *Cache) enqueue(e writeEntry) {
	c.mu.Lock()
	c.buffer = append(c.buffer, e)
	shouldFlushNow := len(c.buffer) >= c.batchSize || (len(c.buffer) > c.maxBuffer && !c.flushPending)
	c.mu.Unlock()

	if shouldFlushNow {
		c.scheduleImmediateFlush()
	}
}

func (c *Cache) enqueueNoLock(e writeEntry) {
	// Caller (PutAll) already holds no lock per-entry; reuse enqueue's
	// locking so concurrent Put/PutAll stay consistent.
	c.mu.Lock()
	c.buffer = append(c.buffer, e)
	c.mu.Unlock()
}

func (c *Cache) maybeScheduleFlush() {
	c.mu.Lock()
	shouldFlushNow := len(c.buffer) >= c.batchSize || (len(c.buffer) > c.maxBuffer && !c.flushPending)
	c.mu.Unlock()
	if shouldFlushNow {
		c.scheduleImmediateFlush()
	}
}

func (c *Cache) scheduleImmediateFlush() {
	c.mu.Lock()
	if c.flushPending {
		c.mu.Unlock()
		return
	}
	c.flushPending = true
	c.mu.Unlock()

	go func() {
		c.flushOnce(context.Background())
		c.mu.Lock()
		c.flushPending = false
		c.mu.Unlock()
	}()
}

// flushLoop wakes every flushInterval and drains the buffer (§4.4).
func (c *Cache) flushLoop() {
	defer close(c.flusherDone)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if c.flushPending {
				c.mu.Unlock()
				continue
			}
			c.flushPending = true
			c.mu.Unlock()
			c.flushOnce(context.Background())
			c.mu.Lock()
			c.flushPending = false
			c.mu.Unlock()
		case <-c.stopFlusher:
			return
		}
	}
}

// flushOnce drains up to batchSize entries and performs one batched
// upsert. Both background callers (the periodic ticker in flushLoop and
// the immediate-flush goroutine) set the single flush_pending flag before
// calling it and skip their flush when it is already set, so those two
// never overlap.
func (c *Cache) flushOnce(ctx context.Context) {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	n := len(c.buffer)
	if n > c.batchSize {
		n = c.batchSize
	}
	batch := c.buffer[:n]
	c.buffer = c.buffer[n:]
	c.mu.Unlock()

	if err := c.upsertBatch(ctx, batch); err != nil {
		c.logger.Warn("cache flush failed", slog.String("error", err.Error()), slog.Int("batch_size", len(batch)))
	}
}

// Flush drains the entire buffer synchronously.
func (c *Cache) Flush(ctx context.Context) error {
	for {
		c.mu.Lock()
		if len(c.buffer) == 0 {
			c.mu.Unlock()
			return nil
		}
		n := len(c.buffer)
		if n > c.batchSize {
			n = c.batchSize
		}
		batch := c.buffer[:n]
		c.buffer = c.buffer[n:]
		c.mu.Unlock()

		if err := c.upsertBatch(ctx, batch); err != nil {
			return cerr.Wrap(cerr.CodeCacheIO, err)
		}
	}
}

// Clear drops the write buffer and truncates the durable table.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.buffer = nil
	c.mu.Unlock()

	c.l1.Purge()

	if _, err := c.db.ExecContext(ctx, `DELETE FROM embedding_cache`); err != nil {
		return cerr.Wrap(cerr.CodeCacheIO, err)
	}
	return nil
}

// Size returns the authoritative row count from L2.
func (c *Cache) Size(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_cache`).Scan(&n)
	if err != nil {
		return 0, cerr.Wrap(cerr.CodeCacheIO, err)
	}
	return n, nil
}

// Shutdown issues a final bounded flush and stops the flusher goroutine.
// Remaining writes past the deadline are lost (§4.4).
func (c *Cache) Shutdown() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stopFlusher)
	<-c.flusherDone

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownFlushTimeout)
	defer cancel()
	if err := c.Flush(ctx); err != nil {
		c.logger.Warn("shutdown flush incomplete, remaining writes dropped", slog.String("error", err.Error()))
	}

	return c.db.Close()
}

func (c *Cache) getFromL2(ctx context.Context, fp uint64) ([]float32, bool, error) {
	var blob []byte
	err := c.db.QueryRowContext(ctx, `SELECT embedding FROM embedding_cache WHERE fp = ?`, int64(fp)).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return serialize.BytesToVector(blob), true, nil
}

func (c *Cache) getAllFromL2(ctx context.Context, fps []uint64) (map[uint64][]float32, error) {
	if len(fps) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(fps))
	args := make([]any, len(fps))
	for i, fp := range fps {
		placeholders[i] = "?"
		args[i] = int64(fp)
	}
	query := fmt.Sprintf(`SELECT fp, embedding FROM embedding_cache WHERE fp IN (%s)`, joinComma(placeholders))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uint64][]float32, len(fps))
	for rows.Next() {
		var fp int64
		var blob []byte
		if err := rows.Scan(&fp, &blob); err != nil {
			return nil, err
		}
		out[uint64(fp)] = serialize.BytesToVector(blob)
	}
	return out, rows.Err()
}

func (c *Cache) upsertBatch(ctx context.Context, batch []writeEntry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO embedding_cache (fp, embedding, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(fp) DO UPDATE SET embedding = excluded.embedding, created_at = excluded.created_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.ExecContext(ctx, int64(e.fp), e.bytes, e.createdAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func joinComma(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "," + p
	}
	return out
}
