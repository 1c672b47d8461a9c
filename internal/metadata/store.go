// Package metadata implements C6: the relational store of record for
// containers and items, backed by modernc.org/sqlite in WAL mode.
package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kitsune-search/containerindex/internal/cerr"
	"github.com/kitsune-search/containerindex/internal/item"
)

// BlockCoord is one world-space block position.
type BlockCoord struct {
	X, Y, Z int64
}

func (c BlockCoord) less(o BlockCoord) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	if c.Y != o.Y {
		return c.Y < o.Y
	}
	return c.Z < o.Z
}

// ContainerRow mirrors spec.md §4.6's ContainerRow.
type ContainerRow struct {
	ContainerID   string
	World         string
	Primary       BlockCoord
	ContainerType string
	LastIndexedAt int64
}

// ItemRow mirrors spec.md §4.6's ItemRow.
type ItemRow struct {
	Ordinal        uint64
	ContainerID    string
	Slot           int
	ContainerPath  item.ContainerPath
	Fingerprint    uint64
	StorageRecord  []byte
	IndexedAt      int64
}

// Store is C6, grounded on the teacher's SQLiteBM25Index single-writer
// connection-pool and pragma setup (internal/store/sqlite_bm25.go),
// generalized from a full-text index to the container/item relational
// schema of §4.6.
type Store struct {
	mu sync.Mutex // serializes writes; modernc.org/sqlite is single-writer
	db *sql.DB
}

// Open creates or opens the metadata database at path (":memory:" style
// empty path is not supported here; callers needing an in-memory store
// pass "file::memory:?cache=shared", whose existing query string the
// pragma parameters are appended to with "&").
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, cerr.Wrap(cerr.CodeMetadataIO, err)
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		dsn = path + sep + "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, cerr.Wrap(cerr.CodeMetadataIO, err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS containers (
		container_id     TEXT PRIMARY KEY,
		world            TEXT NOT NULL,
		primary_x        INTEGER NOT NULL,
		primary_y        INTEGER NOT NULL,
		primary_z        INTEGER NOT NULL,
		container_type   TEXT NOT NULL DEFAULT '',
		last_indexed_at  INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_containers_x ON containers(world, primary_x);
	CREATE INDEX IF NOT EXISTS idx_containers_z ON containers(world, primary_z);

	CREATE TABLE IF NOT EXISTS container_blocks (
		world        TEXT NOT NULL,
		x            INTEGER NOT NULL,
		y            INTEGER NOT NULL,
		z            INTEGER NOT NULL,
		container_id TEXT NOT NULL REFERENCES containers(container_id) ON DELETE CASCADE,
		PRIMARY KEY (world, x, y, z)
	);
	CREATE INDEX IF NOT EXISTS idx_container_blocks_x ON container_blocks(world, x);
	CREATE INDEX IF NOT EXISTS idx_container_blocks_z ON container_blocks(world, z);
	CREATE INDEX IF NOT EXISTS idx_container_blocks_container ON container_blocks(container_id);

	CREATE TABLE IF NOT EXISTS items (
		ordinal         INTEGER PRIMARY KEY AUTOINCREMENT,
		container_id    TEXT NOT NULL REFERENCES containers(container_id) ON DELETE CASCADE,
		slot            INTEGER NOT NULL,
		container_path  TEXT NOT NULL,
		fingerprint     INTEGER NOT NULL,
		storage_record  BLOB NOT NULL,
		indexed_at      INTEGER NOT NULL,
		UNIQUE(container_id, slot, container_path)
	);
	CREATE INDEX IF NOT EXISTS idx_items_container ON items(container_id);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	return nil
}

// pathKey canonically encodes a ContainerPath for the UNIQUE(container_id,
// slot, container_path) constraint; item.ContainerPath.Key() alone loses
// color/name information, so the full JSON form is used here instead.
func pathKey(p item.ContainerPath) (string, error) {
	if len(p) == 0 {
		return "", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodePathKey(s string) (item.ContainerPath, error) {
	if s == "" {
		return item.Root, nil
	}
	var p item.ContainerPath
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpsertContainer resolves the container_id owning any of coords, or
// creates one with a fresh UUID if none exists. All coords are attached
// to that container, and the container's primary location is recomputed
// as the lexicographically smallest coord across every attached block
// (SPEC_FULL.md Open Question 4).
func (s *Store) UpsertContainer(ctx context.Context, world string, coords []BlockCoord) (string, error) {
	if len(coords) == 0 {
		return "", cerr.New(cerr.CodeInvalidInput, "upsert_container requires at least one coordinate", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	defer func() { _ = tx.Rollback() }()

	containerID, err := s.resolveContainerIDLocked(ctx, tx, world, coords)
	if err != nil {
		return "", err
	}

	for _, c := range coords {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO container_blocks (world, x, y, z, container_id)
			VALUES (?, ?, ?, ?, ?)`, world, c.X, c.Y, c.Z, containerID); err != nil {
			return "", cerr.Wrap(cerr.CodeMetadataIO, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO containers (container_id, world, primary_x, primary_y, primary_z)
		VALUES (?, ?, 0, 0, 0)
		ON CONFLICT(container_id) DO NOTHING`, containerID, world); err != nil {
		return "", cerr.Wrap(cerr.CodeMetadataIO, err)
	}

	primary, err := smallestCoordLocked(ctx, tx, containerID)
	if err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE containers SET primary_x = ?, primary_y = ?, primary_z = ?
		WHERE container_id = ?`, primary.X, primary.Y, primary.Z, containerID); err != nil {
		return "", cerr.Wrap(cerr.CodeMetadataIO, err)
	}

	if err := tx.Commit(); err != nil {
		return "", cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	return containerID, nil
}

func (s *Store) resolveContainerIDLocked(ctx context.Context, tx *sql.Tx, world string, coords []BlockCoord) (string, error) {
	for _, c := range coords {
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT container_id FROM container_blocks
			WHERE world = ? AND x = ? AND y = ? AND z = ?`, world, c.X, c.Y, c.Z).Scan(&existing)
		if err == nil {
			return existing, nil
		}
		if err != sql.ErrNoRows {
			return "", cerr.Wrap(cerr.CodeMetadataIO, err)
		}
	}
	return uuid.NewString(), nil
}

func smallestCoordLocked(ctx context.Context, tx *sql.Tx, containerID string) (BlockCoord, error) {
	rows, err := tx.QueryContext(ctx, `SELECT x, y, z FROM container_blocks WHERE container_id = ?`, containerID)
	if err != nil {
		return BlockCoord{}, cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	defer rows.Close()

	var smallest BlockCoord
	have := false
	for rows.Next() {
		var c BlockCoord
		if err := rows.Scan(&c.X, &c.Y, &c.Z); err != nil {
			return BlockCoord{}, cerr.Wrap(cerr.CodeMetadataIO, err)
		}
		if !have || c.less(smallest) {
			smallest = c
			have = true
		}
	}
	return smallest, rows.Err()
}

// SetContainerType records the container's display type (e.g. "chest",
// "barrel"), supplied by the indexer from the root item it is scanning
// since coordinates alone don't imply a block type.
func (s *Store) SetContainerType(ctx context.Context, containerID, containerType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE containers SET container_type = ? WHERE container_id = ?`, containerType, containerID)
	if err != nil {
		return cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	return nil
}

// TouchLastIndexed sets last_indexed_at (§4.7 step 6).
func (s *Store) TouchLastIndexed(ctx context.Context, containerID string, unixSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE containers SET last_indexed_at = ? WHERE container_id = ?`, unixSeconds, containerID)
	if err != nil {
		return cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	return nil
}

// UpsertItem assigns a fresh ordinal for a new (container_id, slot,
// container_path), or returns the existing one with its fingerprint and
// storage_record replaced (§4.6).
func (s *Store) UpsertItem(ctx context.Context, containerID string, slot int, path item.ContainerPath, fingerprint uint64, storageRecord []byte) (uint64, error) {
	key, err := pathKey(path)
	if err != nil {
		return 0, cerr.Wrap(cerr.CodeInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowUnix()

	_, err = s.db.ExecContext(ctx, `INSERT INTO items (container_id, slot, container_path, fingerprint, storage_record, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(container_id, slot, container_path) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			storage_record = excluded.storage_record,
			indexed_at = excluded.indexed_at`,
		containerID, slot, key, int64(fingerprint), storageRecord, now)
	if err != nil {
		return 0, cerr.Wrap(cerr.CodeMetadataIO, err)
	}

	var ordinal uint64
	err = s.db.QueryRowContext(ctx, `SELECT ordinal FROM items WHERE container_id = ? AND slot = ? AND container_path = ?`,
		containerID, slot, key).Scan(&ordinal)
	if err != nil {
		return 0, cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	return ordinal, nil
}

// ContainerLocation returns the world and every attached block coord for
// containerID, used by C8 to group hits by location (§4.8 step 4).
func (s *Store) ContainerLocation(ctx context.Context, containerID string) (string, []BlockCoord) {
	var world string
	rows, err := s.db.QueryContext(ctx, `SELECT world, x, y, z FROM container_blocks WHERE container_id = ?`, containerID)
	if err != nil {
		return "", nil
	}
	defer rows.Close()

	var coords []BlockCoord
	for rows.Next() {
		var c BlockCoord
		if err := rows.Scan(&world, &c.X, &c.Y, &c.Z); err != nil {
			return "", nil
		}
		coords = append(coords, c)
	}
	return world, coords
}

// DeleteItem removes one item row.
func (s *Store) DeleteItem(ctx context.Context, ordinal uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE ordinal = ?`, ordinal)
	if err != nil {
		return cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	return nil
}

// DeleteContainer removes a container and, via ON DELETE CASCADE, its
// blocks and items.
func (s *Store) DeleteContainer(ctx context.Context, containerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM containers WHERE container_id = ?`, containerID)
	if err != nil {
		return cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	return nil
}

// GetItemsByContainer returns every item row for a container.
func (s *Store) GetItemsByContainer(ctx context.Context, containerID string) ([]ItemRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ordinal, container_id, slot, container_path, fingerprint, storage_record, indexed_at
		FROM items WHERE container_id = ?`, containerID)
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	defer rows.Close()
	return scanItemRows(rows)
}

// GetRow fetches one item row by ordinal.
func (s *Store) GetRow(ctx context.Context, ordinal uint64) (*ItemRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT ordinal, container_id, slot, container_path, fingerprint, storage_record, indexed_at
		FROM items WHERE ordinal = ?`, ordinal)

	var r ItemRow
	var pathStr string
	err := row.Scan(&r.Ordinal, &r.ContainerID, &r.Slot, &pathStr, &r.Fingerprint, &r.StorageRecord, &r.IndexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	r.ContainerPath, err = decodePathKey(pathStr)
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	return &r, nil
}

// GetRows batch-fetches item rows by ordinal.
func (s *Store) GetRows(ctx context.Context, ordinals []uint64) (map[uint64]ItemRow, error) {
	out := make(map[uint64]ItemRow, len(ordinals))
	if len(ordinals) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(ordinals))
	args := make([]any, len(ordinals))
	for i, o := range ordinals {
		placeholders[i] = "?"
		args[i] = o
	}
	query := fmt.Sprintf(`SELECT ordinal, container_id, slot, container_path, fingerprint, storage_record, indexed_at
		FROM items WHERE ordinal IN (%s)`, joinComma(placeholders))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	defer rows.Close()

	list, err := scanItemRows(rows)
	if err != nil {
		return nil, err
	}
	for _, r := range list {
		out[r.Ordinal] = r
	}
	return out, nil
}

func scanItemRows(rows *sql.Rows) ([]ItemRow, error) {
	var out []ItemRow
	for rows.Next() {
		var r ItemRow
		var pathStr string
		if err := rows.Scan(&r.Ordinal, &r.ContainerID, &r.Slot, &pathStr, &r.Fingerprint, &r.StorageRecord, &r.IndexedAt); err != nil {
			return nil, cerr.Wrap(cerr.CodeMetadataIO, err)
		}
		p, err := decodePathKey(pathStr)
		if err != nil {
			return nil, cerr.Wrap(cerr.CodeMetadataIO, err)
		}
		r.ContainerPath = p
		out = append(out, r)
	}
	return out, rows.Err()
}

// ContainersInRadius returns container_ids whose primary location lies
// within r of (x,y,z), grounding the spatial lookup on a btree
// bounding-box prefilter over indexed coordinate columns followed by an
// exact Euclidean-distance filter in Go (SPEC_FULL.md Open Question 3:
// modernc.org/sqlite has no usable rtree virtual table at the pinned
// version).
func (s *Store) ContainersInRadius(ctx context.Context, world string, x, y, z, r float64) ([]string, error) {
	minX, maxX := x-r, x+r
	minZ, maxZ := z-r, z+r

	rows, err := s.db.QueryContext(ctx, `SELECT container_id, primary_x, primary_y, primary_z FROM containers
		WHERE world = ? AND primary_x BETWEEN ? AND ? AND primary_z BETWEEN ? AND ?`,
		world, minX, maxX, minZ, maxZ)
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	defer rows.Close()

	rSq := r * r
	var out []string
	for rows.Next() {
		var id string
		var px, py, pz int64
		if err := rows.Scan(&id, &px, &py, &pz); err != nil {
			return nil, cerr.Wrap(cerr.CodeMetadataIO, err)
		}
		dx, dy, dz := float64(px)-x, float64(py)-y, float64(pz)-z
		if dx*dx+dy*dy+dz*dz <= rSq {
			out = append(out, id)
		}
	}
	return out, rows.Err()
}

// AllOrdinals returns every item ordinal, used at startup to seed C5's
// sparse vector map from C4 lookups (§4.6).
func (s *Store) AllOrdinals(ctx context.Context) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ordinal FROM items`)
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	defer rows.Close()

	var out []uint64
	for rows.Next() {
		var o uint64
		if err := rows.Scan(&o); err != nil {
			return nil, cerr.Wrap(cerr.CodeMetadataIO, err)
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func nowUnix() int64 {
	return time.Now().Unix()
}

func joinComma(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "," + p
	}
	return out
}
