package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/viant/filesearch/engine"
	"github.com/viant/filesearch/vector"
)

// Catalog is the SQLite-backed FileCatalog. It is safe for concurrent use:
// write transactions are serialised by a mutex, reads go straight to the
// connection pool.
type Catalog struct {
	db      *sql.DB
	owned   bool
	logger  *slog.Logger
	writeMu sync.Mutex
	dim     atomic.Int64
}

type options struct {
	dimension int
	logger    *slog.Logger
}

// Option configures a Catalog.
type Option func(*options)

// WithDimension fixes the corpus dimension up front instead of learning it
// from the first embedding written. Opening a catalog whose stored dimension
// differs fails.
func WithDimension(d int) Option {
	return func(o *options) { o.dimension = d }
}

// WithLogger sets the logger used for debug and warning output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Open opens (or creates) the catalog database at dsn. Any error is a
// *StorageError or *DimensionMismatchError; callers treat it as fatal.
func Open(ctx context.Context, dsn string, opts ...Option) (*Catalog, error) {
	db, err := engine.Open(dsn)
	if err != nil {
		return nil, storageErr("open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storageErr("open", err)
	}
	c, err := New(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c.owned = true
	return c, nil
}

// New wraps an already open database. The schema is created if missing and
// the stored corpus dimension is loaded.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Catalog, error) {
	if db == nil {
		return nil, storageErr("open", fmt.Errorf("db is nil"))
	}
	o := &options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(o)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	c := &Catalog{db: db, logger: o.logger}
	if err := c.loadDimension(ctx, o.dimension); err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases the database if the catalog opened it.
func (c *Catalog) Close() error {
	if !c.owned {
		return nil
	}
	return storageErr("close", c.db.Close())
}

// Dimension returns the corpus dimension, 0 while no embedding was stored.
func (c *Catalog) Dimension() int { return int(c.dim.Load()) }

func (c *Catalog) loadDimension(ctx context.Context, preset int) error {
	stored, err := c.storedDimension(ctx)
	if err != nil {
		return err
	}
	switch {
	case stored > 0 && preset > 0 && stored != preset:
		return &DimensionMismatchError{Expected: stored, Actual: preset}
	case stored > 0:
		c.dim.Store(int64(stored))
	case preset > 0:
		if _, err := c.db.ExecContext(ctx, `INSERT OR REPLACE INTO catalog_meta(key, value) VALUES(?, ?)`,
			metaDimension, strconv.Itoa(preset)); err != nil {
			return storageErr("store dimension", err)
		}
		c.dim.Store(int64(preset))
	}
	return nil
}

// storedDimension reads the dimension from catalog_meta, falling back to the
// length of any stored embedding.
func (c *Catalog) storedDimension(ctx context.Context) (int, error) {
	var value string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM catalog_meta WHERE key = ?`, metaDimension).Scan(&value)
	switch {
	case err == nil:
		d, err := strconv.Atoi(value)
		if err != nil {
			return 0, storageErr("load dimension", err)
		}
		return d, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, storageErr("load dimension", err)
	}
	var size int
	err = c.db.QueryRowContext(ctx, `SELECT length(vector) FROM embeddings LIMIT 1`).Scan(&size)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, storageErr("load dimension", err)
	}
	return size / 4, nil
}

// IsStale reports whether path needs (re)indexing: true when the path is
// unknown or its stored modification time is older than modified.
func (c *Catalog) IsStale(ctx context.Context, path string, modified int64) (bool, error) {
	var stored int64
	err := c.db.QueryRowContext(ctx, `SELECT last_modified FROM files WHERE path = ?`, path).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, storageErr("is stale", err)
	}
	return stored < modified, nil
}

// Get returns the file record stored for path.
func (c *Catalog) Get(ctx context.Context, path string) (FileRecord, bool, error) {
	var r FileRecord
	err := c.db.QueryRowContext(ctx,
		`SELECT id, path, name, extension, last_modified FROM files WHERE path = ?`, path).
		Scan(&r.ID, &r.Path, &r.Name, &r.Extension, &r.LastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return FileRecord{}, false, nil
	}
	if err != nil {
		return FileRecord{}, false, storageErr("get", err)
	}
	return r, true, nil
}

// UpsertFile inserts the file row for info.Path or, when info.LastModified is
// strictly newer than the stored one, replaces its name, extension and
// timestamp. Otherwise it is a no-op. The file id is returned in every case.
func (c *Catalog) UpsertFile(ctx context.Context, info FileInfo) (int64, error) {
	var id int64
	err := c.inTx(ctx, "upsert file", func(tx *sql.Tx) error {
		var err error
		id, _, err = c.upsertTx(ctx, tx, info)
		return err
	})
	return id, err
}

// SetEmbedding inserts or replaces the embedding of file id. The first
// embedding ever written fixes the corpus dimension.
func (c *Catalog) SetEmbedding(ctx context.Context, id int64, vec []float32) error {
	if err := c.checkDimension(len(vec)); err != nil {
		return err
	}
	err := c.inTx(ctx, "set embedding", func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM files WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		if err != nil {
			return storageErr("set embedding", err)
		}
		return c.setEmbeddingTx(ctx, tx, id, vec)
	})
	if err != nil {
		return err
	}
	c.dim.CompareAndSwap(0, int64(len(vec)))
	return nil
}

// Put stores a file and its embedding as one unit. When the stored timestamp
// is not older than info.LastModified nothing is written and the result is
// marked Skipped.
func (c *Catalog) Put(ctx context.Context, info FileInfo, vec []float32) (PutResult, error) {
	if err := c.checkDimension(len(vec)); err != nil {
		return PutResult{}, err
	}
	var res PutResult
	err := c.inTx(ctx, "put", func(tx *sql.Tx) error {
		id, state, err := c.upsertTx(ctx, tx, info)
		if err != nil {
			return err
		}
		res.ID = id
		switch state {
		case upsertNoop:
			res.Skipped = true
			return nil
		case upsertCreated:
			res.Created = true
		case upsertUpdated:
			res.Updated = true
		}
		return c.setEmbeddingTx(ctx, tx, id, vec)
	})
	if err != nil {
		return PutResult{}, err
	}
	if !res.Skipped {
		c.dim.CompareAndSwap(0, int64(len(vec)))
	}
	c.logger.DebugContext(ctx, "catalog put", "path", info.Path, "id", res.ID,
		"created", res.Created, "updated", res.Updated, "skipped", res.Skipped)
	return res, nil
}

// Remove deletes the file row for path; its embedding is removed by the
// ON DELETE CASCADE constraint. It reports whether a row existed.
func (c *Catalog) Remove(ctx context.Context, path string) (bool, error) {
	var removed bool
	err := c.inTx(ctx, "remove", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path)
		if err != nil {
			return storageErr("remove", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storageErr("remove", err)
		}
		removed = n > 0
		return nil
	})
	return removed, err
}

// ListAll returns every file with its embedding, ordered by path. Files
// without an embedding have HasVector == false. A stored BLOB that fails to
// decode is logged and reported as missing.
func (c *Catalog) ListAll(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT f.id, f.path, f.name, f.extension, f.last_modified, e.vector
FROM files f LEFT JOIN embeddings e ON e.file_id = f.id
ORDER BY f.path`)
	if err != nil {
		return nil, storageErr("list all", err)
	}
	defer rows.Close()

	dim := c.Dimension()
	var out []Entry
	for rows.Next() {
		var e Entry
		var blob []byte
		if err := rows.Scan(&e.File.ID, &e.File.Path, &e.File.Name, &e.File.Extension, &e.File.LastModified, &blob); err != nil {
			return nil, storageErr("list all", err)
		}
		if blob != nil {
			vec, err := vector.DecodeEmbeddingDim(blob, dim)
			if err != nil {
				c.logger.WarnContext(ctx, "skipping undecodable embedding", "path", e.File.Path, "error", err)
			} else {
				e.Vector, e.HasVector = vec, true
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list all", err)
	}
	return out, nil
}

// ListMeta returns file metadata ordered by modification time, newest first
// (ties by path). It never reads embeddings. limit <= 0 returns every row.
func (c *Catalog) ListMeta(ctx context.Context, limit int) ([]FileRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := c.db.QueryContext(ctx, `
SELECT id, path, name, extension, last_modified FROM files
ORDER BY last_modified DESC, path ASC LIMIT ?`, limit)
	if err != nil {
		return nil, storageErr("list meta", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var r FileRecord
		if err := rows.Scan(&r.ID, &r.Path, &r.Name, &r.Extension, &r.LastModified); err != nil {
			return nil, storageErr("list meta", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list meta", err)
	}
	return out, nil
}

// Stats counts files and embeddings.
func (c *Catalog) Stats(ctx context.Context) (Stats, error) {
	s := Stats{Dimension: c.Dimension()}
	err := c.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM files), (SELECT COUNT(*) FROM embeddings)`).
		Scan(&s.Files, &s.Embedded)
	if err != nil {
		return Stats{}, storageErr("stats", err)
	}
	return s, nil
}

type upsertState int

const (
	upsertNoop upsertState = iota
	upsertCreated
	upsertUpdated
)

func (c *Catalog) upsertTx(ctx context.Context, tx *sql.Tx, info FileInfo) (int64, upsertState, error) {
	var id, stored int64
	err := tx.QueryRowContext(ctx, `SELECT id, last_modified FROM files WHERE path = ?`, info.Path).Scan(&id, &stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO files(path, name, extension, last_modified) VALUES(?, ?, ?, ?)`,
			info.Path, info.Name, info.Extension, info.LastModified)
		if err != nil {
			return 0, upsertNoop, storageErr("insert file", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, upsertNoop, storageErr("insert file", err)
		}
		return id, upsertCreated, nil
	case err != nil:
		return 0, upsertNoop, storageErr("lookup file", err)
	}
	if info.LastModified <= stored {
		return id, upsertNoop, nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE files SET name = ?, extension = ?, last_modified = ? WHERE id = ?`,
		info.Name, info.Extension, info.LastModified, id); err != nil {
		return 0, upsertNoop, storageErr("update file", err)
	}
	return id, upsertUpdated, nil
}

func (c *Catalog) setEmbeddingTx(ctx context.Context, tx *sql.Tx, id int64, vec []float32) error {
	dim, err := c.txDimension(ctx, tx)
	if err != nil {
		return err
	}
	if dim > 0 && len(vec) != dim {
		return &DimensionMismatchError{Expected: dim, Actual: len(vec)}
	}
	if dim == 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO catalog_meta(key, value) VALUES(?, ?)`,
			metaDimension, strconv.Itoa(len(vec))); err != nil {
			return storageErr("store dimension", err)
		}
	}
	blob, err := vector.EncodeEmbedding(vec)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO embeddings(file_id, vector) VALUES(?, ?)
ON CONFLICT(file_id) DO UPDATE SET vector = excluded.vector`, id, blob); err != nil {
		return storageErr("set embedding", err)
	}
	return nil
}

// txDimension returns the corpus dimension as seen by tx, which may have been
// fixed by a transaction committed after this catalog last cached it.
func (c *Catalog) txDimension(ctx context.Context, tx *sql.Tx) (int, error) {
	if d := c.Dimension(); d > 0 {
		return d, nil
	}
	var value string
	err := tx.QueryRowContext(ctx, `SELECT value FROM catalog_meta WHERE key = ?`, metaDimension).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storageErr("load dimension", err)
	}
	d, err := strconv.Atoi(value)
	if err != nil {
		return 0, storageErr("load dimension", err)
	}
	c.dim.CompareAndSwap(0, int64(d))
	return d, nil
}

// checkDimension validates a vector length against the corpus dimension.
// Empty vectors are always rejected.
func (c *Catalog) checkDimension(n int) error {
	d := c.Dimension()
	if n == 0 || (d > 0 && n != d) {
		return &DimensionMismatchError{Expected: d, Actual: n}
	}
	return nil
}

// inTx runs fn in a write transaction under the catalog write lock.
func (c *Catalog) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return storageErr(op, tx.Commit())
}
