// Package knowledge persists the embedded knowledge base as a SQLite file and
// keeps the in-memory retrieval index in sync with it.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
	"github.com/tjfontaine/hmo-assistant/internal/retrieval"
)

const (
	metaDimension      = "dimension"
	metaEmbeddingModel = "embedding_model"
	metaChunkCount     = "chunk_count"
	metaBuiltAt        = "built_at"
	metaBuildID        = "build_id"
)

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	return db, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			position INTEGER PRIMARY KEY,
			text TEXT NOT NULL,
			category TEXT,
			service TEXT,
			provider TEXT,
			tier TEXT,
			section TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS vectors (
			position INTEGER PRIMARY KEY,
			dim INTEGER NOT NULL,
			data BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_identity ON chunks(provider, tier)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Write stores chunks and their vectors at path. The file must not already
// hold a knowledge base.
func Write(ctx context.Context, path string, chunks []domain.KnowledgeChunk, vectors [][]float32, meta retrieval.Meta) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk count %d does not match vector count %d", len(chunks), len(vectors))
	}
	if len(vectors) == 0 {
		return errors.New("no chunks to write")
	}

	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := initSchema(ctx, db); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	metaRows := map[string]string{
		metaDimension:      strconv.Itoa(len(vectors[0])),
		metaEmbeddingModel: meta.EmbeddingModel,
		metaChunkCount:     strconv.Itoa(len(chunks)),
		metaBuiltAt:        meta.BuiltAt.UTC().Format(time.RFC3339Nano),
		metaBuildID:        meta.BuildID,
	}
	for k, v := range metaRows {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (position, text, category, service, provider, tier, section)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer chunkStmt.Close()

	vecStmt, err := tx.PrepareContext(ctx, `INSERT INTO vectors (position, dim, data) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer vecStmt.Close()

	for i, c := range chunks {
		if _, err := chunkStmt.ExecContext(ctx, i, c.Text, c.Category, c.Service,
			string(c.Provider), string(c.Tier), c.Section); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
		if _, err := vecStmt.ExecContext(ctx, i, len(vectors[i]), encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("insert vector %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Load reads the knowledge base at path into an Index. Any missing table,
// count mismatch, gap in positions or dimension mismatch makes the file
// unusable and is reported as RetrievalUnavailable.
func Load(ctx context.Context, path string) (*retrieval.Index, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrRetrievalUnavailable("knowledge base not found at "+path, err)
		}
		return nil, domain.ErrRetrievalUnavailable("knowledge base unreadable", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, domain.ErrRetrievalUnavailable("knowledge base unreadable", err)
	}
	defer db.Close()

	ix, err := load(ctx, db)
	if err != nil {
		if _, ok := domain.AsError(err); ok {
			return nil, err
		}
		return nil, domain.ErrRetrievalUnavailable("knowledge base is corrupt", err)
	}
	return ix, nil
}

func load(ctx context.Context, db *sql.DB) (*retrieval.Index, error) {
	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}

	dim, err := strconv.Atoi(meta[metaDimension])
	if err != nil || dim <= 0 {
		return nil, fmt.Errorf("invalid dimension %q", meta[metaDimension])
	}
	count, err := strconv.Atoi(meta[metaChunkCount])
	if err != nil {
		return nil, fmt.Errorf("invalid chunk count %q", meta[metaChunkCount])
	}

	chunks, err := readChunks(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	vectors, err := readVectors(ctx, db, dim)
	if err != nil {
		return nil, fmt.Errorf("read vectors: %w", err)
	}
	if len(chunks) != count || len(vectors) != count {
		return nil, fmt.Errorf("meta declares %d chunks, found %d chunks and %d vectors", count, len(chunks), len(vectors))
	}

	m := retrieval.Meta{
		BuildID:        meta[metaBuildID],
		EmbeddingModel: meta[metaEmbeddingModel],
	}
	if ts, err := time.Parse(time.RFC3339Nano, meta[metaBuiltAt]); err == nil {
		m.BuiltAt = ts
	}
	return retrieval.NewIndex(chunks, vectors, m)
}

func readMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func readChunks(ctx context.Context, db *sql.DB) ([]domain.KnowledgeChunk, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT position, text, category, service, provider, tier, section
		FROM chunks ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.KnowledgeChunk
	for rows.Next() {
		var (
			pos                                         int
			text                                        string
			category, service, provider, tier, section sql.NullString
		)
		if err := rows.Scan(&pos, &text, &category, &service, &provider, &tier, &section); err != nil {
			return nil, err
		}
		if pos != len(chunks) {
			return nil, fmt.Errorf("chunk positions not contiguous at %d", pos)
		}

		c := domain.KnowledgeChunk{
			Text:     text,
			Category: category.String,
			Service:  service.String,
			Section:  section.String,
			Provider: domain.Provider(provider.String),
			Tier:     domain.Tier(tier.String),
		}
		if c.Provider.IsSet() && !c.Provider.Valid() {
			return nil, fmt.Errorf("chunk %d has unknown provider tag %q", pos, provider.String)
		}
		if c.Tier.IsSet() && !c.Tier.Valid() {
			return nil, fmt.Errorf("chunk %d has unknown tier tag %q", pos, tier.String)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func readVectors(ctx context.Context, db *sql.DB, dim int) ([][]float32, error) {
	rows, err := db.QueryContext(ctx, `SELECT position, dim, data FROM vectors ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vectors [][]float32
	for rows.Next() {
		var (
			pos, d int
			data   []byte
		)
		if err := rows.Scan(&pos, &d, &data); err != nil {
			return nil, err
		}
		if pos != len(vectors) {
			return nil, fmt.Errorf("vector positions not contiguous at %d", pos)
		}
		if d != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", pos, d, dim)
		}
		v, err := decodeVector(data, dim)
		if err != nil {
			return nil, fmt.Errorf("vector %d: %w", pos, err)
		}
		vectors = append(vectors, v)
	}
	return vectors, rows.Err()
}

// Vectors are stored as little-endian float32.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte, dim int) ([]float32, error) {
	if len(data) != 4*dim {
		return nil, fmt.Errorf("blob is %d bytes, want %d", len(data), 4*dim)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}
