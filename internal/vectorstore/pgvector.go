package vectorstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"net"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"cvmatcher/internal/config"
	"cvmatcher/internal/errors"
	"cvmatcher/internal/types"
)

// PGVectorStore keeps candidates in a Postgres table with a vector column.
// Similarity is 1 minus the cosine distance.
type PGVectorStore struct {
	db     *sql.DB
	table  string
	dims   int
	logger *errors.Logger
}

var _ Store = (*PGVectorStore)(nil)

// NewPGVectorStore opens a connection pool to cfg.PGVector.DSN.
func NewPGVectorStore(cfg config.VectorStoreConfig, logger *errors.Logger) (*PGVectorStore, error) {
	db, err := sql.Open("postgres", cfg.PGVector.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)

	return &PGVectorStore{
		db:     db,
		table:  pq.QuoteIdentifier(cfg.Collection),
		dims:   cfg.Dimensions,
		logger: logger,
	}, nil
}

const candidateColumns = "id, full_name, job_title, full_text, filename, lines_count, words_count, timestamp"

func (p *PGVectorStore) EnsureCollection(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return p.wrap(err)
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id UUID PRIMARY KEY,
		embedding vector(%d) NOT NULL,
		full_name TEXT NOT NULL,
		job_title TEXT NOT NULL,
		full_text TEXT NOT NULL,
		filename TEXT NOT NULL,
		lines_count INTEGER NOT NULL,
		words_count INTEGER NOT NULL,
		timestamp DOUBLE PRECISION NOT NULL
	)`, p.table, p.dims)
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return p.wrap(err)
	}
	return nil
}

func (p *PGVectorStore) Upsert(ctx context.Context, record types.CandidateRecord, vector []float32) error {
	if err := checkDimensions(vector, p.dims); err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			job_title = EXCLUDED.job_title,
			full_text = EXCLUDED.full_text,
			filename = EXCLUDED.filename,
			lines_count = EXCLUDED.lines_count,
			words_count = EXCLUDED.words_count,
			timestamp = EXCLUDED.timestamp,
			embedding = EXCLUDED.embedding`, p.table, candidateColumns)

	_, err := p.db.ExecContext(ctx, query,
		record.ID, record.FullName, record.JobTitle, record.FullText, record.Filename,
		record.LinesCount, record.WordsCount, record.Timestamp, pgvector.NewVector(vector))
	return p.wrap(err)
}

func (p *PGVectorStore) Search(ctx context.Context, vector []float32, limit int) ([]Hit, error) {
	if err := checkDimensions(vector, p.dims); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s, 1 - (embedding <=> $1) AS score
		FROM %s ORDER BY embedding <=> $1 LIMIT $2`, candidateColumns, p.table)

	rows, err := p.db.QueryContext(ctx, query, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, p.wrap(err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			record types.CandidateRecord
			score  float64
		)
		if err := rows.Scan(&record.ID, &record.FullName, &record.JobTitle, &record.FullText,
			&record.Filename, &record.LinesCount, &record.WordsCount, &record.Timestamp, &score); err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Record: record, Score: float32(score)})
	}
	return hits, p.wrap(rows.Err())
}

func (p *PGVectorStore) List(ctx context.Context, limit int) ([]types.CandidateRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s LIMIT $1", candidateColumns, p.table)
	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, p.wrap(err)
	}
	defer rows.Close()

	var records []types.CandidateRecord
	for rows.Next() {
		var record types.CandidateRecord
		if err := rows.Scan(&record.ID, &record.FullName, &record.JobTitle, &record.FullText,
			&record.Filename, &record.LinesCount, &record.WordsCount, &record.Timestamp); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, p.wrap(rows.Err())
}

func (p *PGVectorStore) Delete(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", p.table), id)
	var pqErr *pq.Error
	// Malformed ids cannot exist in a UUID column.
	if stderrors.As(err, &pqErr) && pqErr.Code.Name() == "invalid_text_representation" {
		return nil
	}
	return p.wrap(err)
}

func (p *PGVectorStore) DeleteAll(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+p.table); err != nil {
		return p.wrap(err)
	}
	return p.EnsureCollection(ctx)
}

func (p *PGVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+p.table).Scan(&n)
	return n, p.wrap(err)
}

func (p *PGVectorStore) Health(ctx context.Context) error {
	return p.wrap(p.db.PingContext(ctx))
}

func (p *PGVectorStore) Close() error {
	return p.db.Close()
}

// wrap marks connection failures as ErrUnavailable.
func (p *PGVectorStore) wrap(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	var pqErr *pq.Error
	switch {
	case stderrors.As(err, &netErr),
		stderrors.Is(err, sql.ErrConnDone),
		stderrors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case stderrors.As(err, &pqErr) && pqErr.Code.Class() == "08":
		// Class 08 is connection exceptions.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
