package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// CrimeStore is the durable home of normalized incidents. Writes are
// append-only; nothing in the pipeline ever updates or deletes a stored row.
type CrimeStore interface {
	// MaxOccurred returns the latest occurred_date in the store, or nil when
	// the store is empty.
	MaxOccurred(ctx context.Context) (*time.Time, error)

	// FilterNew returns the candidates whose incident id is not yet stored,
	// preserving input order. It issues at most one bulk existence lookup.
	FilterNew(ctx context.Context, candidates []Record) ([]Record, error)

	// InsertNew appends records, reporting rows actually committed and rows
	// skipped (per-record failures, including uniqueness races).
	InsertNew(ctx context.Context, records []Record) (inserted, skipped int, err error)

	// Count returns the total number of stored incidents.
	Count(ctx context.Context) (int64, error)
}

// PGStore persists incidents in a Postgres crimes table. The incident_id
// column carries a uniqueness constraint; conflicting inserts are no-ops.
type PGStore struct {
	pool   *pgxpool.Pool
	db     dbExecutor
	table  string
	schema string
	batch  int
	log    zerolog.Logger
}

// dbExecutor is the slice of pgxpool.Pool the insert path uses, split out so
// the chunk/fallback counting can be tested without a live server.
type dbExecutor interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PGStoreOptions struct {
	DSN        string
	Schema     string // default "public"
	BatchSize  int    // rows per insert batch; default 200
	MaxConns   int    // default 2
	ViaBouncer bool   // use simple protocol for PgBouncer txn pooling
	Logger     zerolog.Logger
}

func NewPGStore(ctx context.Context, opts PGStoreOptions) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)
	if opts.ViaBouncer {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	schema := opts.Schema
	if schema == "" {
		schema = "public"
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 200
	}
	return &PGStore{
		pool:   pool,
		db:     pool,
		schema: schema,
		table:  fmt.Sprintf(`"%s".crimes`, schema),
		batch:  batch,
		log:    opts.Logger,
	}, nil
}

// EnsureSchema creates the crimes table and its indexes if they do not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			incident_id      TEXT PRIMARY KEY,
			crime_type       TEXT,
			occurred_date    TIMESTAMP NOT NULL,
			occurred_to_date TIMESTAMP,
			address          TEXT,
			zip_code         TEXT,
			premise_type     TEXT,
			grid_id          TEXT
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS crimes_occurred_date_idx ON %s (occurred_date)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS crimes_crime_type_idx ON %s (crime_type)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS crimes_zip_code_idx ON %s (zip_code)`, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PGStore) Close() { s.pool.Close() }

func (s *PGStore) MaxOccurred(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT MAX(occurred_date) FROM %s`, s.table)).Scan(&t)
	if err != nil {
		return nil, fmt.Errorf("max occurred_date: %w", err)
	}
	return t, nil
}

func (s *PGStore) FilterNew(ctx context.Context, candidates []Record) ([]Record, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(candidates))
	for _, r := range candidates {
		ids = append(ids, r.IncidentID)
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT incident_id FROM %s WHERE incident_id = ANY($1)`, s.table,
	), ids)
	if err != nil {
		return nil, fmt.Errorf("existence lookup: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan existing id: %w", err)
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing ids: %w", err)
	}

	fresh := make([]Record, 0, len(candidates))
	for _, r := range candidates {
		if _, ok := existing[r.IncidentID]; ok {
			continue
		}
		fresh = append(fresh, r)
	}
	return fresh, nil
}

const insertColumns = `(incident_id, crime_type, occurred_date, occurred_to_date, address, zip_code, premise_type, grid_id)`

func (s *PGStore) insertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s %s
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (incident_id) DO NOTHING`, s.table, insertColumns)
}

func insertArgs(r Record) []any {
	return []any{
		r.IncidentID,
		nullIfEmpty(r.CrimeType),
		r.OccurredDate,
		r.OccurredTo,
		nullIfEmpty(r.Address),
		nullIfEmpty(r.ZipCode),
		nullIfEmpty(r.PremiseType),
		nullIfEmpty(r.GridID),
	}
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *PGStore) InsertNew(ctx context.Context, records []Record) (int, int, error) {
	if len(records) == 0 {
		return 0, 0, nil
	}
	sql := s.insertSQL()
	inserted := 0
	skipped := 0

	for _, chunk := range chunkRecords(records, s.batch) {
		b := &pgx.Batch{}
		for _, r := range chunk {
			b.Queue(sql, insertArgs(r)...)
		}
		br := s.db.SendBatch(ctx, b)
		chunkInserted := 0
		batchErr := error(nil)
		for range chunk {
			tag, err := br.Exec()
			if err != nil {
				batchErr = err
				break
			}
			chunkInserted += int(tag.RowsAffected())
		}
		closeErr := br.Close()
		if batchErr == nil && closeErr != nil {
			batchErr = closeErr
		}
		if batchErr == nil {
			inserted += chunkInserted
			continue
		}

		// The batch ran in an implicit transaction, so statements that
		// succeeded before the error are rolled back with it. Discard the
		// batch-phase count and retry the whole chunk row by row; the
		// fallback is this chunk's only contribution. Per-row failures
		// become skips so one bad record cannot discard the rest.
		s.log.Warn().Err(batchErr).Int("chunk", len(chunk)).
			Msg("batch insert failed; falling back to per-record writes")
		ins, skip := s.insertOneByOne(ctx, sql, chunk)
		inserted += ins
		skipped += skip
	}
	return inserted, skipped, nil
}

// insertOneByOne is the per-record fallback path. A uniqueness violation here
// means another writer won the race; it is a benign skip, not a failure.
func (s *PGStore) insertOneByOne(ctx context.Context, sql string, records []Record) (inserted, skipped int) {
	for _, r := range records {
		tag, err := s.db.Exec(ctx, sql, insertArgs(r)...)
		if err != nil {
			if isUniqueViolation(err) {
				s.log.Debug().Str("incident_id", r.IncidentID).Msg("duplicate insert skipped")
			} else {
				s.log.Warn().Err(err).Str("incident_id", r.IncidentID).Msg("record insert skipped")
			}
			skipped++
			continue
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, skipped
}

func (s *PGStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count crimes: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func chunkRecords(records []Record, size int) [][]Record {
	if size <= 0 {
		size = 200
	}
	var chunks [][]Record
	for i := 0; i < len(records); i += size {
		j := i + size
		if j > len(records) {
			j = len(records)
		}
		chunks = append(chunks, records[i:j])
	}
	return chunks
}
