package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// Mock synthesizes catalog records for demos and unit tests. It is
// deterministic for a given seed and makes no network calls.
type Mock struct {
	total    int
	pageSize int
	seed     int64
	log      zerolog.Logger
}

type MockOptions struct {
	Total    int   // synthetic dataset size; default 250
	PageSize int   // default 100
	Seed     int64 // 0 uses current time
	Logger   zerolog.Logger
}

var mockCategories = []string{
	"THEFT", "BURGLARY", "MOTOR VEHICLE THEFT", "ASSAULT", "DRUG OFFENSE",
}

var mockPremises = []string{
	"SINGLE FAMILY HOUSE", "APARTMENT", "PARKING LOT", "RETAIL", "STREET",
}

func NewMock(opts MockOptions) *Mock {
	total := opts.Total
	if total <= 0 {
		total = 250
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Mock{total: total, pageSize: pageSize, seed: seed, log: opts.Logger}
}

func (m *Mock) Metadata(ctx context.Context) (DatasetMetadata, error) {
	return DatasetMetadata{
		Name:         "Mock Crime Data",
		Description:  "Synthetic incident records (offline mode)",
		LastModified: time.Now().UTC().Format("2006-01-02T15:04:05"),
		Format:       "CSV",
		Size:         int64(m.total) * 180,
	}, nil
}

func (m *Mock) FetchPage(ctx context.Context, since *time.Time, limit, offset int) ([]RawRecord, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, &FetchError{Op: "datastore_search", Err: err}
	}
	if limit <= 0 {
		limit = m.pageSize
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	// Like the live catalog, the since filter narrows the dataset before
	// pagination: offset and total apply to the filtered sequence.
	var out []RawRecord
	matched := 0
	for i := 0; i < m.total; i++ {
		rec, occurred := m.synthesize(i)
		if since != nil && !occurred.After(*since) {
			continue
		}
		if matched >= offset && len(out) < limit {
			out = append(out, rec)
		}
		matched++
	}
	return out, matched, nil
}

func (m *Mock) FetchAllSince(ctx context.Context, since *time.Time) ([]RawRecord, error) {
	return fetchAll(ctx, m, since, m.pageSize, m.log)
}

func (m *Mock) TotalRecords(ctx context.Context) (int, error) {
	return m.total, nil
}

// synthesize builds record i using a rand stream derived from the seed and the
// index, so the same (seed, i) always yields the same record.
func (m *Mock) synthesize(i int) (RawRecord, time.Time) {
	rng := rand.New(rand.NewSource(m.seed + int64(i)))
	occurred := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).
		Add(time.Duration(i) * time.Hour).
		Add(time.Duration(rng.Intn(60)) * time.Minute)
	return RawRecord{
		"INC NUMBER":         fmt.Sprintf("MOCK-%06d", i+1),
		"UCR CRIME CATEGORY": mockCategories[rng.Intn(len(mockCategories))],
		"OCCURRED ON":        occurred.Format("2006-01-02T15:04:05"),
		"100 BLOCK ADDR":     fmt.Sprintf("%d00 BLOCK N EXAMPLE AVE", rng.Intn(99)+1),
		"ZIP":                fmt.Sprintf("850%02d", rng.Intn(90)),
		"PREMISE TYPE":       mockPremises[rng.Intn(len(mockPremises))],
		"GRID":               fmt.Sprintf("%c%d", 'A'+rune(rng.Intn(12)), rng.Intn(40)+1),
	}, occurred
}
