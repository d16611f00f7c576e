package updater

import (
	"context"
	"strings"
	"testing"
	"time"
)

func testRecord(id string, occurred time.Time) Record {
	return Record{IncidentID: id, OccurredDate: occurred, CrimeType: "THEFT"}
}

func TestMemStoreMaxOccurredEmpty(t *testing.T) {
	s := NewMemStore()
	max, err := s.MaxOccurred(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if max != nil {
		t.Fatalf("max = %v, want nil on empty store", max)
	}
}

func TestMemStoreMaxOccurred(t *testing.T) {
	s := NewMemStore()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	recs := []Record{
		testRecord("INC-1", base),
		testRecord("INC-2", base.AddDate(0, 0, 9)),
		testRecord("INC-3", base.AddDate(0, 0, 4)),
	}
	if _, _, err := s.InsertNew(context.Background(), recs); err != nil {
		t.Fatal(err)
	}
	max, err := s.MaxOccurred(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if max == nil || !max.Equal(base.AddDate(0, 0, 9)) {
		t.Fatalf("max = %v, want 2024-03-10", max)
	}
}

func TestMemStoreFilterNewDisjointAfterInsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	first := []Record{testRecord("INC-1", base), testRecord("INC-2", base)}
	if _, _, err := s.InsertNew(ctx, first); err != nil {
		t.Fatal(err)
	}

	candidates := []Record{
		testRecord("INC-2", base),
		testRecord("INC-3", base),
		testRecord("INC-1", base),
		testRecord("INC-4", base),
	}
	fresh, err := s.FilterNew(ctx, candidates)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 2 || fresh[0].IncidentID != "INC-3" || fresh[1].IncidentID != "INC-4" {
		t.Fatalf("fresh = %+v", fresh)
	}
}

func TestMemStoreFilterNewEmptyCandidates(t *testing.T) {
	s := NewMemStore()
	fresh, err := s.FilterNew(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 0 {
		t.Fatalf("fresh = %+v", fresh)
	}
}

func TestMemStoreInsertNewIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	recs := []Record{testRecord("INC-1", base), testRecord("INC-2", base)}

	ins, skip, err := s.InsertNew(ctx, recs)
	if err != nil || ins != 2 || skip != 0 {
		t.Fatalf("first insert: ins=%d skip=%d err=%v", ins, skip, err)
	}
	// Replaying the same batch must not duplicate rows.
	ins, skip, err = s.InsertNew(ctx, recs)
	if err != nil || ins != 0 || skip != 0 {
		t.Fatalf("replay: ins=%d skip=%d err=%v", ins, skip, err)
	}
	n, err := s.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("count = %d err=%v", n, err)
	}
}

func TestMemStoreRejectFnCountsSkips(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	s.RejectFn = func(r Record) bool { return strings.HasSuffix(r.IncidentID, "-3") }

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	recs := []Record{
		testRecord("INC-1", base),
		testRecord("INC-3", base),
		testRecord("INC-5", base),
	}
	ins, skip, err := s.InsertNew(ctx, recs)
	if err != nil {
		t.Fatal(err)
	}
	if ins != 2 || skip != 1 {
		t.Fatalf("ins=%d skip=%d", ins, skip)
	}
	if s.Has("INC-3") {
		t.Error("rejected record was stored")
	}
}
