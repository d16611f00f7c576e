package updater

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestReportStoreLoadMissing(t *testing.T) {
	s := NewReportStore(filepath.Join(t.TempDir(), "run_status.json"), zerolog.Nop())
	rep, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if rep != nil {
		t.Fatalf("rep = %+v, want nil when never written", rep)
	}
}

func TestReportStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_status.json")
	s := NewReportStore(path, zerolog.Nop())

	start := time.Date(2024, 3, 10, 11, 30, 0, 0, time.UTC)
	in := Report{
		StartTime:           start,
		EndTime:             start.Add(42 * time.Second),
		Duration:            "42s",
		Method:              "ckan-api",
		Success:             true,
		Message:             "processed 120 new records",
		RecordsFetched:      131,
		RecordsCleaned:      125,
		RecordsInserted:     120,
		RecordsSkipped:      5,
		RecordsDropped:      6,
		DatasetLastModified: "2024-03-10T09:00:00",
	}
	if err := s.Save(in); err != nil {
		t.Fatal(err)
	}

	out, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if out == nil {
		t.Fatal("load returned nil after save")
	}
	if *out != in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", *out, in)
	}
}

func TestReportStoreSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_status.json")
	s := NewReportStore(path, zerolog.Nop())

	if err := s.Save(Report{Method: "ckan-api", Success: false, Error: "fetch: boom"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(Report{Method: "ckan-api", Success: true, RecordsInserted: 7}); err != nil {
		t.Fatal(err)
	}

	out, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !out.Success || out.RecordsInserted != 7 {
		t.Fatalf("out = %+v, want the later report", out)
	}
	if out.Error != "" {
		t.Errorf("stale error field survived overwrite: %q", out.Error)
	}

	// Only the report itself remains; temp files are cleaned up by rename.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}
}

func TestReportJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(Report{Success: true, Message: "ok", RecordsInserted: 3})
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"start_time", "end_time", "success", "records_fetched", "records_inserted"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("missing field %q in %s", key, data)
		}
	}
	if _, ok := doc["error"]; ok {
		t.Error("empty error field should be omitted")
	}
}
