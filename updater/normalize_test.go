package updater

import (
	"testing"
	"time"

	"crime-data-sync/catalog"
)

func rawRecord(id, occurred string) catalog.RawRecord {
	return catalog.RawRecord{
		"INC NUMBER":  id,
		"OCCURRED ON": occurred,
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	out, stats := Normalize(nil)
	if len(out) != 0 {
		t.Fatalf("out = %d, want 0", len(out))
	}
	if stats.Input != 0 || stats.Kept != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestNormalizeFieldMapping(t *testing.T) {
	raw := catalog.RawRecord{
		"INC NUMBER":         "  INC-100  ",
		"UCR CRIME CATEGORY": " THEFT ",
		"OCCURRED ON":        "2024-03-10T14:30:00",
		"OCCURRED TO":        "2024-03-10T15:00:00",
		"100 BLOCK ADDR":     "100 BLOCK N CENTRAL AVE",
		"ZIP":                "85001",
		"PREMISE TYPE":       "PARKING LOT",
		"GRID":               "C7",
		"_id":                float64(991), // unrecognized upstream field, dropped
	}
	out, stats := Normalize([]catalog.RawRecord{raw})
	if len(out) != 1 {
		t.Fatalf("out = %d, want 1 (stats %+v)", len(out), stats)
	}
	r := out[0]
	if r.IncidentID != "INC-100" {
		t.Errorf("IncidentID = %q", r.IncidentID)
	}
	if r.CrimeType != "THEFT" {
		t.Errorf("CrimeType = %q", r.CrimeType)
	}
	want := time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)
	if !r.OccurredDate.Equal(want) {
		t.Errorf("OccurredDate = %v", r.OccurredDate)
	}
	if r.OccurredTo == nil || !r.OccurredTo.Equal(want.Add(30*time.Minute)) {
		t.Errorf("OccurredTo = %v", r.OccurredTo)
	}
	if r.ZipCode != "85001" || r.GridID != "C7" || r.PremiseType != "PARKING LOT" {
		t.Errorf("record = %+v", r)
	}
}

func TestNormalizeDropsMissingIDs(t *testing.T) {
	raws := []catalog.RawRecord{
		rawRecord("", "2024-01-01"),
		rawRecord("   ", "2024-01-01"),
		rawRecord("nan", "2024-01-01"),
		rawRecord("None", "2024-01-01"),
		rawRecord("INC-1", "2024-01-01"),
	}
	out, stats := Normalize(raws)
	if len(out) != 1 || out[0].IncidentID != "INC-1" {
		t.Fatalf("out = %+v", out)
	}
	if stats.MissingID != 4 {
		t.Errorf("MissingID = %d, want 4", stats.MissingID)
	}
}

func TestNormalizeDropsUnparsableTimestamps(t *testing.T) {
	raws := []catalog.RawRecord{
		rawRecord("INC-1", "not a date"),
		rawRecord("INC-2", ""),
		rawRecord("INC-3", "2024-13-45"),
		rawRecord("INC-4", "2024-03-10"),
	}
	out, stats := Normalize(raws)
	if len(out) != 1 || out[0].IncidentID != "INC-4" {
		t.Fatalf("out = %+v", out)
	}
	if stats.BadTimestamp != 3 {
		t.Errorf("BadTimestamp = %d, want 3", stats.BadTimestamp)
	}
}

func TestNormalizeTimestampLayouts(t *testing.T) {
	cases := []string{
		"2024-03-10T14:30:00",
		"2024-03-10T14:30:00.123456",
		"2024-03-10T14:30:00Z",
		"2024-03-10 14:30:00",
		"2024-03-10",
		"03/10/2024 14:30",
		"03/10/2024",
	}
	for _, ts := range cases {
		if _, ok := parseTimestamp(ts); !ok {
			t.Errorf("parseTimestamp(%q) rejected", ts)
		}
	}
}

func TestNormalizeIntraBatchDedupKeepsFirst(t *testing.T) {
	raws := []catalog.RawRecord{
		{
			"INC NUMBER":         "INC-100",
			"UCR CRIME CATEGORY": "THEFT",
			"OCCURRED ON":        "2024-03-10",
		},
		{
			"INC NUMBER":         "INC-100",
			"UCR CRIME CATEGORY": "BURGLARY",
			"OCCURRED ON":        "2024-03-11",
		},
	}
	out, stats := Normalize(raws)
	if len(out) != 1 {
		t.Fatalf("out = %d, want 1", len(out))
	}
	if out[0].CrimeType != "THEFT" {
		t.Errorf("kept %q, want first occurrence", out[0].CrimeType)
	}
	if stats.DuplicateID != 1 {
		t.Errorf("DuplicateID = %d", stats.DuplicateID)
	}

	// No two output records ever share an identifier.
	seen := map[string]bool{}
	for _, r := range out {
		if seen[r.IncidentID] {
			t.Fatalf("duplicate id %q in output", r.IncidentID)
		}
		seen[r.IncidentID] = true
	}
}

func TestNormalizePreservesInputOrder(t *testing.T) {
	raws := []catalog.RawRecord{
		rawRecord("INC-3", "2024-01-03"),
		rawRecord("bad", "nope"),
		rawRecord("INC-1", "2024-01-01"),
		rawRecord("INC-2", "2024-01-02"),
	}
	out, _ := Normalize(raws)
	want := []string{"INC-3", "INC-1", "INC-2"}
	if len(out) != len(want) {
		t.Fatalf("out = %d", len(out))
	}
	for i, id := range want {
		if out[i].IncidentID != id {
			t.Errorf("out[%d] = %q, want %q", i, out[i].IncidentID, id)
		}
	}
}

func TestNormalizeSentinelTextBecomesAbsent(t *testing.T) {
	raw := rawRecord("INC-1", "2024-01-01")
	raw["UCR CRIME CATEGORY"] = "nan"
	raw["100 BLOCK ADDR"] = "None"
	raw["PREMISE TYPE"] = "  "
	raw["GRID"] = "N/A"
	out, _ := Normalize([]catalog.RawRecord{raw})
	if len(out) != 1 {
		t.Fatal("record dropped unexpectedly")
	}
	r := out[0]
	if r.CrimeType != "" || r.Address != "" || r.PremiseType != "" || r.GridID != "" {
		t.Errorf("sentinels not cleared: %+v", r)
	}
}

func TestExtractZip(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"85001-1234 (approx)", "85001"},
		{"N/A", ""},
		{"85016", "85016"},
		{"zip 85040 area", "85040"},
		{"1234", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := extractZip(c.in); got != c.want {
			t.Errorf("extractZip(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeNumericZip(t *testing.T) {
	raw := rawRecord("INC-1", "2024-01-01")
	raw["ZIP"] = float64(85001)
	out, _ := Normalize([]catalog.RawRecord{raw})
	if len(out) != 1 || out[0].ZipCode != "85001" {
		t.Fatalf("numeric zip not handled: %+v", out)
	}
}
