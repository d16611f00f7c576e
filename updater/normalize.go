package updater

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"crime-data-sync/catalog"
)

// Upstream column names recognized during projection. Anything else in a raw
// record is discarded.
const (
	colIncident   = "INC NUMBER"
	colCategory   = "UCR CRIME CATEGORY"
	colOccurred   = "OCCURRED ON"
	colOccurredTo = "OCCURRED TO"
	colAddress    = "100 BLOCK ADDR"
	colZip        = "ZIP"
	colPremise    = "PREMISE TYPE"
	colGrid       = "GRID"
)

// missingTokens are sentinel values the upstream uses for "no data".
var missingTokens = map[string]struct{}{
	"":     {},
	"nan":  {},
	"NaN":  {},
	"NAN":  {},
	"None": {},
	"null": {},
	"N/A":  {},
	"NA":   {},
}

// timestampLayouts are tried in order; the upstream is ISO-like but not strict.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
}

var zipPattern = regexp.MustCompile(`\d{5}`)

// NormalizeStats counts what happened to a batch during normalization.
// Dropped records are counted, never surfaced as errors.
type NormalizeStats struct {
	Input        int
	Kept         int
	MissingID    int
	BadTimestamp int
	DuplicateID  int
}

func (s NormalizeStats) String() string {
	return fmt.Sprintf("input=%d kept=%d missing_id=%d bad_timestamp=%d duplicate_id=%d",
		s.Input, s.Kept, s.MissingID, s.BadTimestamp, s.DuplicateID)
}

// Normalize maps raw catalog records into canonical Records. It is a pure
// transformation: input order is preserved except for dropped rows, and when
// an incident id appears twice in one batch only the first occurrence is kept.
func Normalize(raws []catalog.RawRecord) ([]Record, NormalizeStats) {
	stats := NormalizeStats{Input: len(raws)}
	out := make([]Record, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))

	for _, raw := range raws {
		id := strings.TrimSpace(asString(raw[colIncident]))
		if _, missing := missingTokens[id]; missing {
			stats.MissingID++
			continue
		}
		occurred, ok := parseTimestamp(asString(raw[colOccurred]))
		if !ok {
			stats.BadTimestamp++
			continue
		}
		if _, dup := seen[id]; dup {
			stats.DuplicateID++
			continue
		}
		seen[id] = struct{}{}

		rec := Record{
			IncidentID:   id,
			OccurredDate: occurred,
			CrimeType:    cleanText(raw[colCategory]),
			Address:      cleanText(raw[colAddress]),
			ZipCode:      extractZip(asString(raw[colZip])),
			PremiseType:  cleanText(raw[colPremise]),
			GridID:       cleanText(raw[colGrid]),
		}
		if to, ok := parseTimestamp(asString(raw[colOccurredTo])); ok {
			rec.OccurredTo = &to
		}
		out = append(out, rec)
	}
	stats.Kept = len(out)
	return out, stats
}

// asString renders a raw JSON value as a string. Numeric values are common
// for columns like ZIP; floats with no fraction are printed without one.
func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// cleanText trims a raw value and maps sentinel-missing tokens to empty.
func cleanText(v any) string {
	s := strings.TrimSpace(asString(v))
	if _, missing := missingTokens[s]; missing {
		return ""
	}
	return s
}

// parseTimestamp accepts ISO-like and common date-time formats.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if _, missing := missingTokens[s]; missing {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// extractZip returns the first run of 5 consecutive digits, or empty.
func extractZip(s string) string {
	return zipPattern.FindString(s)
}
