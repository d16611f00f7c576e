package updater

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Report captures the outcome of one sync cycle. It is written at the end of
// every cycle, successful or not, and overwrites the previous run's report.
type Report struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  string    `json:"duration"`
	Method    string    `json:"method"`

	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	RecordsFetched  int `json:"records_fetched"`
	RecordsCleaned  int `json:"records_cleaned"`
	RecordsInserted int `json:"records_inserted"`
	RecordsSkipped  int `json:"records_skipped"`
	RecordsDropped  int `json:"records_dropped"`

	DatasetLastModified string `json:"dataset_last_modified,omitempty"`
	DatasetDescription  string `json:"dataset_description,omitempty"`
}

// ReportStore keeps the most recent run report as a JSON document on disk,
// readable by external status consumers.
type ReportStore struct {
	path string
	log  zerolog.Logger
}

func NewReportStore(path string, log zerolog.Logger) *ReportStore {
	return &ReportStore{path: path, log: log}
}

// Save atomically overwrites the report document (write temp file, rename).
func (s *ReportStore) Save(r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".run_status-*.json")
	if err != nil {
		return fmt.Errorf("report temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace report: %w", err)
	}
	return nil
}

// Load returns the last saved report, or nil when none has been written yet.
func (s *ReportStore) Load() (*Report, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}
