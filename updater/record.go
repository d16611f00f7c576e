// Package updater implements the incremental sync pipeline: it pulls new
// records from the upstream catalog, normalizes them into the crimes schema,
// filters out incidents already stored, appends the survivors and records the
// outcome of every run.
package updater

import "time"

// Record is a normalized incident row matching the crimes table schema.
// IncidentID is unique within any normalized batch and across the store.
type Record struct {
	IncidentID   string     `json:"incident_id"`
	CrimeType    string     `json:"crime_type,omitempty"`
	OccurredDate time.Time  `json:"occurred_date"`
	OccurredTo   *time.Time `json:"occurred_to_date,omitempty"`
	Address      string     `json:"address,omitempty"`
	ZipCode      string     `json:"zip_code,omitempty"`
	PremiseType  string     `json:"premise_type,omitempty"`
	GridID       string     `json:"grid_id,omitempty"`
}
