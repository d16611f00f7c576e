// Package catalog contains pluggable connectors for the upstream open-data
// catalog (CKAN-style API).
//
// The default implementation talks to a live catalog over HTTP. A mock
// implementation is provided for offline demos and unit tests; it synthesizes
// deterministic records and makes no network calls.
package catalog

import (
	"context"
	"fmt"
	"time"
)

// RawRecord is one untyped row as returned by datastore_search. Field names
// are whatever the upstream dataset uses; normalization happens downstream.
type RawRecord map[string]any

// DatasetMetadata describes the upstream resource as reported by resource_show.
type DatasetMetadata struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	LastModified string `json:"last_modified"`
	Created      string `json:"created"`
	Format       string `json:"format"`
	Size         int64  `json:"size"`
}

// CatalogAdapter abstracts all catalog-specific fetching.
type CatalogAdapter interface {
	// Metadata returns dataset-level metadata (name, last modified, ...).
	Metadata(ctx context.Context) (DatasetMetadata, error)

	// FetchPage returns one page of raw records plus the upstream-reported
	// total. since, when non-nil, restricts results to records newer than the
	// given date. On failure it returns an empty page, zero total and a
	// *FetchError; it never retries internally.
	FetchPage(ctx context.Context, since *time.Time, limit, offset int) ([]RawRecord, int, error)

	// FetchAllSince pages through the dataset from offset 0 until a short or
	// empty page. It returns everything collected so far together with the
	// page error, if any; the caller decides whether a partial fetch is usable.
	FetchAllSince(ctx context.Context, since *time.Time) ([]RawRecord, error)

	// TotalRecords probes the upstream record count (limit=1 page).
	TotalRecords(ctx context.Context) (int, error)
}

// FetchError wraps a network, HTTP-status or payload failure from the catalog.
type FetchError struct {
	Op         string // "datastore_search" | "resource_show"
	StatusCode int    // 0 when the request never completed
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("catalog %s: http status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// pageFetcher is the slice of CatalogAdapter needed by the shared pagination
// loop in fetchAll.
type pageFetcher interface {
	FetchPage(ctx context.Context, since *time.Time, limit, offset int) ([]RawRecord, int, error)
}
