package updater

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crime-data-sync/catalog"

	"github.com/rs/zerolog"
)

// DefaultWatermarkBuffer is subtracted from the stored high-water mark before
// fetching, to tolerate late-arriving or corrected upstream records. One day
// is a heuristic carried over from operations, not a hard requirement; tune
// via UpdaterOptions.
const DefaultWatermarkBuffer = 24 * time.Hour

// Updater drives one end-to-end sync cycle: watermark, fetch, normalize,
// dedup, write, report. Cycles never overlap: RunOnce serializes callers and
// TryRunOnce drops a trigger while another cycle is in flight.
type Updater struct {
	catalog catalog.CatalogAdapter
	store   CrimeStore
	reports *ReportStore
	metrics *Metrics
	log     zerolog.Logger
	buffer  time.Duration

	mu sync.Mutex // held for the duration of a cycle
}

type UpdaterOptions struct {
	Catalog         catalog.CatalogAdapter
	Store           CrimeStore
	Reports         *ReportStore
	Metrics         *Metrics // optional
	Logger          zerolog.Logger
	WatermarkBuffer time.Duration // 0 means DefaultWatermarkBuffer
}

func NewUpdater(opts UpdaterOptions) (*Updater, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("catalog adapter is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("crime store is required")
	}
	if opts.Reports == nil {
		return nil, fmt.Errorf("report store is required")
	}
	buffer := opts.WatermarkBuffer
	if buffer <= 0 {
		buffer = DefaultWatermarkBuffer
	}
	return &Updater{
		catalog: opts.Catalog,
		store:   opts.Store,
		reports: opts.Reports,
		metrics: opts.Metrics,
		log:     opts.Logger,
		buffer:  buffer,
	}, nil
}

// RunOnce runs a single synchronous cycle. Concurrent callers queue behind the
// in-flight cycle. The returned report is also persisted to the report store;
// RunOnce never returns an error, failures are recorded in the report.
func (u *Updater) RunOnce(ctx context.Context) Report {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.runCycle(ctx)
}

// TryRunOnce runs a cycle unless one is already in flight, in which case the
// trigger is ignored and ok is false. This is the scheduler entry point.
func (u *Updater) TryRunOnce(ctx context.Context) (rep Report, ok bool) {
	if !u.mu.TryLock() {
		u.log.Warn().Msg("sync cycle already running; trigger ignored")
		return Report{}, false
	}
	defer u.mu.Unlock()
	return u.runCycle(ctx), true
}

func (u *Updater) runCycle(ctx context.Context) (rep Report) {
	start := time.Now().UTC()
	rep = Report{StartTime: start, Method: "ckan-api"}
	u.log.Info().Time("start", start).Msg("sync cycle starting")

	// Finalize always runs: the report is persisted for every outcome,
	// including cancellation mid-cycle.
	defer func() {
		rep.EndTime = time.Now().UTC()
		rep.Duration = rep.EndTime.Sub(rep.StartTime).String()
		u.metrics.Observe(rep)
		if err := u.reports.Save(rep); err != nil {
			// A report that fails to persist never changes the cycle outcome.
			u.log.Error().Err(err).Msg("run report save failed")
		}
		u.log.Info().
			Bool("success", rep.Success).
			Int("fetched", rep.RecordsFetched).
			Int("cleaned", rep.RecordsCleaned).
			Int("inserted", rep.RecordsInserted).
			Int("skipped", rep.RecordsSkipped).
			Str("duration", rep.Duration).
			Msg("sync cycle finished")
	}()

	// Dataset metadata is informational; a failure here never aborts the cycle.
	if md, err := u.catalog.Metadata(ctx); err == nil {
		rep.DatasetLastModified = md.LastModified
		rep.DatasetDescription = md.Description
		u.log.Info().Str("dataset", md.Name).Str("last_modified", md.LastModified).Msg("dataset metadata")
	} else {
		u.log.Warn().Err(err).Msg("dataset metadata unavailable")
	}

	maxOccurred, err := u.store.MaxOccurred(ctx)
	if err != nil {
		rep.Error = fmt.Sprintf("watermark: %v", err)
		return rep
	}
	var since *time.Time
	if maxOccurred != nil {
		s := maxOccurred.Add(-u.buffer)
		since = &s
		u.log.Info().Time("since", s).Msg("incremental update")
	} else {
		u.log.Info().Msg("full initial load (store is empty)")
	}

	raws, fetchErr := u.catalog.FetchAllSince(ctx, since)
	rep.RecordsFetched = len(raws)
	if fetchErr != nil && len(raws) == 0 {
		rep.Error = fmt.Sprintf("fetch: %v", fetchErr)
		return rep
	}
	if len(raws) == 0 {
		rep.Success = true
		rep.Message = "no new records"
		return rep
	}
	if err := ctx.Err(); err != nil {
		rep.Error = fmt.Sprintf("cancelled: %v", err)
		return rep
	}

	records, stats := Normalize(raws)
	rep.RecordsCleaned = len(records)
	rep.RecordsDropped = stats.Input - stats.Kept
	u.log.Info().Str("stats", stats.String()).Msg("normalized batch")

	fresh, err := u.store.FilterNew(ctx, records)
	if err != nil {
		rep.Error = fmt.Sprintf("dedup: %v", err)
		return rep
	}
	if n := len(records) - len(fresh); n > 0 {
		u.log.Info().Int("already_stored", n).Msg("filtered existing records")
	}

	inserted, skipped, err := u.store.InsertNew(ctx, fresh)
	rep.RecordsInserted = inserted
	rep.RecordsSkipped = skipped
	if err != nil {
		rep.Error = fmt.Sprintf("write: %v", err)
		return rep
	}

	if total, err := u.store.Count(ctx); err == nil {
		u.log.Info().Int64("store_total", total).Msg("store size after write")
	}

	if fetchErr != nil {
		// Pagination ended early; what arrived was processed, but the cycle
		// did not see everything, so it is not a success.
		rep.Error = fmt.Sprintf("fetch ended early: %v", fetchErr)
		rep.Message = fmt.Sprintf("partial fetch processed, %d new records", inserted)
		return rep
	}

	rep.Success = true
	rep.Message = fmt.Sprintf("processed %d new records", inserted)
	return rep
}
