package ingest

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lox/reservoirviz/internal/metrics"
	"github.com/lox/reservoirviz/internal/models"
	"github.com/lox/reservoirviz/internal/store"
)

// Import kinds, recorded on import runs and raw payloads.
const (
	KindRFT               = "rft"
	KindFaults            = "faults"
	KindFormations        = "formations"
	KindObservedPressure  = "pressure_observed"
	KindSimulatedPressure = "pressure_simulated"
)

type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Result summarizes one import.
type Result struct {
	Kind     string
	Location string
	Parsed   int
	Stored   int
	Rejected int
	Flagged  map[string]int
	Skipped  bool
}

type Importer struct {
	fetch Fetcher
	store *store.Store
	log   *zap.Logger
}

func NewImporter(fetch Fetcher, st *store.Store, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{fetch: fetch, store: st, log: log}
}

// ImportRFT replaces the stored observation frame with the CSV at
// location. Content identical to the last successful import is skipped
// unless force is set.
func (im *Importer) ImportRFT(ctx context.Context, location string, force bool) (Result, error) {
	return im.run(ctx, KindRFT, location, force, func(data []byte, res *Result) error {
		rows, err := ReadRFT(bytes.NewReader(data))
		if err != nil {
			return err
		}
		res.Parsed = len(rows)
		res.Flagged = make(map[string]int)

		kept := rows[:0]
		for i := range rows {
			flags := ValidateObservation(&rows[i])
			for _, f := range flags {
				res.Flagged[f]++
			}
			if rejects(flags) {
				res.Rejected++
				continue
			}
			kept = append(kept, rows[i])
		}

		n, err := im.store.ReplaceObservations(ctx, kept)
		if err != nil {
			return fmt.Errorf("store observations: %w", err)
		}
		res.Stored = n
		metrics.RowsIngested.WithLabelValues("rft_observations").Add(float64(n))
		return nil
	})
}

// ImportFaults replaces the stored fault polylines with the CSV at
// location.
func (im *Importer) ImportFaults(ctx context.Context, location string, force bool) (Result, error) {
	return im.run(ctx, KindFaults, location, force, func(data []byte, res *Result) error {
		points, err := ReadFaultLines(bytes.NewReader(data))
		if err != nil {
			return err
		}
		res.Parsed = len(points)
		n, err := im.store.ReplaceFaultLines(ctx, points)
		if err != nil {
			return fmt.Errorf("store fault lines: %w", err)
		}
		res.Stored = n
		metrics.RowsIngested.WithLabelValues("fault_lines").Add(float64(n))
		return nil
	})
}

// ImportFormations replaces the stored well zonation with the CSV at
// location.
func (im *Importer) ImportFormations(ctx context.Context, location string, force bool) (Result, error) {
	return im.run(ctx, KindFormations, location, force, func(data []byte, res *Result) error {
		rows, err := ReadFormations(bytes.NewReader(data))
		if err != nil {
			return err
		}
		res.Parsed = len(rows)
		n, err := im.store.ReplaceFormations(ctx, rows)
		if err != nil {
			return fmt.Errorf("store formations: %w", err)
		}
		res.Stored = n
		metrics.RowsIngested.WithLabelValues("formations").Add(float64(n))
		return nil
	})
}

// ImportPressures replaces the stored observed or simulated pressure
// points with the CSV at location.
func (im *Importer) ImportPressures(ctx context.Context, location string, simulated, force bool) (Result, error) {
	kind, table, replace := KindObservedPressure, "observed_pressures", im.store.ReplaceObservedPressures
	if simulated {
		kind, table, replace = KindSimulatedPressure, "simulated_pressures", im.store.ReplaceSimulatedPressures
	}
	return im.run(ctx, kind, location, force, func(data []byte, res *Result) error {
		points, err := ReadPressures(bytes.NewReader(data), simulated)
		if err != nil {
			return err
		}
		res.Parsed = len(points)
		n, err := replace(ctx, points)
		if err != nil {
			return fmt.Errorf("store %s: %w", table, err)
		}
		res.Stored = n
		metrics.RowsIngested.WithLabelValues(table).Add(float64(n))
		return nil
	})
}

// RegisterSurface adds or updates a surface catalog entry.
func (im *Importer) RegisterSurface(ctx context.Context, e models.SurfaceEntry) error {
	if e.Name == "" || e.Location == "" {
		return fmt.Errorf("surface needs a name and a location")
	}
	if err := im.store.UpsertSurface(ctx, e); err != nil {
		return fmt.Errorf("register surface %s: %w", e.Name, err)
	}
	im.log.Info("registered surface", zap.String("name", e.Name), zap.String("location", e.Location))
	return nil
}

func (im *Importer) run(ctx context.Context, kind, location string, force bool, load func([]byte, *Result) error) (Result, error) {
	start := time.Now()
	res := Result{Kind: kind, Location: location}

	run, err := im.store.StartImportRun(ctx, kind, location)
	if err != nil {
		return res, fmt.Errorf("start import run: %w", err)
	}

	err = im.load(ctx, run, force, load, &res)

	run.RecordsParsed = sql.NullInt64{Int64: int64(res.Parsed), Valid: true}
	run.RecordsStored = sql.NullInt64{Int64: int64(res.Stored), Valid: true}
	run.Skipped = res.Skipped
	run.Success = err == nil
	if err != nil {
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	}
	if cerr := im.store.CompleteImportRun(ctx, run); cerr != nil {
		im.log.Warn("failed to complete import run", zap.Int64("run_id", run.ID), zap.Error(cerr))
	}

	if err != nil {
		im.log.Error("import failed", zap.String("kind", kind), zap.String("location", location), zap.Error(err))
		return res, err
	}
	im.log.Info("import complete",
		zap.String("kind", kind),
		zap.String("location", location),
		zap.Int("parsed", res.Parsed),
		zap.Int("stored", res.Stored),
		zap.Int("rejected", res.Rejected),
		zap.Any("flags", res.Flagged),
		zap.Bool("skipped", res.Skipped),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (im *Importer) load(ctx context.Context, run *store.ImportRun, force bool, load func([]byte, *Result) error, res *Result) error {
	data, err := im.fetch.Fetch(ctx, res.Location)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", res.Location, err)
	}
	run.SizeBytes = sql.NullInt64{Int64: int64(len(data)), Valid: true}

	if !force {
		last, err := im.store.LatestRawPayload(ctx, res.Kind)
		if err != nil {
			return fmt.Errorf("latest payload: %w", err)
		}
		if last != nil && last.PayloadHash == store.PayloadHash(data) {
			res.Skipped = true
			return nil
		}
	}

	if err := load(data, res); err != nil {
		return err
	}
	if _, err := im.store.StoreRawPayload(ctx, &run.ID, res.Kind, res.Location, data); err != nil {
		return fmt.Errorf("store payload: %w", err)
	}
	return nil
}
