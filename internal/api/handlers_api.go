package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/lox/reservoirviz/internal/store"
)

const (
	defaultImportLimit = 20
	timeFormat         = "2006-01-02T15:04:05Z"
)

var errLimit = errors.New("limit must be a positive integer")

func (s *Server) handleAPIImports(w http.ResponseWriter, r *http.Request) {
	limit := defaultImportLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, invalid(errLimit))
			return
		}
		limit = n
	}

	runs, err := s.store.RecentImportRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]ImportRunView, 0, len(runs))
	for _, run := range runs {
		out = append(out, importRunView(run))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIWells(w http.ResponseWriter, r *http.Request) {
	wells, err := s.store.Wells(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if wells == nil {
		wells = []string{}
	}
	writeJSON(w, http.StatusOK, wells)
}

func (s *Server) handleAPIEnsembles(w http.ResponseWriter, r *http.Request) {
	ensembles, err := s.store.Ensembles(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ensembles == nil {
		ensembles = []string{}
	}
	writeJSON(w, http.StatusOK, ensembles)
}

// ImportRunView is the JSON form of a store.ImportRun.
type ImportRunView struct {
	ID            int64   `json:"id"`
	Kind          string  `json:"kind"`
	Location      string  `json:"location"`
	StartedAt     string  `json:"started_at"`
	FinishedAt    *string `json:"finished_at,omitempty"`
	SizeBytes     *int64  `json:"size_bytes,omitempty"`
	RecordsParsed *int64  `json:"records_parsed,omitempty"`
	RecordsStored *int64  `json:"records_stored,omitempty"`
	Skipped       bool    `json:"skipped"`
	Success       bool    `json:"success"`
	Error         string  `json:"error,omitempty"`
}

func importRunView(run store.ImportRun) ImportRunView {
	v := ImportRunView{
		ID:        run.ID,
		Kind:      run.Kind,
		Location:  run.Location,
		StartedAt: run.StartedAt.UTC().Format(timeFormat),
		Skipped:   run.Skipped,
		Success:   run.Success,
		Error:     run.ErrorMessage.String,
	}
	if run.FinishedAt.Valid {
		f := run.FinishedAt.Time.UTC().Format(timeFormat)
		v.FinishedAt = &f
	}
	if run.SizeBytes.Valid {
		v.SizeBytes = &run.SizeBytes.Int64
	}
	if run.RecordsParsed.Valid {
		v.RecordsParsed = &run.RecordsParsed.Int64
	}
	if run.RecordsStored.Valid {
		v.RecordsStored = &run.RecordsStored.Int64
	}
	return v
}
