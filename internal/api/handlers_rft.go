package api

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/lox/reservoirviz/internal/frame"
	"github.com/lox/reservoirviz/internal/rft"
	"github.com/lox/reservoirviz/internal/store"
)

var errNoData = fmt.Errorf("no RFT observations: %w", store.ErrNotFound)

// loadFrame reads the stored observation frame. An empty store is
// reported as not found.
func (s *Server) loadFrame(r *http.Request) (frame.Frame, error) {
	rows, err := s.store.Observations(r.Context())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errNoData
	}
	return frame.Frame(rows), nil
}

// selectedWells returns the well= query values, or every well in df.
func selectedWells(r *http.Request, df frame.Frame) []string {
	if wells := r.URL.Query()["well"]; len(wells) > 0 {
		return wells
	}
	wells, _ := df.Unique(frame.Well)
	return wells
}

// sizeColor returns the sizeby and colorby columns, defaulting to DIFF and
// STDDEV.
func sizeColor(r *http.Request) (sizeBy, colorBy string) {
	q := r.URL.Query()
	sizeBy, colorBy = q.Get("sizeby"), q.Get("colorby")
	if sizeBy == "" {
		sizeBy = frame.Diff
	}
	if colorBy == "" {
		colorBy = frame.Stddev
	}
	return sizeBy, colorBy
}

func (s *Server) handleAPICrossplot(w http.ResponseWriter, r *http.Request) {
	df, err := s.loadFrame(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sizeBy, colorBy := sizeColor(r)
	fig, err := rft.UpdateCrossplot(df, selectedWells(r, df), sizeBy, colorBy)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fig)
}

func (s *Server) handleAPIMisfit(w http.ResponseWriter, r *http.Request) {
	df, err := s.loadFrame(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fig, err := rft.UpdateMisfitPlot(df, selectedWells(r, df))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fig)
}

// handleAPIMap serves the misfit map for one ensemble between from and to
// (DATE values, inclusive). The first ensemble and the full date range are
// used when not given.
func (s *Server) handleAPIMap(w http.ResponseWriter, r *http.Request) {
	df, err := s.loadFrame(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()

	ensembles, _ := df.Unique(frame.Ensemble)
	ensemble := q.Get("ensemble")
	switch {
	case ensemble == "":
		ensemble = ensembles[0]
	case !slices.Contains(ensembles, ensemble):
		s.writeError(w, r, fmt.Errorf("ensemble %q: %w", ensemble, store.ErrNotFound))
		return
	}

	dates, _ := df.Unique(frame.Date)
	slices.Sort(dates)
	from, to := q.Get("from"), q.Get("to")
	if from == "" {
		from = dates[0]
	}
	if to == "" {
		to = dates[len(dates)-1]
	}
	if from > to {
		s.writeError(w, r, invalid(fmt.Errorf("from %q is after to %q", from, to)))
		return
	}

	m, err := rft.NewMapFigure(df, ensemble)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Fault lines go first so the well markers draw on top of them.
	faults, err := s.store.FaultLines(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m.AddFaultLines(faults)
	sizeBy, colorBy := sizeColor(r)
	if err := m.AddMisfitPlot(sizeBy, colorBy, from, to); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m.Figure())
}

// Formation line types.
const (
	lineRealization = "realization"
	lineFanchart    = "fanchart"
)

// handleAPIFormation serves the pressure-depth figure of one well on one
// observation date. date defaults to the first observation date of the
// well; ensemble (repeatable) defaults to every simulated ensemble; linetype
// is realization or fanchart.
func (s *Server) handleAPIFormation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	well := q.Get("well")
	if well == "" {
		s.writeError(w, r, invalid(errors.New("well is required")))
		return
	}
	linetype := q.Get("linetype")
	switch linetype {
	case "":
		linetype = lineRealization
	case lineRealization, lineFanchart:
	default:
		s.writeError(w, r, invalid(fmt.Errorf("linetype %q: want %s or %s", linetype, lineRealization, lineFanchart)))
		return
	}

	dates, err := s.store.PressureDates(ctx, well)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(dates) == 0 {
		s.writeError(w, r, fmt.Errorf("pressure observations for well %q: %w", well, store.ErrNotFound))
		return
	}
	date := q.Get("date")
	switch {
	case date == "":
		date = dates[0]
	case !slices.Contains(dates, date):
		s.writeError(w, r, fmt.Errorf("well %q has no observations on %s: %w", well, date, store.ErrNotFound))
		return
	}

	formations, err := s.store.Formations(ctx, well)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	obs, err := s.store.ObservedPressures(ctx, well)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sim, err := s.store.SimulatedPressures(ctx, well)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ert, err := s.store.Observations(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ensembles := q["ensemble"]
	if len(ensembles) == 0 {
		for _, p := range sim {
			if !slices.Contains(ensembles, p.Ensemble) {
				ensembles = append(ensembles, p.Ensemble)
			}
		}
	}

	fig := rft.NewFormationFigure(well, formations, sim, obs, frame.Frame(ert))
	fig.AddFormation()
	if linetype == lineFanchart {
		fig.AddFanchart(date, ensembles)
	} else {
		fig.AddSimulatedLines(date, ensembles)
	}
	fig.AddObserved(date)
	fig.AddErtObserved(date)
	writeJSON(w, http.StatusOK, fig.Figure())
}
