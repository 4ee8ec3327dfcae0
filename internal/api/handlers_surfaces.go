package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/lox/reservoirviz/internal/figure"
	"github.com/lox/reservoirviz/internal/maplayer"
	"github.com/lox/reservoirviz/internal/models"
	"github.com/lox/reservoirviz/internal/surface"
	"github.com/lox/reservoirviz/internal/xsection"
)

// optFloat parses an optional float query parameter.
func optFloat(q url.Values, key string) (*float64, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, invalid(fmt.Errorf("%s: %w", key, err))
	}
	return &v, nil
}

func optBool(q url.Values, key string) (bool, error) {
	s := q.Get(key)
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, invalid(fmt.Errorf("%s: %w", key, err))
	}
	return v, nil
}

// resolveSurface looks up a catalog entry by name, or builds an ad-hoc
// entry for a raw location, and loads its surface.
func (s *Server) resolveSurface(ctx context.Context, name, location string) (models.SurfaceEntry, *surface.Surface, error) {
	var entry models.SurfaceEntry
	switch {
	case name != "":
		e, err := s.store.GetSurface(ctx, name)
		if err != nil {
			return entry, nil, err
		}
		entry = e
	case location != "":
		if !s.allowPaths {
			return entry, nil, invalid(errors.New("path lookups are disabled; use a catalog name"))
		}
		entry = models.SurfaceEntry{Name: path.Base(location), Location: location}
	default:
		return entry, nil, invalid(errors.New("name or path is required"))
	}
	surf, err := s.layers.Load(ctx, entry.Location)
	if err != nil {
		return entry, nil, err
	}
	return entry, surf, nil
}

func (s *Server) handleAPISurfaces(w http.ResponseWriter, r *http.Request) {
	surfaces, err := s.store.Surfaces(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if surfaces == nil {
		surfaces = []models.SurfaceEntry{}
	}
	writeJSON(w, http.StatusOK, surfaces)
}

func (s *Server) handleAPILayer(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lo, err := optFloat(q, "min")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	hi, err := optFloat(q, "max")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	hillshading, err := optBool(q, "hillshading")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	entry, surf, err := s.resolveSurface(r.Context(), q.Get("name"), q.Get("path"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	opts := maplayer.LayerOptions{
		Name:        entry.Name,
		Min:         entry.MinValue,
		Max:         entry.MaxValue,
		Color:       entry.Colormap,
		Hillshading: hillshading,
		Unit:        entry.Unit,
	}
	if lo != nil {
		opts.Min = lo
	}
	if hi != nil {
		opts.Max = hi
	}
	if c := q.Get("color"); c != "" {
		opts.Color = c
	}
	if u := q.Get("unit"); u != "" {
		opts.Unit = u
	}

	layer, err := s.layers.MakeLayer(r.Context(), surf, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, layer)
}

// fenceParam parses the fence and optional densification step.
func fenceParam(q url.Values) (surface.Fence, error) {
	raw := q.Get("fence")
	if raw == "" {
		return nil, invalid(errors.New("fence is required"))
	}
	fence, err := surface.ParseFence(raw)
	if err != nil {
		return nil, invalid(err)
	}
	step, err := optFloat(q, "step")
	if err != nil {
		return nil, err
	}
	if step != nil {
		if *step <= 0 {
			return nil, invalid(errors.New("step must be positive"))
		}
		if fence, err = fence.Densify(*step); err != nil {
			return nil, invalid(err)
		}
	}
	return fence, nil
}

type FenceResponse struct {
	HLen figure.Values `json:"hlen"`
	Z    figure.Values `json:"z"`
}

func (s *Server) handleAPIFence(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fence, err := fenceParam(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_, surf, err := s.resolveSurface(r.Context(), q.Get("name"), q.Get("path"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	z, err := s.layers.Fence(r.Context(), fence, surf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FenceResponse{HLen: fence.HLen(), Z: z})
}

func (s *Server) handleAPIXSection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	names, stats := q["surface"], q["stat"]
	if len(names) == 0 && len(stats) == 0 {
		s.writeError(w, r, invalid(errors.New("at least one surface or stat is required")))
		return
	}
	fence, err := fenceParam(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fill, err := optBool(q, "fill")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	zmin, err := optFloat(q, "zmin")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	zmax, err := optFloat(q, "zmax")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var unit string
	profiles := make([]xsection.Profile, 0, len(names))
	for _, name := range names {
		entry, surf, err := s.resolveSurface(r.Context(), name, "")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		z, err := s.layers.Fence(r.Context(), fence, surf)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		p, err := xsection.NewProfile(entry.Name, fence, z)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		profiles = append(profiles, p)
		if unit == "" {
			unit = entry.Unit
		}
	}

	var statistics []xsection.Statistics
	for _, param := range stats {
		st, u, err := s.statistics(r.Context(), param, fence)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		statistics = append(statistics, st)
		if unit == "" {
			unit = u
		}
	}

	fig, err := xsection.Build(profiles, xsection.Options{ZMin: zmin, ZMax: zmax, Fill: fill, ZUnit: unit, Statistics: statistics})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fig)
}

// statistics samples the realizations named by param, "label:name1,name2,...",
// along fence and summarizes them. The unit of the first realization is
// returned with them.
func (s *Server) statistics(ctx context.Context, param string, fence surface.Fence) (xsection.Statistics, string, error) {
	label, list, ok := strings.Cut(param, ":")
	label = strings.TrimSpace(label)
	if !ok || label == "" || strings.TrimSpace(list) == "" {
		return xsection.Statistics{}, "", invalid(fmt.Errorf("stat %q: want label:name1,name2,...", param))
	}
	var unit string
	var reals [][]float64
	for _, name := range strings.Split(list, ",") {
		entry, surf, err := s.resolveSurface(ctx, strings.TrimSpace(name), "")
		if err != nil {
			return xsection.Statistics{}, "", err
		}
		z, err := s.layers.Fence(ctx, fence, surf)
		if err != nil {
			return xsection.Statistics{}, "", err
		}
		reals = append(reals, z)
		if unit == "" {
			unit = entry.Unit
		}
	}
	st, err := xsection.NewStatistics(label, fence, reals)
	if err != nil {
		return xsection.Statistics{}, "", err
	}
	return st, unit, nil
}
