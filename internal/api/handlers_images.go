package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/lox/reservoirviz/internal/frame"
	"github.com/lox/reservoirviz/internal/imagegen"
	"github.com/lox/reservoirviz/internal/rft"
)

// ColormapView lists a colormap with the URL of its legend image.
type ColormapView struct {
	Name   string `json:"name"`
	Legend string `json:"legend"`
}

func (s *Server) handleAPIColormaps(w http.ResponseWriter, r *http.Request) {
	names := imagegen.ColormapNames()
	out := make([]ColormapView, 0, len(names))
	for _, name := range names {
		out = append(out, ColormapView{Name: name, Legend: "/api/colormaps/" + name + ".png"})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleColormapLegend serves /api/colormaps/{name}.png as a colour bar
// labelled with the min and max query values.
func (s *Server) handleColormapLegend(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(r.PathValue("file"), ".png")
	cm, err := imagegen.LookupColormap(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

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
	min, max := 0.0, 1.0
	if lo != nil {
		min = *lo
	}
	if hi != nil {
		max = *hi
	}
	unit := q.Get("unit")

	key := fmt.Sprintf("legend_%s_%g_%g_%s", cm.Name, min, max, unit)
	data, err := s.legends.GetOrRender(key, func() ([]byte, error) {
		return imagegen.Legend(cm, min, max, unit)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	servePNG(w, data)
}

// handleCrossplotPreview renders a static simulated-versus-observed chart,
// one series per ensemble, for the wells selected.
func (s *Server) handleCrossplotPreview(w http.ResponseWriter, r *http.Request) {
	df, err := s.loadFrame(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	df = df.FilterWells(selectedWells(r, df)).ActiveOnly()

	groups, err := df.GroupBy(frame.Ensemble)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var series []imagegen.ScatterSeries
	for _, g := range groups {
		mean, err := g.Rows.GroupMean(frame.Well, frame.Date, frame.Zone, frame.Ensemble)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		obs, _ := mean.Values(frame.Obs)
		sim, _ := mean.Values(frame.Simulated)
		series = append(series, imagegen.ScatterSeries{Name: g.Key[0], X: obs, Y: sim})
	}
	if len(series) == 0 {
		s.writeError(w, r, errNoData)
		return
	}

	rng := rft.FindSimRange(df)
	data, err := imagegen.ScatterPNG(series, imagegen.PreviewOptions{
		Title:    "Simulated vs observed pressure",
		XLabel:   "Observed",
		YLabel:   "Simulated",
		Min:      rng.Min,
		Max:      rng.Max,
		Diagonal: true,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	servePNG(w, data)
}

func servePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}
