package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// plotObjects renders a quick top-down scatter (HTML) of recently stored
// objects. X/Y are the ground-plane coordinates; point colour encodes radial
// velocity so approaching and receding targets stand apart.
func (s *Server) plotObjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, ok := parseLimit(r, 2000)
	if !ok {
		http.Error(w, "Invalid 'limit' parameter", http.StatusBadRequest)
		return
	}

	objects, err := s.db.RecentObjects(limit)
	if err != nil {
		http.Error(w, "Failed to query objects", http.StatusInternalServerError)
		return
	}

	data := make([]opts.ScatterData, 0, len(objects))
	var vMin, vMax float64
	for _, o := range objects {
		v := float64(o.Velocity)
		if v < vMin {
			vMin = v
		}
		if v > vMax {
			vMax = v
		}
		data = append(data, opts.ScatterData{Value: []interface{}{o.X, o.Y, v}})
	}
	if vMin == 0 && vMax == 0 {
		vMin, vMax = -1, 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Point Cloud (Top Down)", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Detected Objects", Subtitle: fmt.Sprintf("points=%d", len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(vMin),
			Max:        float32(vMax),
			InRange:    &opts.VisualMapInRange{Color: []string{"#313695", "#74add1", "#e0f3f8", "#fee090", "#f46d43", "#a50026"}},
		}),
	)
	scatter.AddSeries("objects", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		http.Error(w, "Failed to render plot", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
