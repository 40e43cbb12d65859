// Package monitor serves the live counts, tracks and crossings over HTTP and
// the pipeline health over gRPC.
package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/finishline/internal/counting"
	"github.com/banshee-data/finishline/internal/monitoring"
	"github.com/banshee-data/finishline/internal/pipeline"
	"github.com/banshee-data/finishline/internal/storage/sqlite"
	"github.com/banshee-data/finishline/internal/version"
)

// Pipeline is the read side of a running pipeline.
type Pipeline interface {
	Status() pipeline.Status
	ActiveObjects() []pipeline.TrackSnapshot
	RecentCrossings() []counting.CrossingEvent
	Totals() map[string]int
	RequestRecalibration()
}

// Server serves the monitor routes. The crossing store is optional; without
// it crossings come from the pipeline's recent history and CSV export is
// unavailable.
type Server struct {
	pipe  Pipeline
	store *sqlite.CrossingStore
}

func NewServer(pipe Pipeline, store *sqlite.CrossingStore) *Server {
	return &Server{pipe: pipe, store: store}
}

// Attach registers the monitor routes on mux.
func (s *Server) Attach(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/counts", s.handleCounts)
	mux.HandleFunc("/api/tracks", s.handleTracks)
	mux.HandleFunc("/api/crossings", s.handleCrossings)
	mux.HandleFunc("/api/recalibrate", s.handleRecalibrate)
	mux.HandleFunc("/charts/counts", s.handleCountsChart)
	mux.HandleFunc("/export.csv", s.handleExport)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Diagf("[monitor] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.pipe.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"version":    version.String(),
		"run_id":     st.RunID,
		"running":    st.Running,
		"frames":     st.Frames,
		"calibrated": st.Calibrated,
	})
}

type countsResponse struct {
	RunID  string         `json:"run_id"`
	Totals map[string]int `json:"totals"`
	Total  int            `json:"total"`
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	totals := s.pipe.Totals()
	total := 0
	for _, n := range totals {
		total += n
	}
	writeJSON(w, http.StatusOK, countsResponse{RunID: s.pipe.Status().RunID, Totals: totals, Total: total})
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	tracks := s.pipe.ActiveObjects()
	if tracks == nil {
		tracks = []pipeline.TrackSnapshot{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

// runParam resolves the run query parameter: absent means the current run,
// "all" means every run.
func (s *Server) runParam(r *http.Request) string {
	switch run := r.URL.Query().Get("run"); run {
	case "":
		return s.pipe.Status().RunID
	case "all":
		return ""
	default:
		return run
	}
}

func parseFilter(r *http.Request) (sqlite.CrossingFilter, error) {
	q := r.URL.Query()
	f := sqlite.CrossingFilter{Label: q.Get("label")}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid since %q: want RFC3339", v)
		}
		f.Since = since
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = limit
	}
	return f, nil
}

func (s *Server) handleCrossings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.RunID = s.runParam(r)

	var events []counting.CrossingEvent
	if s.store != nil {
		events, err = s.store.List(f)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		events = filterRecent(s.pipe.RecentCrossings(), f)
	}
	if events == nil {
		events = []counting.CrossingEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func filterRecent(events []counting.CrossingEvent, f sqlite.CrossingFilter) []counting.CrossingEvent {
	var out []counting.CrossingEvent
	for _, ev := range events {
		if f.RunID != "" && ev.RunID != f.RunID {
			continue
		}
		if f.Label != "" && ev.Label != f.Label {
			continue
		}
		if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, ev)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func (s *Server) handleRecalibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.pipe.RequestRecalibration()
	monitoring.Opsf("[monitor] recalibration requested from %s", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (s *Server) handleCountsChart(w http.ResponseWriter, r *http.Request) {
	totals := s.pipe.Totals()
	labels := make([]string, 0, len(totals))
	for label := range totals {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	data := make([]opts.BarData, len(labels))
	for i, label := range labels {
		data[i] = opts.BarData{Value: totals[label]}
	}

	st := s.pipe.Status()
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Finish line counts", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Crossings by label", Subtitle: fmt.Sprintf("run %s, %d frames", st.RunID, st.Frames)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).AddSeries("crossings", data,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "no crossing store configured")
		return
	}
	run := s.runParam(r)
	name := "crossings.csv"
	if run != "" {
		name = fmt.Sprintf("crossings-%s.csv", run)
	}

	var buf bytes.Buffer
	if err := s.store.ExportCSV(&buf, run); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	_, _ = w.Write(buf.Bytes())
}
