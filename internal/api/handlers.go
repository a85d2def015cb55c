package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/lox/pvclearsky/internal/chart"
	"github.com/lox/pvclearsky/internal/dataset"
	"github.com/lox/pvclearsky/internal/models"
)

type HealthStatus struct {
	Status           string `json:"status"`
	Stations         int    `json:"stations"`
	Timezone         string `json:"timezone"`
	Model            string `json:"model"`
	QC               bool   `json:"qc"`
	Narrative        bool   `json:"narrative"`
	MigrationVersion int    `json:"migration_version,omitempty"`
	Error            string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "ok",
		Stations:  len(s.ds.Metadata()),
		Timezone:  s.ds.Timezone().String(),
		Model:     s.calc.Model.Name(),
		QC:        s.ds.QC(),
		Narrative: s.narrator != nil,
	}
	if status.Stations == 0 {
		status.Status = "degraded"
		status.Error = "no stations loaded"
	}
	if s.store != nil {
		v, err := s.store.MigrationVersion()
		if err != nil {
			status.Status = "degraded"
			status.Error = err.Error()
		}
		status.MigrationVersion = v
	}

	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	files, err := s.ds.ShowFiles()
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.ds.Info()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"files":   files,
		"summary": summary,
	})
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	meta := s.ds.Metadata()
	out := make([]stationJSON, 0, len(meta))
	for _, m := range meta {
		out = append(out, newStationJSON(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStation(w http.ResponseWriter, r *http.Request) {
	meta, err := s.station(r.PathValue("station"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := s.ds.StationInfo(meta.Index)
	if err != nil {
		writeError(w, r, err)
		return
	}
	columns := make([]columnStatsJSON, 0, len(stats))
	for _, cs := range stats {
		columns = append(columns, newColumnStatsJSON(cs))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"station": newStationJSON(meta),
		"columns": columns,
	})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	meta, err := s.station(r.PathValue("station"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	start, end := q.Get("start"), q.Get("end")
	if start == "" || end == "" {
		writeError(w, r, fmt.Errorf("%w: start and end are required", errBadParam))
		return
	}
	records, err := s.ds.SelectDateRange(meta.Index, start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]recordJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, newRecordJSON(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIntersection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, err := s.station(q.Get("a"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.station(q.Get("b"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := s.ds.DateIntersection(a.Index, b.Index)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleKPV(w http.ResponseWriter, r *http.Request) {
	a, err := s.analyze(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body := newAnalysisJSON(a)

	if r.URL.Query().Get("narrative") == "1" {
		if s.narrator == nil {
			writeError(w, r, errNarrativeDisabled)
			return
		}
		if len(a.Reports) > 0 {
			text, err := s.narrator.Summarize(r.Context(), a.Station.StationID, a.Result, a.Reports)
			if err != nil {
				slog.Warn("api: narrative failed", "station", a.Station.StationID, "err", err)
				body.NarrativeError = err.Error()
			}
			body.Narrative = text
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleImportRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, r, errNoStore)
		return
	}
	limit, err := intParam(r.URL.Query(), "limit", 20)
	if err != nil {
		writeError(w, r, err)
		return
	}
	runs, err := s.store.GetRecentImportRuns(limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]importRunJSON, 0, len(runs))
	for _, run := range runs {
		out = append(out, newImportRunJSON(run))
	}
	writeJSON(w, http.StatusOK, out)
}

type chartKind string

const (
	chartKPV      chartKind = "kpv"
	chartClearSky chartKind = "clearsky"
	chartCard     chartKind = "card"
)

func (s *Server) handleChart(kind chartKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, start, end, err := s.window(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		key := fmt.Sprintf("%s:%s:%d:%d", kind, meta.StationID, start, end)
		if data, ok := s.charts.Get(key); ok {
			servePNG(w, data)
			return
		}

		s.renderMu.Lock()
		defer s.renderMu.Unlock()
		if data, ok := s.charts.Get(key); ok {
			servePNG(w, data)
			return
		}

		a, err := s.ds.Analyze(s.calc, meta.Index, start, end)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var data []byte
		switch kind {
		case chartKPV:
			data, err = chart.KPV(a.Result)
		case chartClearSky:
			data, err = chart.ClearSky(a.Result, a.Reports)
		case chartCard:
			data, err = chart.Card(chart.CardData{StationID: meta.StationID, Result: a.Result, Reports: a.Reports})
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.charts.Set(key, data)
		servePNG(w, data)
	}
}

// station resolves a station by metadata index or by ID.
func (s *Server) station(v string) (models.StationMetadata, error) {
	if v == "" {
		return models.StationMetadata{}, fmt.Errorf("%w: station is required", errBadParam)
	}
	if i, err := strconv.Atoi(v); err == nil {
		return s.ds.Station(i)
	}
	for _, m := range s.ds.Metadata() {
		if m.StationID == v {
			return m, nil
		}
	}
	return models.StationMetadata{}, fmt.Errorf("%w: %s", dataset.ErrUnknownStation, v)
}

// window reads ?station=&start=&end=. end defaults to one day after start.
func (s *Server) window(r *http.Request) (models.StationMetadata, int, int, error) {
	q := r.URL.Query()
	meta, err := s.station(q.Get("station"))
	if err != nil {
		return meta, 0, 0, err
	}
	start, err := intParam(q, "start", 0)
	if err != nil {
		return meta, 0, 0, err
	}
	end, err := intParam(q, "end", start+models.StepsPerDay)
	if err != nil {
		return meta, 0, 0, err
	}
	return meta, start, end, nil
}

func (s *Server) analyze(r *http.Request) (*dataset.Analysis, error) {
	meta, start, end, err := s.window(r)
	if err != nil {
		return nil, err
	}
	return s.ds.Analyze(s.calc, meta.Index, start, end)
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadParam, name)
	}
	return n, nil
}
