package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/pvclearsky/internal/chart"
	"github.com/lox/pvclearsky/internal/clearsky"
	"github.com/lox/pvclearsky/internal/dataset"
	"github.com/lox/pvclearsky/internal/kpv"
	"github.com/lox/pvclearsky/internal/models"
	"github.com/lox/pvclearsky/internal/store"
	"github.com/lox/pvclearsky/internal/verify"
)

var (
	errBadParam          = errors.New("bad parameter")
	errNarrativeDisabled = errors.New("narrative summaries not configured")
	errNoStore           = errors.New("no database configured")
)

// jsonFloat encodes NaN and infinities as null.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

type jsonFloats []float64

func (fs jsonFloats) MarshalJSON() ([]byte, error) {
	if fs == nil {
		return []byte("[]"), nil
	}
	buf := []byte{'['}
	for i, v := range fs {
		if i > 0 {
			buf = append(buf, ',')
		}
		b, _ := jsonFloat(v).MarshalJSON()
		buf = append(buf, b...)
	}
	return append(buf, ']'), nil
}

type stationJSON struct {
	Index      int                  `json:"index"`
	StationID  string               `json:"station_id"`
	Numeric    map[string]jsonFloat `json:"numeric"`
	Attributes map[string]string    `json:"attributes"`
}

func newStationJSON(m models.StationMetadata) stationJSON {
	out := stationJSON{
		Index:      m.Index,
		StationID:  m.StationID,
		Numeric:    make(map[string]jsonFloat, len(m.Numeric)),
		Attributes: m.Attributes,
	}
	for k, v := range m.Numeric {
		out.Numeric[k] = jsonFloat(v)
	}
	return out
}

type columnStatsJSON struct {
	Column string    `json:"column"`
	Count  int       `json:"count"`
	Mean   jsonFloat `json:"mean"`
	Std    jsonFloat `json:"std"`
	Min    jsonFloat `json:"min"`
	Q25    jsonFloat `json:"q25"`
	Median jsonFloat `json:"median"`
	Q75    jsonFloat `json:"q75"`
	Max    jsonFloat `json:"max"`
}

func newColumnStatsJSON(cs dataset.ColumnStats) columnStatsJSON {
	return columnStatsJSON{
		Column: cs.Column,
		Count:  cs.Count,
		Mean:   jsonFloat(cs.Mean),
		Std:    jsonFloat(cs.Std),
		Min:    jsonFloat(cs.Min),
		Q25:    jsonFloat(cs.Q25),
		Median: jsonFloat(cs.Median),
		Q75:    jsonFloat(cs.Q75),
		Max:    jsonFloat(cs.Max),
	}
}

type recordJSON struct {
	Timestamp         time.Time `json:"timestamp"`
	Power             jsonFloat `json:"power"`
	TotalIrradiance   jsonFloat `json:"lmd_totalirrad"`
	DiffuseIrradiance jsonFloat `json:"lmd_diffuseirrad"`
	Temperature       jsonFloat `json:"lmd_temperature"`
	NWPGlobal         jsonFloat `json:"nwp_globalirrad"`
	NWPDirect         jsonFloat `json:"nwp_directirrad"`
}

func newRecordJSON(r models.StationRecord) recordJSON {
	return recordJSON{
		Timestamp:         r.Timestamp,
		Power:             jsonFloat(r.Power),
		TotalIrradiance:   jsonFloat(r.TotalIrradiance),
		DiffuseIrradiance: jsonFloat(r.DiffuseIrradiance),
		Temperature:       jsonFloat(r.Temperature),
		NWPGlobal:         jsonFloat(r.NWPGlobalIrradiance),
		NWPDirect:         jsonFloat(r.NWPDirectIrradiance),
	}
}

// analysisJSON is the body of /api/kpv.
type analysisJSON struct {
	Station        stationJSON        `json:"station"`
	Timezone       string             `json:"timezone"`
	Model          string             `json:"model"`
	Start          int                `json:"start"`
	End            int                `json:"end"`
	MeanKPV        jsonFloat          `json:"mean_k_pv"`
	KPV            jsonFloats         `json:"k_pv"`
	ReferencePower jsonFloats         `json:"reference_power"`
	MeasuredPower  jsonFloats         `json:"measured_power"`
	WindowLabels   []string           `json:"window_labels"`
	Reports        []models.DayReport `json:"reports,omitempty"`
	ReportError    string             `json:"report_error,omitempty"`
	Narrative      string             `json:"narrative,omitempty"`
	NarrativeError string             `json:"narrative_error,omitempty"`
}

func newAnalysisJSON(a *dataset.Analysis) analysisJSON {
	res := a.Result
	return analysisJSON{
		Station:        newStationJSON(a.Station),
		Timezone:       a.Timezone,
		Model:          res.Model,
		Start:          res.Start,
		End:            res.End,
		MeanKPV:        jsonFloat(res.MeanKPV),
		KPV:            res.KPV,
		ReferencePower: res.ReferencePower,
		MeasuredPower:  res.MeasuredPower,
		WindowLabels:   res.WindowLabels,
		Reports:        a.Reports,
		ReportError:    a.ReportError,
	}
}

type importRunJSON struct {
	ID            int64      `json:"id"`
	Kind          string     `json:"kind"`
	Target        string     `json:"target"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	RecordsParsed int64      `json:"records_parsed"`
	RecordsStored int64      `json:"records_stored"`
	Success       bool       `json:"success"`
	Error         string     `json:"error,omitempty"`
}

func newImportRunJSON(run store.ImportRun) importRunJSON {
	out := importRunJSON{
		ID:            run.ID,
		Kind:          run.Kind,
		Target:        run.Target,
		StartedAt:     run.StartedAt,
		RecordsParsed: run.RecordsParsed.Int64,
		RecordsStored: run.RecordsStored.Int64,
		Success:       run.Success,
		Error:         run.ErrorMessage.String,
	}
	if run.FinishedAt.Valid {
		out.FinishedAt = &run.FinishedAt.Time
	}
	return out
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadParam),
		errors.Is(err, dataset.ErrBadDate),
		errors.Is(err, kpv.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, dataset.ErrUnknownStation),
		errors.Is(err, errNoStore):
		return http.StatusNotFound
	case errors.Is(err, clearsky.ErrMissingClearSkyData),
		errors.Is(err, verify.ErrEmptyMetricWindow),
		errors.Is(err, dataset.ErrNoOverlap),
		errors.Is(err, chart.ErrEmptyChart):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errNarrativeDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("api: request failed", "path", r.URL.Path, "err", err, "request_id", RequestID(r.Context()))
	}
	writeJSON(w, code, map[string]string{
		"error":      err.Error(),
		"request_id": RequestID(r.Context()),
	})
}

func servePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}
