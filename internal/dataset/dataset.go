// Package dataset gives access to the stations of a PV output dataset:
// metadata lookup, timezone-aware station reads with optional quality
// control, date-range selection and summary statistics.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-gota/gota/series"

	"github.com/lox/pvclearsky/internal/ingest"
	"github.com/lox/pvclearsky/internal/metrics"
	"github.com/lox/pvclearsky/internal/models"
	"github.com/lox/pvclearsky/internal/timeconv"
)

var (
	ErrUnknownStation = errors.New("unknown station")
	ErrUnknownColumn  = errors.New("unknown metadata column")
	ErrNoOverlap      = errors.New("stations share no timestamps")
	ErrBadDate        = errors.New("invalid date")
)

// Dataset reads stations from a Source in a fixed timezone. The timezone
// and QC setting are chosen at construction and never change.
type Dataset struct {
	src      Source
	tz       timeconv.Timezone
	qc       bool
	bounds   ingest.QCBounds
	metadata []models.StationMetadata
}

type Option func(*Dataset)

// WithQC drops records that fail the quality-control bounds.
func WithQC(b ingest.QCBounds) Option {
	return func(d *Dataset) {
		d.qc = true
		d.bounds = b
	}
}

// New loads the metadata table eagerly.
func New(src Source, tz timeconv.Timezone, opts ...Option) (*Dataset, error) {
	d := &Dataset{src: src, tz: tz}
	for _, opt := range opts {
		opt(d)
	}
	meta, err := src.Metadata()
	if err != nil {
		return nil, err
	}
	d.metadata = meta
	return d, nil
}

func (d *Dataset) Timezone() timeconv.Timezone { return d.tz }

func (d *Dataset) QC() bool { return d.qc }

// ShowFiles lists the files that make up the dataset.
func (d *Dataset) ShowFiles() ([]string, error) {
	return d.src.Files()
}

// Metadata returns the station table in index order.
func (d *Dataset) Metadata() []models.StationMetadata {
	return d.metadata
}

// Station looks up metadata by station index.
func (d *Dataset) Station(index int) (models.StationMetadata, error) {
	for _, m := range d.metadata {
		if m.Index == index {
			return m, nil
		}
	}
	return models.StationMetadata{}, fmt.Errorf("%w: %d", ErrUnknownStation, index)
}

// ReadStation returns a station's records in the dataset timezone, QC
// filtered when enabled.
func (d *Dataset) ReadStation(index int) ([]models.StationRecord, error) {
	meta, err := d.Station(index)
	if err != nil {
		return nil, err
	}
	records, err := d.src.Records(meta.StationID)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", meta.StationID, err)
	}
	metrics.RecordsLoaded.WithLabelValues(meta.StationID).Add(float64(len(records)))

	for i := range records {
		records[i].Timestamp = d.tz.In(records[i].Timestamp)
	}
	if d.qc {
		kept := ingest.FilterQC(records, d.bounds)
		metrics.RecordsDroppedQC.WithLabelValues(meta.StationID).Add(float64(len(records) - len(kept)))
		records = kept
	}
	return records, nil
}

// SelectDateRange returns records with start <= timestamp <= end, where the
// bounds are naive timestamps in the dataset timezone.
func (d *Dataset) SelectDateRange(index int, start, end string) ([]models.StationRecord, error) {
	from, err := d.parseLocal(start)
	if err != nil {
		return nil, err
	}
	to, err := d.parseLocal(end)
	if err != nil {
		return nil, err
	}

	records, err := d.ReadStation(index)
	if err != nil {
		return nil, err
	}
	var out []models.StationRecord
	for _, r := range records {
		if !r.Timestamp.Before(from) && !r.Timestamp.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d *Dataset) parseLocal(s string) (time.Time, error) {
	for _, layout := range []string{timeconv.Layout, "2006-01-02 15:04", "2006-01-02"} {
		if naive, err := time.Parse(layout, s); err == nil {
			return d.tz.Localize(naive), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w %q: want %s", ErrBadDate, s, timeconv.Layout)
}

// Span is the first and last timestamp of a record series.
type Span struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Intersection describes the overlap of two stations' timestamps.
type Intersection struct {
	A       Span `json:"a"`
	B       Span `json:"b"`
	Overlap Span `json:"overlap"`
}

// DateIntersection returns the first and last timestamp present in both
// stations.
func (d *Dataset) DateIntersection(a, b int) (*Intersection, error) {
	ra, err := d.ReadStation(a)
	if err != nil {
		return nil, err
	}
	rb, err := d.ReadStation(b)
	if err != nil {
		return nil, err
	}
	if len(ra) == 0 || len(rb) == 0 {
		return nil, ErrNoOverlap
	}

	inB := make(map[int64]bool, len(rb))
	for _, r := range rb {
		inB[r.Timestamp.Unix()] = true
	}
	var common []time.Time
	for _, r := range ra {
		if inB[r.Timestamp.Unix()] {
			common = append(common, r.Timestamp)
		}
	}
	if len(common) == 0 {
		return nil, ErrNoOverlap
	}

	return &Intersection{
		A:       Span{Start: ra[0].Timestamp, End: ra[len(ra)-1].Timestamp},
		B:       Span{Start: rb[0].Timestamp, End: rb[len(rb)-1].Timestamp},
		Overlap: Span{Start: common[0], End: common[len(common)-1]},
	}, nil
}

// Summary counts records per station.
type Summary struct {
	Columns  []string       `json:"columns"`
	Stations map[string]int `json:"stations"`
	Total    int            `json:"total"`
}

// Info reads every station and counts its records.
func (d *Dataset) Info() (*Summary, error) {
	s := &Summary{Columns: ingest.StationColumns, Stations: make(map[string]int)}
	for _, m := range d.metadata {
		records, err := d.ReadStation(m.Index)
		if err != nil {
			return nil, err
		}
		s.Stations[m.StationID] = len(records)
		s.Total += len(records)
	}
	return s, nil
}

// ColumnStats is a describe-style summary of one numeric column.
type ColumnStats struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"q25"`
	Median float64 `json:"median"`
	Q75    float64 `json:"q75"`
	Max    float64 `json:"max"`
}

// StationInfo summarises every numeric column of a station. NaN cells are
// excluded from the statistics.
func (d *Dataset) StationInfo(index int) ([]ColumnStats, error) {
	records, err := d.ReadStation(index)
	if err != nil {
		return nil, err
	}

	var out []ColumnStats
	for _, name := range ingest.StationColumns[1:] {
		get := columnGetter(name)
		var vals []float64
		for _, r := range records {
			if v := get(r); !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		cs := ColumnStats{Column: name, Count: len(vals)}
		if len(vals) > 0 {
			s := series.New(vals, series.Float, name)
			cs.Mean = s.Mean()
			cs.Std = s.StdDev()
			cs.Min = s.Min()
			cs.Q25 = s.Quantile(0.25)
			cs.Median = s.Quantile(0.5)
			cs.Q75 = s.Quantile(0.75)
			cs.Max = s.Max()
		}
		out = append(out, cs)
	}
	return out, nil
}

func columnGetter(name string) func(models.StationRecord) float64 {
	switch name {
	case ingest.ColPower:
		return func(r models.StationRecord) float64 { return r.Power }
	case ingest.ColTotalIrradiance:
		return func(r models.StationRecord) float64 { return r.TotalIrradiance }
	case ingest.ColDiffuseIrradiance:
		return func(r models.StationRecord) float64 { return r.DiffuseIrradiance }
	case ingest.ColTemperature:
		return func(r models.StationRecord) float64 { return r.Temperature }
	case ingest.ColPressure:
		return func(r models.StationRecord) float64 { return r.LMDPressure }
	case ingest.ColWindDirection:
		return func(r models.StationRecord) float64 { return r.LMDWindDirection }
	case ingest.ColWindSpeed:
		return func(r models.StationRecord) float64 { return r.LMDWindSpeed }
	case ingest.ColNWPGlobal:
		return func(r models.StationRecord) float64 { return r.NWPGlobalIrradiance }
	case ingest.ColNWPDirect:
		return func(r models.StationRecord) float64 { return r.NWPDirectIrradiance }
	case ingest.ColNWPTemperature:
		return func(r models.StationRecord) float64 { return r.NWPTemperature }
	case ingest.ColNWPHumidity:
		return func(r models.StationRecord) float64 { return r.NWPHumidity }
	case ingest.ColNWPWindSpeed:
		return func(r models.StationRecord) float64 { return r.NWPWindSpeed }
	case ingest.ColNWPWindDirection:
		return func(r models.StationRecord) float64 { return r.NWPWindDirection }
	case ingest.ColNWPPressure:
		return func(r models.StationRecord) float64 { return r.NWPPressure }
	}
	return func(models.StationRecord) float64 { return math.NaN() }
}

// PanelArea multiplies two numeric metadata columns of a station, e.g.
// panel size by panel count.
func (d *Dataset) PanelArea(index int, a, b string) (float64, error) {
	meta, err := d.Station(index)
	if err != nil {
		return 0, err
	}
	va, ok := meta.Value(a)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownColumn, a)
	}
	vb, ok := meta.Value(b)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownColumn, b)
	}
	return va * vb, nil
}
