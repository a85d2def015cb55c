package ingest

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/lox/pvclearsky/internal/models"
)

func rec(total, diffuse float64) models.StationRecord {
	return models.StationRecord{
		Timestamp:         time.Date(2018, 7, 1, 4, 0, 0, 0, time.UTC),
		TotalIrradiance:   total,
		DiffuseIrradiance: diffuse,
	}
}

func TestValidateRecord(t *testing.T) {
	// cos(33°)^1.2 ≈ 0.8097, so with diffuse = 60 the physical total bound
	// is 1.5*60*0.8097+100 ≈ 172.9 W/m².
	tests := []struct {
		name    string
		total   float64
		diffuse float64
		want    []string
	}{
		{"clean midday", 150, 60, nil},
		{"negative total", -5, 0, []string{FlagTotalPhysical, FlagTotalExtraterrestrial, FlagClosure}},
		{"total above diffuse-scaled bound", 200, 60, []string{FlagTotalPhysical}},
		{"diffuse above self-scaled bound", 400, 300, []string{FlagDiffusePhysical}},
		{"night closure", 30, 20, []string{FlagClosure}},
		{"exactly at closure", 50, 20, []string{FlagClosure}},
		{"beyond extraterrestrial", 1800, 1200, []string{FlagTotalPhysical, FlagDiffusePhysical, FlagTotalExtraterrestrial, FlagDiffuseExtraterrestrial}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateRecord(rec(tt.total, tt.diffuse), DefaultQC)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ValidateRecord(%v, %v) = %v, want %v", tt.total, tt.diffuse, got, tt.want)
			}
		})
	}
}

func TestFilterQC(t *testing.T) {
	in := []models.StationRecord{
		rec(-5, 10),
		rec(150, 60),
		rec(200, 60),
		rec(40, 10),
		rec(120, 100),
	}

	out := FilterQC(in, DefaultQC)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].TotalIrradiance != 150 || out[1].TotalIrradiance != 120 {
		t.Errorf("kept totals = %v, %v, want 150, 120", out[0].TotalIrradiance, out[1].TotalIrradiance)
	}
	if len(in) != 5 {
		t.Error("input slice was modified")
	}
}

func TestFilterQC_PhysicalBoundFormula(t *testing.T) {
	c := math.Pow(math.Cos(DefaultQC.ZenithDeg*math.Pi/180), 1.2)
	limit := 1.5*60*c + 100

	if !PassesQC(rec(limit-0.001, 60), DefaultQC) {
		t.Errorf("total just below the physical bound %.3f should pass", limit)
	}
	if PassesQC(rec(limit+0.01, 60), DefaultQC) {
		t.Errorf("total just above the physical bound %.3f should fail", limit)
	}
}

func TestComponentLimits(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(Component, float64, float64, float64) (bool, error)
		c       Component
		x       float64
		want    bool
		wantErr bool
	}{
		{"physical ghi ok", PhysicalLimit, GHI, 800, true, false},
		{"physical ghi low", PhysicalLimit, GHI, -4, false, false},
		{"physical bni above e0n", PhysicalLimit, BNI, 1400, false, false},
		{"physical dhi ok", PhysicalLimit, DHI, 300, true, false},
		{"extreme ghi low", ExtremeLimit, GHI, -3, false, false},
		{"extreme bni ok", ExtremeLimit, BNI, 900, true, false},
		{"extreme dhi high", ExtremeLimit, DHI, 1200, false, false},
		{"unknown component", PhysicalLimit, Component("POA"), 10, false, true},
		{"unknown component extreme", ExtremeLimit, Component("POA"), 10, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(tt.c, tt.x, 1361, 33)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
