// Package generator produces the synthetic hourly KPI series the dashboard
// is demonstrated and tested with.
//
// Each metric is a sum of deterministic components (base level, trend,
// daily/weekly/monthly/yearly cycles) plus Gaussian noise drawn from a seeded
// generator, so the same Config always yields the same series.
package generator

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/HatiCode/respond/pkg/dataset"
)

var ErrInvalidDays = errors.New("days must be positive")

// Config controls the generated horizon.
type Config struct {
	// End is the last generated hour (inclusive).
	End time.Time
	// Days is the length of the horizon before End.
	Days int
	// Seed makes the noise reproducible.
	Seed uint64
}

// DefaultConfig returns the three-year horizon ending 2025-09-30 23:00 UTC.
func DefaultConfig() Config {
	return Config{
		End:  time.Date(2025, 9, 30, 23, 0, 0, 0, time.UTC),
		Days: 3 * 365,
		Seed: 42,
	}
}

const (
	baseLeads     = 5.0
	leadsTrendMax = 10.0
	leadsNoise    = 1.5

	baseCPL  = 30.0
	cplNoise = 2.0
	cplFloor = 5.0

	baseROI  = 0.3
	roiNoise = 0.05
	roiMin   = -0.5
	roiMax   = 1.2
)

// Generate builds an hourly series from End-Days to End inclusive.
func Generate(cfg Config) ([]dataset.Hourly, error) {
	if cfg.Days <= 0 {
		return nil, ErrInvalidDays
	}

	end := cfg.End.UTC().Truncate(time.Hour)
	start := end.AddDate(0, 0, -cfg.Days)
	n := int(end.Sub(start)/time.Hour) + 1

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	out := make([]dataset.Hourly, n)
	for i := range n {
		t := float64(i)

		trend := 0.0
		if n > 1 {
			trend = leadsTrendMax * t / float64(n-1)
		}
		daily := 2 * math.Sin(2*math.Pi*float64(i%24)/24)
		weekly := 3 * math.Sin(2*math.Pi*float64(i%(24*7))/(24*7))
		leads := baseLeads + trend/500 + daily + weekly + rng.NormFloat64()*leadsNoise
		leads = math.Max(math.RoundToEven(leads), 0)

		monthly := 5 * math.Cos(2*math.Pi*t/(24*30))
		cpl := dataset.Round(baseCPL+monthly+rng.NormFloat64()*cplNoise, 2)
		cpl = math.Max(cpl, cplFloor)

		yearly := 0.1 * math.Sin(2*math.Pi*t/(24*365))
		roi := dataset.Round(baseROI+yearly+rng.NormFloat64()*roiNoise, 3)
		roi = math.Min(math.Max(roi, roiMin), roiMax)

		out[i] = dataset.Hourly{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Leads:     int(leads),
			CPL:       cpl,
			ROI:       roi,
		}
	}

	return out, nil
}
