package training

import (
	"math"
	"time"

	"github.com/HatiCode/respond/pkg/models"
)

// Result is the validation outcome of one candidate.
// Err is set, and the scores are NaN, when the candidate could not be evaluated.
type Result struct {
	Name  string
	Kind  models.Kind
	RMSE  float64
	R2    float64
	Folds int
	Err   error
}

// OK reports whether the candidate produced usable scores.
func (r Result) OK() bool {
	return r.Err == nil && !math.IsNaN(r.RMSE) && !math.IsNaN(r.R2)
}

// Report summarises a training run.
type Report struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Rows      int
	Results   []Result
	Best      Result
}

// selectBest picks the result with the lowest RMSE. An exact RMSE tie goes to
// the higher R², and a full tie keeps the earlier result. Failed results are
// ignored.
func selectBest(results []Result) (Result, bool) {
	var best Result
	found := false
	for _, r := range results {
		if !r.OK() {
			continue
		}
		if !found || better(r, best) {
			best, found = r, true
		}
	}
	return best, found
}

func better(a, b Result) bool {
	if a.RMSE != b.RMSE {
		return a.RMSE < b.RMSE
	}
	return a.R2 > b.R2
}
