package training

import (
	"errors"
	"fmt"
)

// DefaultFolds is the number of validation folds used when none is configured.
const DefaultFolds = 5

var ErrTooFewRows = errors.New("too few rows for the requested folds")

// Fold is one expanding-window split: train on rows [0, TrainEnd) and
// validate on rows [TrainEnd, TestEnd).
type Fold struct {
	TrainEnd int
	TestEnd  int
}

// TimeSeriesSplit partitions n ordered rows into folds expanding-window
// splits. Every test block has n/(folds+1) rows, the last block ends at n and
// each training range ends where its test block starts, so no fold ever
// trains on data from its own future.
func TimeSeriesSplit(n, folds int) ([]Fold, error) {
	if folds < 2 {
		return nil, fmt.Errorf("%w: folds must be at least 2, got %d", ErrTooFewRows, folds)
	}
	if n < folds+1 {
		return nil, fmt.Errorf("%w: %d rows for %d folds", ErrTooFewRows, n, folds)
	}

	test := n / (folds + 1)
	out := make([]Fold, folds)
	for i := range folds {
		start := n - (folds-i)*test
		out[i] = Fold{TrainEnd: start, TestEnd: start + test}
	}
	return out, nil
}
