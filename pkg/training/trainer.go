// Package training evaluates a panel of candidate models with expanding-window
// cross-validation and produces the artifact of the best one.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/respond/pkg/dataset"
	"github.com/HatiCode/respond/pkg/features"
	"github.com/HatiCode/respond/pkg/models"
)

var ErrNoViableCandidate = errors.New("no candidate model could be trained")

// Trainer runs model selection over a candidate panel.
type Trainer struct {
	panel   []Candidate
	folds   int
	builder *features.Builder
	tracker Tracker
	logger  *slog.Logger
	now     func() time.Time
}

// Option customises a Trainer.
type Option func(*Trainer)

// WithFolds sets the number of cross-validation folds.
func WithFolds(n int) Option { return func(t *Trainer) { t.folds = n } }

// WithBuilder sets the feature builder.
func WithBuilder(b *features.Builder) Option { return func(t *Trainer) { t.builder = b } }

// WithTracker sets the experiment tracker. Tracking failures are logged only.
func WithTracker(tr Tracker) Option { return func(t *Trainer) { t.tracker = tr } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(t *Trainer) { t.now = now } }

// New creates a Trainer over panel.
func New(panel []Candidate, logger *slog.Logger, opts ...Option) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Trainer{
		panel:   panel,
		folds:   DefaultFolds,
		builder: features.NewBuilder(),
		logger:  logger,
		now:     time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Train evaluates every candidate on series, refits the winner on all data and
// returns it as an artifact together with the run report.
//
// Feature candidates are scored by mean RMSE and R² over the validation
// folds. The decomposition candidate is fitted once on the whole series and
// scored on the timestamps of the training rows, so its score is in-sample.
// A candidate that fails is recorded in the report and skipped.
func (t *Trainer) Train(ctx context.Context, series []dataset.Hourly) (*models.Artifact, *Report, error) {
	start := t.now()
	if err := ValidatePanel(t.panel); err != nil {
		return nil, nil, err
	}
	if err := dataset.ValidateHourly(series); err != nil {
		return nil, nil, fmt.Errorf("validate series: %w", err)
	}

	set, err := t.builder.Build(series, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("build features: %w", err)
	}
	folds, err := TimeSeriesSplit(set.Train.Len(), t.folds)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: start,
		Rows:      set.Train.Len(),
	}
	t.logger.Info("starting training run",
		"run_id", report.RunID,
		"rows", set.Train.Len(),
		"columns", len(set.Train.Columns),
		"candidates", len(t.panel),
		"folds", len(folds),
	)

	candidates := make(map[string]Candidate, len(t.panel))
	for _, c := range t.panel {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		candidates[c.Name] = c

		evalStart := time.Now()
		var res Result
		if models.IsSeriesKind(c.Kind) {
			res = t.evaluateSeries(c, series, set)
		} else {
			res = t.evaluateFeatures(ctx, c, set, folds)
		}
		report.Results = append(report.Results, res)

		if res.Err != nil {
			t.logger.Warn("skipping candidate", "candidate", c.Name, "error", res.Err)
			continue
		}
		t.logger.Debug("evaluated candidate",
			"candidate", c.Name,
			"rmse", res.RMSE,
			"r2", res.R2,
			"duration_ms", time.Since(evalStart).Milliseconds(),
		)
	}

	best, ok := selectBest(report.Results)
	if !ok {
		return nil, report, ErrNoViableCandidate
	}
	report.Best = best

	refitStart := time.Now()
	model, err := t.refit(candidates[best.Name], series, set)
	if err != nil {
		return nil, report, fmt.Errorf("refit %s: %w", best.Name, err)
	}

	report.Duration = t.now().Sub(start)
	art := &models.Artifact{
		RunID:     report.RunID,
		Name:      best.Name,
		Kind:      best.Kind,
		TrainedAt: t.now().UTC(),
		RMSE:      best.RMSE,
		R2:        best.R2,
		Model:     model,
	}
	if !models.IsSeriesKind(best.Kind) {
		art.Columns = set.Train.Columns
		art.Lags = t.builder.Lags
		art.Windows = t.builder.Windows
	}

	if t.tracker != nil {
		if err := t.tracker.Track(ctx, report); err != nil {
			t.logger.Warn("experiment tracking failed", "run_id", report.RunID, "error", err)
		}
	}

	t.logger.Info("training run complete",
		"run_id", report.RunID,
		"best", best.Name,
		"rmse", best.RMSE,
		"r2", best.R2,
		"refit_ms", time.Since(refitStart).Milliseconds(),
		"total_ms", report.Duration.Milliseconds(),
	)
	return art, report, nil
}

func (t *Trainer) evaluateFeatures(ctx context.Context, c Candidate, set features.Set, folds []Fold) Result {
	res := Result{Name: c.Name, Kind: c.Kind, RMSE: math.NaN(), R2: math.NaN()}
	var sumRMSE, sumR2 float64

	for i, f := range folds {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		m, err := models.NewRegressor(c.Kind, c.Params)
		if err != nil {
			res.Err = err
			return res
		}
		if err := m.Fit(set.Train.Rows[:f.TrainEnd], set.Target[:f.TrainEnd]); err != nil {
			res.Err = fmt.Errorf("fold %d fit: %w", i, err)
			return res
		}
		pred, err := m.Predict(set.Train.Rows[f.TrainEnd:f.TestEnd])
		if err != nil {
			res.Err = fmt.Errorf("fold %d predict: %w", i, err)
			return res
		}
		actual := set.Target[f.TrainEnd:f.TestEnd]
		sumRMSE += RMSE(actual, pred)
		sumR2 += R2(actual, pred)
	}

	n := float64(len(folds))
	res.RMSE, res.R2, res.Folds = sumRMSE/n, sumR2/n, len(folds)
	if math.IsNaN(res.RMSE) || math.IsInf(res.RMSE, 0) {
		res.Err = fmt.Errorf("non-finite rmse %v", res.RMSE)
	}
	return res
}

// evaluateSeries fits on the full series and scores the rows covered by the
// feature target, aligned by timestamp.
func (t *Trainer) evaluateSeries(c Candidate, series []dataset.Hourly, set features.Set) Result {
	res := Result{Name: c.Name, Kind: c.Kind, RMSE: math.NaN(), R2: math.NaN()}

	m, err := t.fitSeries(c, series)
	if err != nil {
		res.Err = err
		return res
	}
	pred, err := m.PredictAt(set.Train.Timestamps)
	if err != nil {
		res.Err = fmt.Errorf("predict: %w", err)
		return res
	}
	res.RMSE, res.R2, res.Folds = RMSE(set.Target, pred), R2(set.Target, pred), 1
	if math.IsNaN(res.RMSE) || math.IsInf(res.RMSE, 0) {
		res.Err = fmt.Errorf("non-finite rmse %v", res.RMSE)
	}
	return res
}

func (t *Trainer) fitSeries(c Candidate, series []dataset.Hourly) (models.SeriesModel, error) {
	raw, err := models.New(c.Kind, c.Params)
	if err != nil {
		return nil, err
	}
	m, ok := raw.(models.SeriesModel)
	if !ok {
		return nil, fmt.Errorf("kind %q is not a series model", c.Kind)
	}
	if err := m.FitSeries(dataset.Timestamps(series), dataset.Leads(series)); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	return m, nil
}

// refit trains the winning configuration on all available data.
func (t *Trainer) refit(c Candidate, series []dataset.Hourly, set features.Set) (any, error) {
	if models.IsSeriesKind(c.Kind) {
		return t.fitSeries(c, series)
	}
	m, err := models.NewRegressor(c.Kind, c.Params)
	if err != nil {
		return nil, err
	}
	if err := m.Fit(set.Train.Rows, set.Target); err != nil {
		return nil, err
	}
	return m, nil
}
