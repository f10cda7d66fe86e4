package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Tracker records the outcome of a training run somewhere outside the process.
type Tracker interface {
	Track(ctx context.Context, report *Report) error
}

// LogTracker writes one structured log line per candidate and one for the winner.
type LogTracker struct {
	Logger *slog.Logger
}

func (t LogTracker) Track(ctx context.Context, report *Report) error {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, r := range report.Results {
		if r.Err != nil {
			logger.WarnContext(ctx, "candidate failed",
				"run_id", report.RunID,
				"candidate", r.Name,
				"kind", r.Kind,
				"error", r.Err,
			)
			continue
		}
		logger.InfoContext(ctx, "candidate evaluated",
			"run_id", report.RunID,
			"candidate", r.Name,
			"kind", r.Kind,
			"rmse", r.RMSE,
			"r2", r.R2,
			"folds", r.Folds,
		)
	}
	logger.InfoContext(ctx, "best model selected",
		"run_id", report.RunID,
		"candidate", report.Best.Name,
		"rmse", report.Best.RMSE,
		"r2", report.Best.R2,
	)
	return nil
}

// PushTracker pushes the candidate scores of a run to a Prometheus Pushgateway.
type PushTracker struct {
	URL string
	Job string
}

func (t PushTracker) Track(ctx context.Context, report *Report) error {
	reg := prometheus.NewRegistry()
	rmse := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "respond_training_candidate_rmse",
		Help: "Mean cross-validated RMSE per candidate",
	}, []string{"candidate", "kind"})
	r2 := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "respond_training_candidate_r2",
		Help: "Mean cross-validated R2 per candidate",
	}, []string{"candidate", "kind"})
	best := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "respond_training_best",
		Help: "1 for the selected candidate, 0 otherwise",
	}, []string{"candidate"})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "respond_training_duration_seconds",
		Help: "Wall time of the training run",
	})
	reg.MustRegister(rmse, r2, best, duration)

	for _, r := range report.Results {
		if !r.OK() {
			continue
		}
		rmse.WithLabelValues(r.Name, string(r.Kind)).Set(r.RMSE)
		r2.WithLabelValues(r.Name, string(r.Kind)).Set(r.R2)
		v := 0.0
		if r.Name == report.Best.Name {
			v = 1
		}
		best.WithLabelValues(r.Name).Set(v)
	}
	duration.Set(report.Duration.Seconds())

	job := t.Job
	if job == "" {
		job = "respond_trainer"
	}
	err := push.New(t.URL, job).
		Gatherer(reg).
		Grouping("run_id", report.RunID).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push training metrics: %w", err)
	}
	return nil
}

// MultiTracker fans a report out to several trackers and joins their errors.
type MultiTracker []Tracker

func (m MultiTracker) Track(ctx context.Context, report *Report) error {
	var errs []error
	for _, t := range m {
		if err := t.Track(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
