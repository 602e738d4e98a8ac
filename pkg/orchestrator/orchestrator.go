// Package orchestrator drives runs to completion: it expands a run
// into prompt x model work units and executes them with bounded
// concurrency, persisting one response per unit.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/brandvis/mentionoor/pkg/analyzer"
	"github.com/brandvis/mentionoor/pkg/config"
	"github.com/brandvis/mentionoor/pkg/provider"
	"github.com/brandvis/mentionoor/pkg/store"
)

// Orchestrator executes runs in the background.
type Orchestrator interface {
	// Schedule starts processing a run asynchronously and returns
	// immediately.
	Schedule(runID string, models []string)

	// Process executes a run synchronously until every work unit has
	// a recorded outcome, then commits the terminal status.
	Process(ctx context.Context, runID string, models []string) error

	// Stop refuses new work and waits for scheduled runs to drain.
	Stop()
}

// Compile-time interface check.
var _ Orchestrator = (*orchestrator)(nil)

type orchestrator struct {
	log    logrus.FieldLogger
	store  store.Store
	router provider.Router

	// sem bounds in-flight backend calls across all runs, not per run.
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	wg      sync.WaitGroup
	stopped atomic.Bool
}

// NewOrchestrator creates a run orchestrator with the configured
// process-wide concurrency bound and pacing.
func NewOrchestrator(
	log logrus.FieldLogger,
	cfg *config.OrchestratorConfig,
	st store.Store,
	router provider.Router,
) Orchestrator {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	limit := rate.Inf
	if cfg.UnitDelay > 0 {
		limit = rate.Every(cfg.UnitDelay)
	}

	return &orchestrator{
		log:     log.WithField("component", "orchestrator"),
		store:   st,
		router:  router,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (o *orchestrator) Schedule(runID string, models []string) {
	if o.stopped.Load() {
		o.log.WithField("run_id", runID).
			Warn("Orchestrator stopped, refusing to schedule run")

		return
	}

	o.wg.Add(1)

	go func() {
		defer o.wg.Done()

		if err := o.Process(context.Background(), runID, models); err != nil {
			o.log.WithError(err).
				WithField("run_id", runID).
				Error("Run processing failed")
		}
	}()
}

func (o *orchestrator) Stop() {
	o.stopped.Store(true)
	o.wg.Wait()
}

// workUnit is one prompt x model pair of a run.
type workUnit struct {
	prompt store.Prompt
	model  string
}

func (o *orchestrator) Process(
	ctx context.Context, runID string, models []string,
) error {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("loading run: %w", err)
	}

	log := o.log.WithField("run_id", run.ID)

	// Commit the running status before any backend work so observers
	// see the transition even if processing dies immediately after.
	if run.Status == store.StatusPending {
		if err := o.store.UpdateRunStatus(
			ctx, run.ID, store.StatusRunning,
		); err != nil {
			return fmt.Errorf("marking run running: %w", err)
		}
	}

	units := make([]workUnit, 0, len(run.Prompts)*len(models))

	for _, prompt := range run.Prompts {
		for _, model := range models {
			units = append(units, workUnit{prompt: prompt, model: model})
		}
	}

	log.WithFields(logrus.Fields{
		"prompts": len(run.Prompts),
		"models":  len(models),
		"units":   len(units),
	}).Info("Processing run")

	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)

	for _, unit := range units {
		g.Go(func() error {
			if err := o.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer o.sem.Release(1)

			if err := o.limiter.Wait(gctx); err != nil {
				return err
			}

			ok, err := o.processUnit(gctx, run, unit)
			if err != nil {
				// Storage failures count against the unit like any other
				// failure; the run must still reach a terminal status.
				log.WithError(err).
					WithFields(logrus.Fields{
						"prompt_id": unit.prompt.ID,
						"model":     unit.model,
					}).
					Error("Unit outcome could not be recorded")

				failed.Add(1)

				return nil
			}

			if !ok {
				failed.Add(1)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("processing units: %w", err)
	}

	status := store.StatusCompleted
	if len(units) > 0 && failed.Load() == int64(len(units)) {
		status = store.StatusFailed
	}

	if err := o.store.UpdateRunStatus(ctx, run.ID, status); err != nil {
		return fmt.Errorf("marking run %s: %w", status, err)
	}

	log.WithFields(logrus.Fields{
		"status": status,
		"failed": failed.Load(),
	}).Info("Run finished")

	return nil
}

// processUnit produces exactly one recorded outcome for a unit. It
// returns false when the backend call failed after retries; unit
// errors are persisted, not propagated, so one bad unit cannot abort
// its siblings. The returned error covers storage failures only; the
// caller counts those as failed units rather than aborting the run.
func (o *orchestrator) processUnit(
	ctx context.Context, run *store.Run, unit workUnit,
) (bool, error) {
	log := o.log.WithFields(logrus.Fields{
		"run_id":    run.ID,
		"prompt_id": unit.prompt.ID,
		"model":     unit.model,
	})

	existing, err := o.store.FindSuccessfulResponse(
		ctx, run.ID, unit.prompt.ID, unit.model,
	)
	if err != nil {
		return false, fmt.Errorf("checking existing response: %w", err)
	}

	if existing != nil {
		log.Debug("Unit already completed, skipping")

		return true, nil
	}

	start := time.Now()

	result, genErr := o.router.Generate(ctx, unit.prompt.Text, unit.model)
	if genErr != nil {
		log.WithError(genErr).Warn("Unit failed")

		msg := genErr.Error()
		resp := &store.Response{
			RunID:    run.ID,
			PromptID: unit.prompt.ID,
			Model:    unit.model,
			Error:    &msg,
		}

		if err := o.store.CreateResponse(ctx, resp, nil); err != nil {
			return false, fmt.Errorf("recording failed unit: %w", err)
		}

		return false, nil
	}

	latency := result.LatencyMs
	if latency <= 0 {
		latency = float64(time.Since(start).Milliseconds())
	}

	brandNames := make([]string, 0, len(run.Brands))
	for _, b := range run.Brands {
		brandNames = append(brandNames, b.Name)
	}

	found := analyzer.Analyze(result.Text, brandNames)

	mentions := make([]store.ResponseBrandMention, 0, len(run.Brands))

	for i, b := range run.Brands {
		mentions = append(mentions, store.ResponseBrandMention{
			BrandID:       b.ID,
			Mentioned:     found[i].Mentioned,
			Count:         found[i].Count,
			PositionIndex: found[i].PositionIndex,
		})
	}

	resp := &store.Response{
		RunID:     run.ID,
		PromptID:  unit.prompt.ID,
		Model:     unit.model,
		RawText:   result.Text,
		LatencyMs: latency,
	}

	if err := o.store.CreateResponse(ctx, resp, mentions); err != nil {
		return false, fmt.Errorf("recording unit result: %w", err)
	}

	log.WithField("latency_ms", latency).Debug("Unit completed")

	return true, nil
}
