package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/spending-tracker/internal/diavgeia"
	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/dvloznov/spending-tracker/internal/logger"
)

// PipelineStep represents a single step of processing one (type, window) pair.
type PipelineStep interface {
	Execute(ctx context.Context, state *WindowState) error
}

// WindowState holds the shared state across all steps for one window.
type WindowState struct {
	Type   domain.DecisionType
	Window domain.Window
	Policy domain.ConflictPolicy

	Result  *diavgeia.WindowResult
	Batches []domain.DecisionBatch
	Stats   domain.ReconcileStats
}

// Fetched is the number of decisions received so far.
func (s *WindowState) Fetched() int {
	if s.Result == nil {
		return 0
	}
	return len(s.Result.Decisions)
}

// Expenses flattens the expenses of every batch.
func (s *WindowState) Expenses() []domain.Expense {
	var out []domain.Expense
	for _, b := range s.Batches {
		out = append(out, b.Expenses...)
	}
	return out
}

// FetchStep pulls every page of the window from the registry.
// On failure the pages fetched before the error stay in state.Result.
type FetchStep struct {
	Fetcher Fetcher
}

func (s *FetchStep) Execute(ctx context.Context, state *WindowState) error {
	res, err := s.Fetcher.FetchWindow(ctx, state.Type, state.Window)
	state.Result = res
	if err != nil {
		return err
	}
	if res.Mismatch() {
		log := logger.FromContext(ctx)
		log.Warn().
			Str("type", string(state.Type)).
			Str("window", state.Window.String()).
			Int("declared_total", res.DeclaredTotal).
			Int("received", len(res.Decisions)).
			Msg("declared total differs from decisions received")
	}
	return nil
}

// NormalizeStep converts fetched decisions into storage batches.
type NormalizeStep struct {
	Normalizer *Normalizer
}

func (s *NormalizeStep) Execute(ctx context.Context, state *WindowState) error {
	if state.Result == nil {
		return nil
	}
	log := logger.FromContext(ctx)
	state.Batches = make([]domain.DecisionBatch, 0, len(state.Result.Decisions))
	for _, d := range state.Result.Decisions {
		if mp, ok := d.Payload().(diavgeia.MalformedPayload); ok {
			log.Warn().Err(mp.Err).Str("ada", d.ADA).Msg("payload did not decode; storing decision without expenses")
		}
		state.Batches = append(state.Batches, s.Normalizer.Normalize(d))
	}
	return nil
}

// ReconcileStep stores the batches in a single transaction.
type ReconcileStep struct {
	Reconciler Reconciler
}

func (s *ReconcileStep) Execute(ctx context.Context, state *WindowState) error {
	if len(state.Batches) == 0 {
		return nil
	}
	stats, err := s.Reconciler.Reconcile(ctx, state.Batches, state.Policy)
	if err != nil {
		return err
	}
	state.Stats = stats
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *WindowState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewWindowPipeline fetches, normalizes and reconciles one window.
func NewWindowPipeline(f Fetcher, n *Normalizer, r Reconciler) *Pipeline {
	return NewPipeline(
		&FetchStep{Fetcher: f},
		&NormalizeStep{Normalizer: n},
		&ReconcileStep{Reconciler: r},
	)
}

// NewCollectPipeline fetches and normalizes without storing.
func NewCollectPipeline(f Fetcher, n *Normalizer) *Pipeline {
	return NewPipeline(
		&FetchStep{Fetcher: f},
		&NormalizeStep{Normalizer: n},
	)
}
