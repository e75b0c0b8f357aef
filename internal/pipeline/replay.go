package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dvloznov/spending-tracker/internal/archive"
	"github.com/dvloznov/spending-tracker/internal/diavgeia"
	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/dvloznov/spending-tracker/internal/logger"
)

// PageSource lists and reads archived raw pages.
type PageSource interface {
	ListPages(ctx context.Context) ([]archive.PageRef, error)
	DownloadPage(ctx context.Context, ref archive.PageRef) ([]byte, error)
}

// ReplayReport summarizes a replay.
type ReplayReport struct {
	Windows   int
	Pages     int
	Decisions int
	Stats     domain.ReconcileStats
}

type windowKey struct {
	t domain.DecisionType
	w domain.Window
}

// Replayer rebuilds storage from archived pages without calling the registry.
type Replayer struct {
	Source     PageSource
	Normalizer *Normalizer
	Reconciler Reconciler
	Refresher  Refresher
}

// Replay reconciles every archived window whose range lies within r, one
// transaction per window, under the backfill conflict policy. An empty r
// replays everything.
func (rp *Replayer) Replay(ctx context.Context, r domain.Window) (*ReplayReport, error) {
	log := logger.FromContext(ctx)

	refs, err := rp.Source.ListPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("Replay: listing pages: %w", err)
	}

	groups := map[windowKey][]archive.PageRef{}
	var order []windowKey
	for _, ref := range refs {
		if !r.Empty() && (ref.Window.From.Before(r.From) || r.To.Before(ref.Window.To)) {
			continue
		}
		k := windowKey{t: ref.Type, w: ref.Window}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], ref)
	}
	slices.SortFunc(order, func(a, b windowKey) int {
		if a.t != b.t {
			return slices.Index(domain.AllDecisionTypes, a.t) - slices.Index(domain.AllDecisionTypes, b.t)
		}
		return a.w.From.Compare(b.w.From)
	})

	report := &ReplayReport{}
	reconcile := NewPipeline(&NormalizeStep{Normalizer: rp.Normalizer}, &ReconcileStep{Reconciler: rp.Reconciler})
	for _, k := range order {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		pages := groups[k]
		slices.SortFunc(pages, func(a, b archive.PageRef) int { return a.Page - b.Page })

		res := &diavgeia.WindowResult{Type: k.t, Window: k.w}
		for _, ref := range pages {
			raw, err := rp.Source.DownloadPage(ctx, ref)
			if err != nil {
				return report, fmt.Errorf("Replay: downloading %s page %d of %s: %w", k.t, ref.Page, k.w, err)
			}
			var resp diavgeia.SearchResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				return report, fmt.Errorf("Replay: decoding %s page %d of %s: %w", k.t, ref.Page, k.w, err)
			}
			if ref.Page == 0 {
				res.DeclaredTotal = resp.Info.Total
			}
			res.Decisions = append(res.Decisions, resp.Decisions...)
			res.Pages++
		}

		state := &WindowState{Type: k.t, Window: k.w, Policy: domain.PreserveExisting, Result: res}
		if err := reconcile.Execute(ctx, state); err != nil {
			return report, fmt.Errorf("Replay: %s %s: %w", k.t, k.w, err)
		}
		report.Windows++
		report.Pages += res.Pages
		report.Decisions += len(res.Decisions)
		report.Stats.Add(state.Stats)
		log.Info().Str("type", string(k.t)).Str("window", k.w.String()).Int("decisions", len(res.Decisions)).Msg("window replayed")
	}

	if rp.Refresher != nil && report.Windows > 0 {
		if err := rp.Refresher.Refresh(ctx); err != nil {
			log.Error().Err(err).Msg("aggregate refresh after replay failed")
		}
	}
	return report, nil
}
