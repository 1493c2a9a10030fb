package optimize

import (
	"context"
	"fmt"
	"math"
	"sort"

	"neuroTradeBot/internal/domain"
	"neuroTradeBot/internal/ports"
)

// GreedyConfig bounds the search.
type GreedyConfig struct {
	MaxDrawdownLimit float64 // Singles above this drawdown never enter the pool
	MaxPortfolioSize int     // 0 means unbounded
}

// DefaultGreedyConfig returns the production search limits.
func DefaultGreedyConfig() GreedyConfig {
	return GreedyConfig{
		MaxDrawdownLimit: 0.30,
		MaxPortfolioSize: 0,
	}
}

// Selection is the search outcome: the chosen candidates and the evaluation
// of the final portfolio.
type Selection struct {
	Candidates []Candidate
	Evaluation Evaluation
}

// Greedy runs the portfolio search: every candidate is scored alone, the
// survivors are ranked, and teammates are added in rank order for as long as
// the combined score keeps improving. Two candidates sharing a strategy ID
// can never end up in the same portfolio.
type Greedy struct {
	cfg       GreedyConfig
	objective Objective
	logger    ports.Logger
}

// NewGreedy creates a greedy portfolio search.
func NewGreedy(cfg GreedyConfig, objective Objective, logger ports.Logger) (*Greedy, error) {
	if objective == nil {
		return nil, fmt.Errorf("%w: objective is required", ports.ErrConfigurationError)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.MaxDrawdownLimit <= 0 {
		return nil, fmt.Errorf("%w: max drawdown limit must be positive", ports.ErrConfigurationError)
	}
	return &Greedy{cfg: cfg, objective: objective, logger: logger}, nil
}

type rankedCandidate struct {
	candidate Candidate
	score     float64
}

// Search selects the best portfolio from the candidate pool. An empty result
// (no candidate survives the single-strategy screen) is not an error.
func (g *Greedy) Search(ctx context.Context, pool []Candidate) (Selection, error) {
	op := "optimize.Search"

	ranked, err := g.screenSingles(ctx, pool)
	if err != nil {
		return Selection{}, err
	}
	if len(ranked) == 0 {
		g.logger.Warn(ctx, "no candidate survived the single-strategy screen", map[string]interface{}{
			"op": op, "pool": len(pool),
		})
		return Selection{}, nil
	}

	chosen := []Candidate{ranked[0].candidate}
	used := map[domain.StrategyID]bool{ranked[0].candidate.Strategy.ID: true}
	best, err := g.objective(ctx, chosen)
	if err != nil {
		return Selection{}, err
	}

	for _, rc := range ranked[1:] {
		if g.cfg.MaxPortfolioSize > 0 && len(chosen) >= g.cfg.MaxPortfolioSize {
			break
		}
		if used[rc.candidate.Strategy.ID] {
			continue
		}

		trial := append(append([]Candidate{}, chosen...), rc.candidate)
		eval, err := g.objective(ctx, trial)
		if err != nil {
			return Selection{}, err
		}
		if eval.Score <= best.Score || eval.Result.Liquidated {
			continue
		}

		chosen = trial
		used[rc.candidate.Strategy.ID] = true
		best = eval
		g.logger.Info(ctx, "candidate admitted to portfolio", map[string]interface{}{
			"op":       op,
			"strategy": rc.candidate.Strategy.ID.String(),
			"score":    best.Score,
			"size":     len(chosen),
		})
	}

	g.logger.Info(ctx, "portfolio search complete", map[string]interface{}{
		"op":    op,
		"size":  len(chosen),
		"score": best.Score,
	})
	return Selection{Candidates: chosen, Evaluation: best}, nil
}

// screenSingles scores every candidate alone and drops the ones the final
// portfolio must never contain: liquidated runs, runs above the drawdown
// limit, and runs that never made money.
func (g *Greedy) screenSingles(ctx context.Context, pool []Candidate) ([]rankedCandidate, error) {
	op := "optimize.screenSingles"

	ranked := make([]rankedCandidate, 0, len(pool))
	for _, c := range pool {
		eval, err := g.objective(ctx, []Candidate{c})
		if err != nil {
			return nil, fmt.Errorf("scoring %s alone: %w", c.Strategy.ID.String(), err)
		}
		if eval.Result.Liquidated || math.IsInf(eval.Score, -1) ||
			eval.Result.MaxDrawdownPct > g.cfg.MaxDrawdownLimit || eval.Score <= 0 {
			g.logger.Debug(ctx, "candidate rejected", map[string]interface{}{
				"op":       op,
				"strategy": c.Strategy.ID.String(),
				"score":    eval.Score,
				"drawdown": eval.Result.MaxDrawdownPct,
			})
			continue
		}
		ranked = append(ranked, rankedCandidate{candidate: c, score: eval.Score})
	}

	// Rank by single score; ties resolve by ID so replays are reproducible.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].candidate.Strategy.ID.String() < ranked[j].candidate.Strategy.ID.String()
	})
	return ranked, nil
}
