// Package optimize searches for the best-performing strategy portfolio by
// repeatedly replaying the simulation engine over candidate subsets. The
// engine is wrapped as a pure objective function so the search method can be
// swapped without touching the core.
package optimize

import (
	"context"

	"neuroTradeBot/internal/analytics"
	"neuroTradeBot/internal/domain"
	"neuroTradeBot/internal/portfolio"
)

// Candidate is one strategy with its prepared simulation inputs. Candles and
// signals are computed once up front; every replay reuses them unchanged.
type Candidate struct {
	Strategy domain.Strategy
	Candles  []*domain.Kline
	Signals  []domain.Signal
}

// Evaluation is one scored replay of a candidate set.
type Evaluation struct {
	Score  float64
	Result *portfolio.Result
}

// Objective scores a candidate set. Implementations must be deterministic:
// identical candidates always produce the identical evaluation.
type Objective func(ctx context.Context, candidates []Candidate) (Evaluation, error)

// EngineObjective wraps a simulation engine as the search objective, scoring
// each replay with the risk-adjusted return.
func EngineObjective(engine *portfolio.Engine) Objective {
	return func(ctx context.Context, candidates []Candidate) (Evaluation, error) {
		result, err := engine.Run(ctx, buildInput(candidates))
		if err != nil {
			return Evaluation{}, err
		}
		return Evaluation{Score: analytics.Score(result), Result: result}, nil
	}
}

// buildInput merges the candidates' streams into one engine input. The engine
// orders the concatenated signals by timestamp itself; at equal timestamps the
// candidate order decides, which keeps margin contention deterministic across
// replays.
func buildInput(candidates []Candidate) portfolio.Input {
	input := portfolio.Input{
		Candles: make(map[domain.StrategyID][]*domain.Kline, len(candidates)),
	}
	for _, c := range candidates {
		input.Candles[c.Strategy.ID] = c.Candles
		input.Signals = append(input.Signals, c.Signals...)
	}
	return input
}
