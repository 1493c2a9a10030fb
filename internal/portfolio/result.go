package portfolio

import (
	"time"

	"neuroTradeBot/internal/domain"
)

// StrategyStats aggregates the ledger for one strategy.
type StrategyStats struct {
	Trades int
	Wins   int
	PNL    float64
}

// Result is the complete output of one simulation run: the ledger, the equity
// curve, and the summary statistics derived from them.
type Result struct {
	StartCapital float64
	FinalEquity  float64

	TotalPNLPct    float64 // Realized return as a fraction of start capital
	WinRate        float64 // Fraction of closed trades with positive net P&L
	MaxDrawdownPct float64 // Worst peak-to-trough mark-to-market decline, as a fraction

	Trades      []domain.Trade
	EquityCurve []domain.EquityPoint
	PerStrategy map[domain.StrategyID]StrategyStats

	Liquidated      bool
	LiquidationTime time.Time
}

func summarize(r *Result) {
	r.TotalPNLPct = 0
	if r.StartCapital > 0 {
		r.TotalPNLPct = (r.FinalEquity - r.StartCapital) / r.StartCapital
	}

	wins := 0
	r.PerStrategy = make(map[domain.StrategyID]StrategyStats)
	for _, tr := range r.Trades {
		s := r.PerStrategy[tr.StrategyID]
		s.Trades++
		s.PNL += tr.PNL
		if tr.PNL > 0 {
			s.Wins++
			wins++
		}
		r.PerStrategy[tr.StrategyID] = s
	}
	if len(r.Trades) > 0 {
		r.WinRate = float64(wins) / float64(len(r.Trades))
	}
}
