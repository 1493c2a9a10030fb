// Package analytics derives performance reports from a simulation result.
// The optimizer consumes the risk-adjusted score; the CLI prints the rest.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"neuroTradeBot/internal/domain"
	"neuroTradeBot/internal/portfolio"
)

// Report is the full per-run performance breakdown.
type Report struct {
	StartCapital float64
	FinalEquity  float64
	TotalPNL     float64
	TotalPNLPct  float64

	TradeCount int
	WinCount   int
	LossCount  int
	WinRate    float64

	AvgWin       float64
	AvgLoss      float64
	Expectancy   float64 // Mean net P&L per trade
	ProfitFactor float64 // Gross profit / gross loss; +Inf with no losses
	BestTrade    float64
	WorstTrade   float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	MaxDrawdownPct float64
	Score          float64 // Risk-adjusted return, see Score

	Liquidated  bool
	ExitReasons map[domain.ExitReason]int
	PerStrategy map[domain.StrategyID]portfolio.StrategyStats

	// MonthlyReturns is keyed "2006-01" by trade exit month.
	MonthlyReturns map[string]float64
}

// Analyze builds a report from a finished simulation.
func Analyze(result *portfolio.Result) Report {
	r := Report{
		StartCapital:   result.StartCapital,
		FinalEquity:    result.FinalEquity,
		TotalPNL:       result.FinalEquity - result.StartCapital,
		TotalPNLPct:    result.TotalPNLPct,
		TradeCount:     len(result.Trades),
		WinRate:        result.WinRate,
		MaxDrawdownPct: result.MaxDrawdownPct,
		Liquidated:     result.Liquidated,
		ExitReasons:    make(map[domain.ExitReason]int),
		PerStrategy:    result.PerStrategy,
		MonthlyReturns: make(map[string]float64),
	}

	grossProfit, grossLoss := 0.0, 0.0
	winStreak, lossStreak := 0, 0
	for i, tr := range result.Trades {
		r.ExitReasons[tr.ExitReason]++
		r.MonthlyReturns[tr.ExitTime.Format("2006-01")] += tr.PNL
		if tr.PNL > 0 {
			r.WinCount++
			grossProfit += tr.PNL
			winStreak++
			lossStreak = 0
		} else {
			r.LossCount++
			grossLoss += -tr.PNL
			lossStreak++
			winStreak = 0
		}
		if winStreak > r.MaxConsecutiveWins {
			r.MaxConsecutiveWins = winStreak
		}
		if lossStreak > r.MaxConsecutiveLosses {
			r.MaxConsecutiveLosses = lossStreak
		}
		if i == 0 || tr.PNL > r.BestTrade {
			r.BestTrade = tr.PNL
		}
		if i == 0 || tr.PNL < r.WorstTrade {
			r.WorstTrade = tr.PNL
		}
	}
	if r.WinCount > 0 {
		r.AvgWin = grossProfit / float64(r.WinCount)
	}
	if r.LossCount > 0 {
		r.AvgLoss = -grossLoss / float64(r.LossCount)
	}
	if r.TradeCount > 0 {
		r.Expectancy = (grossProfit - grossLoss) / float64(r.TradeCount)
	}
	switch {
	case grossLoss > 0:
		r.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		r.ProfitFactor = math.Inf(1)
	}

	r.Score = Score(result)
	return r
}

// Score is the risk-adjusted objective the portfolio search maximizes:
// total return over maximum drawdown. A liquidated run scores negative
// infinity so the search can never select it; a run with no drawdown at all
// scores its raw return.
func Score(result *portfolio.Result) float64 {
	if result.Liquidated {
		return math.Inf(-1)
	}
	if result.MaxDrawdownPct <= 0 {
		return result.TotalPNLPct
	}
	return result.TotalPNLPct / result.MaxDrawdownPct
}

// String renders the report for the CLI.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Capital:       %.2f -> %.2f (%+.2f%%)\n", r.StartCapital, r.FinalEquity, r.TotalPNLPct*100)
	fmt.Fprintf(&b, "Trades:        %d (%d wins / %d losses, win rate %.1f%%)\n", r.TradeCount, r.WinCount, r.LossCount, r.WinRate*100)
	fmt.Fprintf(&b, "Avg win/loss:  %+.2f / %+.2f (expectancy %+.2f)\n", r.AvgWin, r.AvgLoss, r.Expectancy)
	fmt.Fprintf(&b, "Best/worst:    %+.2f / %+.2f\n", r.BestTrade, r.WorstTrade)
	fmt.Fprintf(&b, "Streaks:       %d wins / %d losses\n", r.MaxConsecutiveWins, r.MaxConsecutiveLosses)
	fmt.Fprintf(&b, "Profit factor: %.2f\n", r.ProfitFactor)
	fmt.Fprintf(&b, "Max drawdown:  %.2f%%\n", r.MaxDrawdownPct*100)
	fmt.Fprintf(&b, "Score:         %.3f\n", r.Score)
	if r.Liquidated {
		b.WriteString("LIQUIDATED\n")
	}

	if len(r.PerStrategy) > 0 {
		ids := make([]domain.StrategyID, 0, len(r.PerStrategy))
		for id := range r.PerStrategy {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		b.WriteString("Per strategy:\n")
		for _, id := range ids {
			s := r.PerStrategy[id]
			fmt.Fprintf(&b, "  %-16s trades=%-4d wins=%-4d pnl=%+.2f\n", id.String(), s.Trades, s.Wins, s.PNL)
		}
	}

	if len(r.MonthlyReturns) > 0 {
		months := make([]string, 0, len(r.MonthlyReturns))
		for m := range r.MonthlyReturns {
			months = append(months, m)
		}
		sort.Strings(months)
		b.WriteString("Monthly P&L:\n")
		for _, m := range months {
			fmt.Fprintf(&b, "  %s  %+.2f\n", m, r.MonthlyReturns[m])
		}
	}
	return b.String()
}
