package backtest

import (
	"github.com/rs/zerolog"
)

// TradingStats holds statistical data for Kelly Criterion calculation
type TradingStats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	AvgWin        float64 `json:"avg_win"`        // Average profit per winning trade
	AvgLoss       float64 `json:"avg_loss"`       // Average loss per losing trade (positive value)
	WinRate       float64 `json:"win_rate"`       // Fraction of winning trades (0.0 to 1.0)
	AvgReturn     float64 `json:"avg_return"`     // Average P&L per trade
	TotalProfit   float64 `json:"total_profit"`   // Total profit from all winning trades
	TotalLoss     float64 `json:"total_loss"`     // Total loss from all losing trades (positive value)
	LargestWin    float64 `json:"largest_win"`    // Largest single win
	LargestLoss   float64 `json:"largest_loss"`   // Largest single loss (positive value)
	WinLossRatio  float64 `json:"win_loss_ratio"` // AvgWin / AvgLoss
}

// CalculateStatsFromTrades computes trading statistics from closed trades.
func CalculateStatsFromTrades(trades []*Trade) *TradingStats {
	stats := &TradingStats{}
	if len(trades) == 0 {
		return stats
	}

	stats.TotalTrades = len(trades)
	for _, trade := range trades {
		pl := trade.RealizedPL
		if pl > 0 {
			stats.WinningTrades++
			stats.TotalProfit += pl
			if pl > stats.LargestWin {
				stats.LargestWin = pl
			}
		} else {
			stats.LosingTrades++
			absLoss := -pl
			stats.TotalLoss += absLoss
			if absLoss > stats.LargestLoss {
				stats.LargestLoss = absLoss
			}
		}
	}

	if stats.WinningTrades > 0 {
		stats.AvgWin = stats.TotalProfit / float64(stats.WinningTrades)
	}
	if stats.LosingTrades > 0 {
		stats.AvgLoss = stats.TotalLoss / float64(stats.LosingTrades)
	}

	stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades)
	stats.AvgReturn = (stats.TotalProfit - stats.TotalLoss) / float64(stats.TotalTrades)

	if stats.AvgLoss > 0 {
		stats.WinLossRatio = stats.AvgWin / stats.AvgLoss
	}

	return stats
}

const (
	kellyMinTrades    = 30
	kellyDefaultShare = 0.10
	kellyMaxShare     = 0.25
	kellyMinShare     = 0.01
)

// KellySizer sizes positions with a fractional Kelly Criterion.
type KellySizer struct {
	fraction float64
	logger   zerolog.Logger
}

// NewKellySizer creates a sizer that applies fraction (0.5 for half Kelly) to
// the raw Kelly percentage.
func NewKellySizer(fraction float64, logger zerolog.Logger) *KellySizer {
	return &KellySizer{fraction: fraction, logger: logger}
}

// PositionSize returns the cash amount to commit.
//
// Kelly Criterion Formula:
// f* = (p * b - q) / b
//
// Where:
// - p = probability of winning (win rate)
// - q = probability of losing (1 - p)
// - b = ratio of average win to average loss
//
// Fewer than 30 trades or degenerate statistics use 10% of capital. The
// adjusted share is capped at 25% and floored at 1%.
func (k *KellySizer) PositionSize(stats *TradingStats, capital float64) float64 {
	if stats.TotalTrades < kellyMinTrades {
		return capital * kellyDefaultShare
	}
	if stats.WinRate <= 0 || stats.WinRate >= 1 || stats.AvgWin <= 0 || stats.AvgLoss <= 0 {
		k.logger.Debug().
			Float64("win_rate", stats.WinRate).
			Float64("avg_win", stats.AvgWin).
			Float64("avg_loss", stats.AvgLoss).
			Msg("Degenerate trade statistics - using conservative 10%")
		return capital * kellyDefaultShare
	}

	p := stats.WinRate
	q := 1 - p
	b := stats.WinLossRatio
	kellyPercent := (p*b - q) / b

	if kellyPercent <= 0 {
		return capital * kellyMinShare
	}

	adjusted := kellyPercent * k.fraction
	if adjusted > kellyMaxShare {
		adjusted = kellyMaxShare
	}
	if adjusted < kellyMinShare {
		adjusted = kellyMinShare
	}

	k.logger.Debug().
		Int("total_trades", stats.TotalTrades).
		Float64("kelly_percent", kellyPercent*100).
		Float64("adjusted_percent", adjusted*100).
		Msg("Kelly Criterion position sizing")

	return capital * adjusted
}
