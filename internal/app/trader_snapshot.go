package app

import (
	"math"
	"sort"
	"time"

	"polytracker/clients/polymarketapi"

	"github.com/shopspring/decimal"
)

const (
	// Positions at or below this size are dust and are not reported as open.
	minOpenPositionSize = 0.01

	maxNotableBets = 5

	unknownMarketTitle = "Unknown Market"

	secondsPerDay = 24 * 60 * 60
)

// OpenPosition is an upstream position enriched with P&L and last-trade data.
type OpenPosition struct {
	polymarketapi.Position

	UnrealizedPnl      float64 `json:"unrealizedPnl"`
	PnlPercent         float64 `json:"pnlPercent"`
	EntryPrice         float64 `json:"entryPrice"`
	CurrentPrice       float64 `json:"currentPrice"`
	LastTradeTimestamp int64   `json:"lastTradeTimestamp"`
}

// ClosedPositionView is one de-duplicated resolved market.
type ClosedPositionView struct {
	Title       string  `json:"title"`
	Outcome     string  `json:"outcome"`
	ConditionID string  `json:"conditionId"`
	TotalBought float64 `json:"totalBought"`
	AmountWon   float64 `json:"amountWon"`
	RealizedPnl float64 `json:"realizedPnl"`
	PnlPercent  float64 `json:"pnlPercent"`
	Won         bool    `json:"won"`
	Lost        bool    `json:"lost"`
	Timestamp   int64   `json:"timestamp"`
	AvgPrice    float64 `json:"avgPrice"`
}

// TradeView is an upstream trade with its notional value.
type TradeView struct {
	polymarketapi.Trade

	UsdValue float64 `json:"usdValue"`
}

// TraderSnapshot is the result of one aggregation for one wallet. It is
// never modified after it is built.
type TraderSnapshot struct {
	Found     bool    `json:"found"`
	Pseudonym *string `json:"pseudonym"`

	TotalPnl float64 `json:"totalPnl"`
	Pnl1d    float64 `json:"pnl1d"`
	Pnl1w    float64 `json:"pnl1w"`
	Pnl1m    float64 `json:"pnl1m"`

	WinRate      float64 `json:"winRate"`
	TotalVolume  float64 `json:"totalVolume"`
	CurrentValue float64 `json:"currentValue"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`

	TotalPositions  int                  `json:"totalPositions"`
	NotableBets     []string             `json:"notableBets"`
	Trades          []TradeView          `json:"trades"`
	Positions       []OpenPosition       `json:"positions"`
	ClosedPositions []ClosedPositionView `json:"closedPositions"`

	AvgPositionSize float64 `json:"avgPositionSize"`
	LargestTrade    float64 `json:"largestTrade"`
	AvgTradeSize    float64 `json:"avgTradeSize"`

	TotalTrades         int `json:"totalTrades"`
	OpenPositionCount   int `json:"openPositionCount"`
	ClosedPositionCount int `json:"closedPositionCount"`
}

// snapshotInput is everything fetched from upstream for one wallet.
type snapshotInput struct {
	Positions []polymarketapi.Position
	Trades    []polymarketapi.Trade
	Value     float64
	Closed    []polymarketapi.ClosedPosition
}

// buildSnapshot derives trader statistics from raw upstream data. now is
// truncated to whole seconds for the period windows.
//
// totalVolume deliberately sums three overlapping sources: every open-feed
// position's totalBought (or initialValue), every de-duplicated closed
// position's totalBought, and every trade's absolute notional.
func buildSnapshot(in snapshotInput, now time.Time) *TraderSnapshot {
	lastTrade := make(map[string]int64, len(in.Trades))
	for _, t := range in.Trades {
		if ts, ok := lastTrade[t.ConditionID]; !ok || t.Timestamp > ts {
			lastTrade[t.ConditionID] = t.Timestamp
		}
	}

	var (
		totalPnl    float64
		totalVolume float64
		wins        int
		losses      int
	)

	open := make([]OpenPosition, 0, len(in.Positions))
	notable := make([]string, 0, maxNotableBets)
	seenTitles := make(map[string]struct{})

	for _, p := range in.Positions {
		totalVolume += positionVolume(p)

		if p.Size <= minOpenPositionSize {
			continue
		}

		totalPnl += p.CashPnl
		if p.Title != "" {
			if _, ok := seenTitles[p.Title]; !ok {
				seenTitles[p.Title] = struct{}{}
				if len(notable) < maxNotableBets {
					notable = append(notable, p.Title)
				}
			}
		}

		pnlPercent := 0.0
		if p.InitialValue > 0 {
			pnlPercent = p.CashPnl / p.InitialValue * 100
		}

		open = append(open, OpenPosition{
			Position:           p,
			UnrealizedPnl:      p.CashPnl,
			PnlPercent:         pnlPercent,
			EntryPrice:         p.AvgPrice,
			CurrentPrice:       p.CurPrice,
			LastTradeTimestamp: lastTrade[p.ConditionID],
		})
	}

	closed := make([]ClosedPositionView, 0, len(in.Closed))
	seenConditions := make(map[string]struct{}, len(in.Closed))

	for _, c := range in.Closed {
		if _, ok := seenConditions[c.ConditionID]; ok {
			continue
		}
		seenConditions[c.ConditionID] = struct{}{}

		// Prices strictly between 0 and 1 count as neither.
		won := c.CurPrice == 1
		lost := c.CurPrice == 0
		if won {
			wins++
		} else if lost {
			losses++
		}

		totalPnl += c.RealizedPnl
		totalVolume += c.TotalBought

		amountWon := 0.0
		if won {
			amountWon = c.TotalBought + c.RealizedPnl
		}
		pnlPercent := 0.0
		if c.TotalBought > 0 {
			pnlPercent = c.RealizedPnl / c.TotalBought * 100
		}
		title := c.Title
		if title == "" {
			title = unknownMarketTitle
		}

		closed = append(closed, ClosedPositionView{
			Title:       title,
			Outcome:     c.Outcome,
			ConditionID: c.ConditionID,
			TotalBought: c.TotalBought,
			AmountWon:   amountWon,
			RealizedPnl: c.RealizedPnl,
			PnlPercent:  pnlPercent,
			Won:         won,
			Lost:        lost,
			Timestamp:   c.Timestamp,
			AvgPrice:    c.AvgPrice,
		})
	}

	nowSec := now.Unix()
	var pnl1d, pnl1w, pnl1m float64
	for _, c := range closed {
		if c.Timestamp >= nowSec-1*secondsPerDay {
			pnl1d += c.RealizedPnl
		}
		if c.Timestamp >= nowSec-7*secondsPerDay {
			pnl1w += c.RealizedPnl
		}
		if c.Timestamp >= nowSec-30*secondsPerDay {
			pnl1m += c.RealizedPnl
		}
	}

	var unrealized float64
	for _, p := range open {
		unrealized += p.UnrealizedPnl
	}

	trades := make([]TradeView, len(in.Trades))
	var largestTrade, tradeNotional float64
	for i, t := range in.Trades {
		usd := t.Size * t.Price
		trades[i] = TradeView{Trade: t, UsdValue: usd}

		abs := math.Abs(usd)
		totalVolume += abs
		tradeNotional += abs
		if abs > largestTrade {
			largestTrade = abs
		}
	}
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp > trades[j].Timestamp
	})

	totalPositions := len(open) + len(closed)

	avgPositionSize := 0.0
	if totalPositions > 0 {
		avgPositionSize = totalVolume / float64(totalPositions)
	}
	avgTradeSize := 0.0
	if len(trades) > 0 {
		avgTradeSize = tradeNotional / float64(len(trades))
	}

	return &TraderSnapshot{
		Found:               totalPositions > 0 || len(in.Trades) > 0,
		Pseudonym:           pickPseudonym(in.Positions, in.Trades),
		TotalPnl:            totalPnl,
		Pnl1d:               pnl1d + unrealized,
		Pnl1w:               pnl1w + unrealized,
		Pnl1m:               pnl1m + unrealized,
		WinRate:             winRate(wins, losses),
		TotalVolume:         totalVolume,
		CurrentValue:        in.Value,
		Wins:                wins,
		Losses:              losses,
		TotalPositions:      totalPositions,
		NotableBets:         notable,
		Trades:              trades,
		Positions:           open,
		ClosedPositions:     closed,
		AvgPositionSize:     avgPositionSize,
		LargestTrade:        largestTrade,
		AvgTradeSize:        avgTradeSize,
		TotalTrades:         len(in.Trades),
		OpenPositionCount:   len(open),
		ClosedPositionCount: len(closed),
	}
}

// positionVolume is |totalBought|, or |initialValue| when totalBought is 0.
func positionVolume(p polymarketapi.Position) float64 {
	v := p.TotalBought
	if v == 0 {
		v = p.InitialValue
	}
	return math.Abs(v)
}

// winRate is wins/(wins+losses) as a percentage rounded to one decimal.
func winRate(wins, losses int) float64 {
	decided := wins + losses
	if decided == 0 {
		return 0
	}
	rate := decimal.NewFromInt(int64(wins)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(decided))).
		Round(1)
	return rate.InexactFloat64()
}

// pickPseudonym takes the first position's pseudonym, then the first
// trade's, in upstream order.
func pickPseudonym(positions []polymarketapi.Position, trades []polymarketapi.Trade) *string {
	if len(positions) > 0 && positions[0].Pseudonym != "" {
		name := positions[0].Pseudonym
		return &name
	}
	if len(trades) > 0 && trades[0].Pseudonym != "" {
		name := trades[0].Pseudonym
		return &name
	}
	return nil
}
