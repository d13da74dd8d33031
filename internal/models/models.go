// Package models provides domain models for the price alert service.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource tags where a price sample came from.
type PriceSource string

const (
	SourceYahoo    PriceSource = "yahoo"    // global JSON quote endpoint
	SourceSina     PriceSource = "sina"     // domestic primary, comma-delimited
	SourceTencent  PriceSource = "tencent"  // domestic secondary, tilde-delimited
	SourceFallback PriceSource = "fallback" // synthetic random walk
)

// IsSynthetic reports whether the sample was fabricated rather than fetched.
func (s PriceSource) IsSynthetic() bool {
	return s == SourceFallback
}

// PriceSample is one normalized price observation for a symbol.
type PriceSample struct {
	Symbol    string
	Name      string
	Price     decimal.Decimal
	Volume    int64
	Timestamp time.Time
	Source    PriceSource
}

// PriceBar is one stored price_history row. Open, High, Low and Close all
// carry the same scalar price because upstream quotes are single values.
type PriceBar struct {
	Symbol    string          `json:"symbol"`
	Date      string          `json:"date"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
	CreatedAt time.Time       `json:"created_at"`
}

// BarFromSample collapses a sample into a daily bar keyed by its UTC date.
func BarFromSample(s PriceSample) PriceBar {
	ts := s.Timestamp.UTC()
	return PriceBar{
		Symbol:    s.Symbol,
		Date:      ts.Format(DateLayout),
		Open:      s.Price,
		High:      s.Price,
		Low:       s.Price,
		Close:     s.Price,
		Volume:    s.Volume,
		CreatedAt: ts,
	}
}

// DateLayout is the price_history date key format.
const DateLayout = "2006-01-02"
