package utils

import (
	"strings"
)

// Market classifies a symbol by where it trades.
type Market string

const (
	MarketUS     Market = "us"
	MarketCN     Market = "cn"
	MarketCrypto Market = "crypto"
)

// Exchange suffixes of the Shenzhen and Shanghai A-share markets.
const (
	SuffixShenzhen = ".SZ"
	SuffixShanghai = ".SS"
)

var cryptoQuotes = []string{"-USD", "-USDT", "-USDC", "-BTC", "-ETH"}

// DetectMarket classifies symbol by its shape: an A-share exchange suffix
// means CN, a crypto pair such as BTC-USD means Crypto, anything else US.
func DetectMarket(symbol string) Market {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(s, SuffixShenzhen) || strings.HasSuffix(s, SuffixShanghai) {
		return MarketCN
	}
	for _, q := range cryptoQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return MarketCrypto
		}
	}
	return MarketUS
}

// IsDomestic reports whether the symbol is quoted by the A-share endpoints.
func (m Market) IsDomestic() bool {
	return m == MarketCN
}

// DisplayName returns a human readable market name.
func (m Market) DisplayName() string {
	switch m {
	case MarketUS:
		return "US Equities"
	case MarketCN:
		return "A-Shares"
	case MarketCrypto:
		return "Crypto"
	default:
		return string(m)
	}
}

// CurrencySymbol returns the prefix used when formatting prices.
func (m Market) CurrencySymbol() string {
	switch m {
	case MarketUS:
		return "$"
	case MarketCN:
		return "¥"
	default:
		return ""
	}
}
