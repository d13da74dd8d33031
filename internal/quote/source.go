package quote

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"

	"trade-alert/internal/config"
	"trade-alert/internal/models"
	"trade-alert/pkg/utils"
)

// Source fetches one normalized price sample from an upstream.
type Source interface {
	Name() models.PriceSource
	Fetch(ctx context.Context, symbol string) (*models.PriceSample, error)
}

// Sources groups the adapters by market path.
type Sources struct {
	Global            Source
	DomesticPrimary   Source
	DomesticSecondary Source
}

// NewSources wires the three upstream adapters onto one shared client. Each
// source gets its own politeness limiter.
func NewSources(cfg *config.Config) Sources {
	client := NewClient(cfg.PriceFetcher)
	rps := cfg.PriceFetcher.UpstreamRequestsPerSecond
	return Sources{
		Global:            NewYahooSource(client, cfg.Sources.YahooURL, NewLimiter(rps)),
		DomesticPrimary:   NewSinaSource(client, cfg.Sources.SinaURL, NewLimiter(rps)),
		DomesticSecondary: NewTencentSource(client, cfg.Sources.TencentURL, NewLimiter(rps)),
	}
}

// Chain returns the sources to try for symbol, in order. Domestic symbols get
// the primary then the secondary; everything else the global source.
func (s Sources) Chain(symbol string) []Source {
	if utils.DetectMarket(symbol).IsDomestic() {
		chain := make([]Source, 0, 2)
		for _, src := range []Source{s.DomesticPrimary, s.DomesticSecondary} {
			if src != nil {
				chain = append(chain, src)
			}
		}
		return chain
	}
	if s.Global == nil {
		return nil
	}
	return []Source{s.Global}
}

// DomesticCode converts an A-share symbol to the exchange-prefixed code used
// by the domestic endpoints: 000001.SZ -> sz000001, 600519.SS -> sh600519.
// Other symbols are returned unchanged.
func DomesticCode(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	code := s
	if i := strings.IndexByte(s, '.'); i >= 0 {
		code = s[:i]
	}
	if len(code) > 6 {
		code = code[:6]
	}

	switch {
	case strings.HasSuffix(s, utils.SuffixShenzhen):
		return "sz" + code
	case strings.HasSuffix(s, utils.SuffixShanghai):
		return "sh" + code
	default:
		return symbol
	}
}

// quotedPayload returns the text between the first and last double quote,
// e.g. the data part of `var hq_str_sz000001="...";`.
func quotedPayload(text string) (string, bool) {
	start := strings.IndexByte(text, '"')
	end := strings.LastIndexByte(text, '"')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start+1 : end], true
}

// decodeText returns body as UTF-8. The domestic endpoints answer in GBK.
func decodeText(body []byte) string {
	if utf8.Valid(body) {
		return string(body)
	}
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

type clock func() time.Time
