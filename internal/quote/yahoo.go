package quote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	apperrors "trade-alert/internal/errors"
	"trade-alert/internal/models"
)

// chartResponse is the subset of the chart endpoint we read.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol              string   `json:"symbol"`
				ShortName           string   `json:"shortName"`
				LongName            string   `json:"longName"`
				RegularMarketPrice  *float64 `json:"regularMarketPrice"`
				RegularMarketVolume *int64   `json:"regularMarketVolume"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// YahooSource quotes global equities and crypto pairs from the JSON chart
// endpoint.
type YahooSource struct {
	client  *Client
	baseURL string
	limiter *rate.Limiter
	now     clock
}

// NewYahooSource creates a source rooted at baseURL
// (e.g. https://query1.finance.yahoo.com/v8/finance/chart).
func NewYahooSource(client *Client, baseURL string, limiter *rate.Limiter) *YahooSource {
	return &YahooSource{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: limiter,
		now:     time.Now,
	}
}

// Name implements Source.
func (y *YahooSource) Name() models.PriceSource { return models.SourceYahoo }

// Fetch implements Source. An embedded error, an empty result or a missing
// price is a failure; a missing volume is reported as zero.
func (y *YahooSource) Fetch(ctx context.Context, symbol string) (*models.PriceSample, error) {
	src := string(models.SourceYahoo)

	body, status, err := y.client.get(ctx, request{
		source:  models.SourceYahoo,
		symbol:  symbol,
		url:     y.baseURL + "/" + url.PathEscape(symbol),
		limiter: y.limiter,
	})
	if err != nil {
		return nil, err
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if status < 200 || status >= 300 {
			return nil, apperrors.NewUpstreamError(src, symbol, http.StatusText(status), fmt.Sprintf("HTTP %d", status))
		}
		return nil, apperrors.NewParseError(src, symbol, "invalid JSON", err)
	}

	if e := resp.Chart.Error; e != nil {
		return nil, apperrors.NewUpstreamError(src, symbol, e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, apperrors.NewUpstreamError(src, symbol, "", "empty chart result")
	}

	meta := resp.Chart.Result[0].Meta
	if meta.RegularMarketPrice == nil {
		return nil, apperrors.NewUpstreamError(src, symbol, "", "missing regularMarketPrice")
	}
	price := decimal.NewFromFloat(*meta.RegularMarketPrice)
	if !price.IsPositive() {
		return nil, apperrors.NewUpstreamError(src, symbol, "", "non-positive price "+price.String())
	}

	var volume int64
	if meta.RegularMarketVolume != nil {
		volume = *meta.RegularMarketVolume
	}

	name := meta.ShortName
	if name == "" {
		name = meta.LongName
	}

	return &models.PriceSample{
		Symbol:    symbol,
		Name:      name,
		Price:     price,
		Volume:    volume,
		Timestamp: y.now().UTC(),
		Source:    models.SourceYahoo,
	}, nil
}
