package quote

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	apperrors "trade-alert/internal/errors"
	"trade-alert/internal/models"
)

const (
	sinaReferer   = "https://finance.sina.com.cn"
	sinaMinFields = 32

	// Positions in the comma-delimited reply.
	sinaFieldName   = 0
	sinaFieldPrice  = 3
	sinaFieldVolume = 8
)

// SinaSource is the primary A-share source. Replies look like
//
//	var hq_str_sz000001="平安银行,27.55,27.25,26.91,27.60,26.20,26.91,26.92,22114263,...";
type SinaSource struct {
	client  *Client
	baseURL string
	limiter *rate.Limiter
	now     clock
}

// NewSinaSource creates a source whose request URL is baseURL + code
// (e.g. https://hq.sinajs.cn/list=).
func NewSinaSource(client *Client, baseURL string, limiter *rate.Limiter) *SinaSource {
	return &SinaSource{client: client, baseURL: baseURL, limiter: limiter, now: time.Now}
}

// Name implements Source.
func (s *SinaSource) Name() models.PriceSource { return models.SourceSina }

// Fetch implements Source.
func (s *SinaSource) Fetch(ctx context.Context, symbol string) (*models.PriceSample, error) {
	body, err := s.client.getOK(ctx, request{
		source:  models.SourceSina,
		symbol:  symbol,
		url:     s.baseURL + DomesticCode(symbol),
		headers: map[string]string{"Referer": sinaReferer},
		limiter: s.limiter,
	})
	if err != nil {
		return nil, err
	}

	sample, err := parseSina(decodeText(body), symbol)
	if err != nil {
		return nil, err
	}
	sample.Timestamp = s.now().UTC()
	return sample, nil
}

func parseSina(text, symbol string) (*models.PriceSample, error) {
	src := string(models.SourceSina)

	data, ok := quotedPayload(text)
	if !ok {
		return nil, apperrors.NewParseError(src, symbol, "no quoted payload", nil)
	}

	fields := strings.Split(data, ",")
	if len(fields) < sinaMinFields {
		return nil, apperrors.NewParseError(src, symbol, "too few fields: "+strconv.Itoa(len(fields)), nil)
	}

	price, err := decimal.NewFromString(strings.TrimSpace(fields[sinaFieldPrice]))
	if err != nil {
		return nil, apperrors.NewParseError(src, symbol, "bad price", err)
	}
	if !price.IsPositive() {
		return nil, apperrors.NewParseError(src, symbol, "non-positive price "+price.String(), nil)
	}

	volume, err := strconv.ParseInt(strings.TrimSpace(fields[sinaFieldVolume]), 10, 64)
	if err != nil {
		return nil, apperrors.NewParseError(src, symbol, "bad volume", err)
	}
	if volume < 0 {
		return nil, apperrors.NewParseError(src, symbol, "negative volume "+strconv.FormatInt(volume, 10), nil)
	}

	return &models.PriceSample{
		Symbol: symbol,
		Name:   strings.TrimSpace(fields[sinaFieldName]),
		Price:  price,
		Volume: volume,
		Source: models.SourceSina,
	}, nil
}
