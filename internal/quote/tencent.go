package quote

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"golang.org/x/time/rate"

	apperrors "trade-alert/internal/errors"
	"trade-alert/internal/models"
)

const (
	tencentReferer   = "https://stockapp.finance.qq.com"
	tencentMinFields = 50

	tencentFieldName   = 1
	tencentFieldPrice  = 3
	tencentFieldVolume = 6
)

// TencentSource is the secondary A-share source, used once the primary is
// exhausted. Replies look like
//
//	v_sz000001="51~平安银行~000001~11.84~11.70~11.84~...";
type TencentSource struct {
	client  *Client
	baseURL string
	limiter *rate.Limiter
	now     clock
}

// NewTencentSource creates a source whose request URL is baseURL + code
// (e.g. https://qt.gtimg.cn/q=).
func NewTencentSource(client *Client, baseURL string, limiter *rate.Limiter) *TencentSource {
	return &TencentSource{client: client, baseURL: baseURL, limiter: limiter, now: time.Now}
}

// Name implements Source.
func (t *TencentSource) Name() models.PriceSource { return models.SourceTencent }

// Fetch implements Source.
func (t *TencentSource) Fetch(ctx context.Context, symbol string) (*models.PriceSample, error) {
	body, err := t.client.getOK(ctx, request{
		source:  models.SourceTencent,
		symbol:  symbol,
		url:     t.baseURL + DomesticCode(symbol),
		headers: map[string]string{"Referer": tencentReferer},
		limiter: t.limiter,
	})
	if err != nil {
		return nil, err
	}

	sample, err := parseTencent(decodeText(body), symbol)
	if err != nil {
		return nil, err
	}
	sample.Timestamp = t.now().UTC()
	return sample, nil
}

func parseTencent(text, symbol string) (*models.PriceSample, error) {
	src := string(models.SourceTencent)

	data, ok := quotedPayload(text)
	if !ok {
		return nil, apperrors.NewParseError(src, symbol, "no quoted payload", nil)
	}

	fields := strings.Split(data, "~")
	if len(fields) < tencentMinFields {
		return nil, apperrors.NewParseError(src, symbol, "too few fields: "+strconv.Itoa(len(fields)), nil)
	}

	price, err := decimal.NewFromString(strings.TrimSpace(fields[tencentFieldPrice]))
	if err != nil {
		return nil, apperrors.NewParseError(src, symbol, "bad price", err)
	}
	if !price.IsPositive() {
		return nil, apperrors.NewParseError(src, symbol, "non-positive price "+price.String(), nil)
	}

	// Volume is sent as float text, e.g. "1234567.00".
	vol, err := cast.ToFloat64E(strings.TrimSpace(fields[tencentFieldVolume]))
	if err != nil {
		return nil, apperrors.NewParseError(src, symbol, "bad volume", err)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if math.IsNaN(vol) || vol < 0 || vol >= math.MaxInt64 {
		return nil, apperrors.NewParseError(src, symbol, "volume out of range "+strconv.FormatFloat(vol, 'f', -1, 64), nil)
	}

	return &models.PriceSample{
		Symbol: symbol,
		Name:   strings.TrimSpace(fields[tencentFieldName]),
		Price:  price,
		Volume: int64(vol),
		Source: models.SourceTencent,
	}, nil
}
