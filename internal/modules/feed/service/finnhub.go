package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"paper_trader/internal/models"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

var errNoSource = errors.New("no quote source configured")

// Finnhub: REST котировки и минутные свечи.
type Finnhub struct {
	base  string
	token string
	http  *http.Client
	now   func() time.Time
}

func NewFinnhub(baseURL, token string, timeout time.Duration) *Finnhub {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Finnhub{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
		now:   time.Now,
	}
}

type finnhubQuote struct {
	C  float64  `json:"c"`
	D  *float64 `json:"d"`
	DP *float64 `json:"dp"`
}

type finnhubCandles struct {
	S string    `json:"s"`
	C []float64 `json:"c"`
	T []int64   `json:"t"`
}

func (f *Finnhub) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	var q finnhubQuote
	if err := f.get(ctx, "/quote", url.Values{"symbol": {symbol}}, &q); err != nil {
		return models.Quote{}, err
	}
	// на неизвестный символ Finnhub отвечает нулями
	if q.C <= 0 {
		return models.Quote{}, fmt.Errorf("finnhub: no price for %s", symbol)
	}

	out := models.Quote{Symbol: symbol, Price: q.C, At: f.now()}
	if q.D != nil {
		out.Change = *q.D
	}
	if q.DP != nil {
		out.ChangePercent = *q.DP
	}
	return out, nil
}

// History: закрытия минутных свечей за последний час.
func (f *Finnhub) History(ctx context.Context, symbol string) ([]float64, error) {
	to := f.now().Unix()
	from := to - 60*60

	var c finnhubCandles
	err := f.get(ctx, "/stock/candle", url.Values{
		"symbol":     {symbol},
		"resolution": {"1"},
		"from":       {fmt.Sprint(from)},
		"to":         {fmt.Sprint(to)},
	}, &c)
	if err != nil {
		return nil, err
	}
	if c.S != "ok" || len(c.C) == 0 {
		return nil, fmt.Errorf("finnhub: no candles for %s (%s)", symbol, c.S)
	}
	return c.C, nil
}

func (f *Finnhub) get(ctx context.Context, path string, q url.Values, out any) error {
	if f.token == "" {
		return errors.New("finnhub: no api key")
	}
	q.Set("token", f.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "finnhub request")
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "finnhub do")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "finnhub read")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("finnhub %s: status %d", path, resp.StatusCode)
	}
	return errors.Wrap(sonic.Unmarshal(body, out), "finnhub decode")
}
