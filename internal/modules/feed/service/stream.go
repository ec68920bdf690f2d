package service

import (
	"context"
	"net/url"
	"time"

	"paper_trader/internal/models"
	"paper_trader/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
)

// Stream: сделки Finnhub по websocket, держит кэш последних цен свежим.
// Переподключается сам с экспоненциальной задержкой.
type Stream struct {
	url     string
	token   string
	symbols []string

	dialer  *websocket.Dialer
	retry   *backoff.Backoff
	now     func() time.Time
	onTrade func(models.Quote)
	onConn  func(bool)
}

func NewStream(wsURL, token string, symbols []string, onTrade func(models.Quote), onConn func(bool)) *Stream {
	if onConn == nil {
		onConn = func(bool) {}
	}
	return &Stream{
		url:     wsURL,
		token:   token,
		symbols: append([]string(nil), symbols...),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		retry: &backoff.Backoff{
			Min:    time.Second,
			Max:    30 * time.Second,
			Factor: 2,
			Jitter: true,
		},
		now:     time.Now,
		onTrade: onTrade,
		onConn:  onConn,
	}
}

type wsTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	T int64   `json:"t"`
}

type wsFrame struct {
	Type string    `json:"type"`
	Data []wsTrade `json:"data"`
}

// Run блокируется до отмены ctx.
func (s *Stream) Run(ctx context.Context) {
	logger.Info("[FEED] ▶️ WS stream: %d symbols", len(s.symbols))
	for {
		err := s.session(ctx)
		s.onConn(false)
		if ctx.Err() != nil {
			logger.Info("[FEED] ⏹ WS stream stopped")
			return
		}

		wait := s.retry.Duration()
		logger.Warn("[FEED] WS dropped: %v, reconnect in %s", err, wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *Stream) session(ctx context.Context) error {
	u, err := url.Parse(s.url)
	if err != nil {
		return errors.Wrap(err, "ws url")
	}
	q := u.Query()
	q.Set("token", s.token)
	u.RawQuery = q.Encode()

	conn, _, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	defer func() { _ = conn.Close() }()

	// ReadMessage не знает про ctx
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for _, sym := range s.symbols {
		msg, _ := sonic.Marshal(map[string]string{"type": "subscribe", "symbol": sym})
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return errors.Wrapf(err, "subscribe %s", sym)
		}
	}
	s.onConn(true)
	s.retry.Reset()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read")
		}

		var frame wsFrame
		if err := sonic.Unmarshal(msg, &frame); err != nil || frame.Type != "trade" {
			continue
		}
		for _, tr := range frame.Data {
			if tr.S == "" || tr.P <= 0 {
				continue
			}
			at := s.now()
			if tr.T > 0 {
				at = time.UnixMilli(tr.T)
			}
			s.onTrade(models.Quote{Symbol: tr.S, Price: tr.P, At: at})
		}
	}
}
