package cryptocompare

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"tickerwatch/internal/application/port"
)

const DefaultWsURL = "wss://streamer.cryptocompare.com/v2"

var ErrNotConnected = errors.New("cryptocompare stream not connected")

const stableConnection = 30 * time.Second

// RetryConfig 断线重连配置；MaxRetries 为 0 时不重连
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Streamer 持有唯一的上游 WebSocket 连接
type Streamer struct {
	wsURL  string
	apiKey string
	retry  RetryConfig

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewStreamer(wsURL, apiKey string, retry RetryConfig) *Streamer {
	if strings.TrimSpace(wsURL) == "" {
		wsURL = DefaultWsURL
	}
	if retry.InitialDelay <= 0 {
		retry.InitialDelay = 500 * time.Millisecond
	}
	if retry.MaxDelay < retry.InitialDelay {
		retry.MaxDelay = retry.InitialDelay
	}
	return &Streamer{
		wsURL:  strings.TrimSpace(wsURL),
		apiKey: strings.TrimSpace(apiKey),
		retry:  retry,
	}
}

func (s *Streamer) Name() string { return "cryptocompare" }

func (s *Streamer) buildURL() (string, error) {
	u, err := url.Parse(s.wsURL)
	if err != nil {
		return "", err
	}
	if s.apiKey != "" {
		q := u.Query()
		q.Set("api_key", s.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Send 向上游写一帧 JSON
func (s *Streamer) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(v)
}

func (s *Streamer) setConn(c *websocket.Conn) {
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
}

// Run 连接上游并把事件交给 listener，阻塞直到 ctx 结束或重试耗尽
func (s *Streamer) Run(ctx context.Context, l port.StreamListener) error {
	wsURL, err := s.buildURL()
	if err != nil {
		return fmt.Errorf("invalid ws url: %w", err)
	}

	backoff := s.retry.InitialDelay
	attempt := 0

	for {
		log.Info().Str("feed", s.Name()).Str("url", s.wsURL).Msg("ws connecting")
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, wsURL, nil)
		cancel()

		if err == nil {
			s.setConn(conn)
			connectedAt := time.Now()
			log.Info().Str("feed", s.Name()).Msg("ws connected")
			l.OnUpstreamOpen()

			err = readLoop(ctx, conn, l.OnUpstreamMessage)

			s.setConn(nil)
			_ = conn.Close()
			// 只有稳定运行过一段时间的连接才重置重试计数
			if time.Since(connectedAt) >= stableConnection {
				attempt = 0
				backoff = s.retry.InitialDelay
			}
		} else {
			log.Error().Str("feed", s.Name()).Err(err).Msg("ws dial failed")
		}

		if ctx.Err() != nil {
			l.OnUpstreamClose(nil)
			return nil
		}
		l.OnUpstreamClose(err)

		if attempt >= s.retry.MaxRetries {
			return fmt.Errorf("cryptocompare stream closed: %w", err)
		}
		attempt++

		log.Warn().
			Str("feed", s.Name()).
			Int("attempt", attempt).
			Int64("delay_ms", backoff.Milliseconds()).
			Msg("ws disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = minDur(backoff*2, s.retry.MaxDelay)
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(25 * time.Second)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			onMsg(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

var _ port.Upstream = (*Streamer)(nil)
