package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"faillog/internal/pkg/circuit"
	"faillog/internal/pkg/text"
)

const (
	defaultTelegramAPI = "https://api.telegram.org"
	// MaxTelegramText is the sendMessage text limit in characters.
	MaxTelegramText = 4096
)

// ErrTelegramCircuitOpen is returned while repeated send failures keep the channel paused.
var ErrTelegramCircuitOpen = errors.New("telegram: circuit open")

// Telegram 把故障记录推送到指定群/频道。
type Telegram struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Client   *http.Client
	// Backoff is the wait before retry i (1-based); defaults to i seconds.
	Backoff func(i int) time.Duration

	breaker *circuit.CircuitBreaker
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		BotToken: botToken,
		ChatID:   chatID,
		BaseURL:  defaultTelegramAPI,
		Client:   &http.Client{Timeout: 15 * time.Second},
		breaker:  circuit.NewCircuitBreaker("telegram", 5, 10*time.Minute),
	}
}

// SendText 发送文本消息（最多 3 次尝试）。
func (t *Telegram) SendText(ctx context.Context, msg string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return errors.New("telegram: bot_token and chat_id are required")
	}
	if t.breaker != nil && !t.breaker.Allow() {
		return ErrTelegramCircuitOpen
	}
	err := t.send(ctx, msg)
	if t.breaker != nil {
		t.breaker.Record(err)
	}
	return err
}

func (t *Telegram) send(ctx context.Context, msg string) error {
	base := strings.TrimRight(t.BaseURL, "/")
	if base == "" {
		base = defaultTelegramAPI
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, t.BotToken)

	body, err := json.Marshal(map[string]any{
		"chat_id":    t.ChatID,
		"text":       text.Truncate(msg, MaxTelegramText),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram: encode payload: %w", err)
	}

	var lastErr error
	for i := 0; i < 3; i++ {
		if i > 0 {
			if err := t.wait(ctx, i); err != nil {
				return err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("telegram: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.client().Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode/100 == 2 {
			return nil
		}
		lastErr = fmt.Errorf("telegram status=%d", resp.StatusCode)
	}
	return lastErr
}

func (t *Telegram) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}

func (t *Telegram) wait(ctx context.Context, attempt int) error {
	d := time.Duration(attempt) * time.Second
	if t.Backoff != nil {
		d = t.Backoff(attempt)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
