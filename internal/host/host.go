// Package host connects the monitor to the game server administration tool.
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"faillog/internal/logger"
)

const (
	sendPrefix   = "procon.protected.send"
	notifyPrefix = "procon.protected.notification.write"
)

// Host is the outbound side of the administration tool.
type Host interface {
	// SendCommand forwards words to the game server, e.g. ("admin.listPlayers", "all").
	SendCommand(ctx context.Context, words ...string) error
	// Notify shows a notification in the tool's UI.
	Notify(ctx context.Context, title, message string) error
}

type commandPayload struct {
	Command []string `json:"command"`
}

// HTTPHost posts commands as JSON to the tool's command endpoint.
type HTTPHost struct {
	endpoint   *url.URL
	httpClient *http.Client
}

func NewHTTPHost(commandURL string, timeout time.Duration) (*HTTPHost, error) {
	raw := strings.TrimSpace(commandURL)
	if raw == "" {
		return nil, errors.New("host.command_url 不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("解析 host.command_url 失败: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPHost{endpoint: parsed, httpClient: &http.Client{Timeout: timeout}}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (h *HTTPHost) SetHTTPClient(client *http.Client) {
	h.httpClient = client
}

func (h *HTTPHost) SendCommand(ctx context.Context, words ...string) error {
	if len(words) == 0 {
		return errors.New("host: empty command")
	}
	return h.execute(ctx, append([]string{sendPrefix}, words...))
}

func (h *HTTPHost) Notify(ctx context.Context, title, message string) error {
	return h.execute(ctx, []string{notifyPrefix, title, message})
}

func (h *HTTPHost) execute(ctx context.Context, command []string) error {
	buf, err := json.Marshal(commandPayload{Command: command})
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint.String(), bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("host command %s: %w", strings.Join(command, " "), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("host command %s: %s %s", strings.Join(command, " "), resp.Status, strings.TrimSpace(string(data)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	logger.Tracef(8, "[host] sent %s", strings.Join(command, " "))
	return nil
}

// LogHost only logs commands; used when no command endpoint is configured.
type LogHost struct{}

func (LogHost) SendCommand(_ context.Context, words ...string) error {
	logger.Infof("[host] command (no endpoint): %s", strings.Join(words, " "))
	return nil
}

func (LogHost) Notify(_ context.Context, title, message string) error {
	logger.Infof("[host] notification (no endpoint): %s | %s", title, message)
	return nil
}
