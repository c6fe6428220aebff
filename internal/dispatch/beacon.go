package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"faillog/internal/logger"
	"faillog/internal/pkg/circuit"
)

const (
	beaconKey        = "HhcF93olvLgHh9UTYlqs"
	beaconUserAgent  = "Mozilla/5.0 (compatible; Procon 1; FailLog)"
	beaconAckPhrase  = "Thank you for your Blaze Report!"
	beaconBodyLimit  = 64 << 10
	defaultBeaconTTL = 30 * time.Second
)

// ErrBeaconRejected means the endpoint answered without the acknowledgement phrase.
var ErrBeaconRejected = errors.New("beacon: response missing acknowledgement")

// ErrCircuitOpen is returned when a delivery channel is short-circuited.
var ErrCircuitOpen = errors.New("dispatch: circuit open")

// Beacon 把 BLAZE 事件上报到公共统计端点。
type Beacon struct {
	endpoint string
	client   *http.Client
	breaker  *circuit.CircuitBreaker
}

func NewBeacon(endpoint string, client *http.Client) *Beacon {
	if client == nil {
		client = &http.Client{Timeout: defaultBeaconTTL}
	}
	return &Beacon{
		endpoint: endpoint,
		client:   client,
		breaker:  circuit.NewCircuitBreaker("beacon", 3, 5*time.Minute),
	}
}

// URL renders the report query for r. Values are stripped of query delimiters, then query-escaped.
func (b *Beacon) URL(r Record, pluginVersion string) string {
	s := r.Server()
	region := r.RegionCountry
	if s.ServerRegion != "" {
		region += "/" + s.ServerRegion
	}
	pairs := []struct{ k, v string }{
		{"key", beaconKey},
		{"ver", EscapeRequestString(pluginVersion)},
		{"gsp", EscapeRequestString(s.RankedServerProvider)},
		{"owner", EscapeRequestString(s.ServerOwnerOrCommunity)},
		{"contactinfo", EscapeRequestString(s.ContactInfo)},
		{"region", EscapeRequestString(region)},
		{"game", EscapeRequestString(s.GameServerType)},
		{"servername", EscapeRequestString(r.ServerName)},
		{"serverhost", EscapeRequestString(r.Host)},
		{"serverport", EscapeRequestString(r.Port)},
		{"map", EscapeRequestString(r.Map)},
		{"gamemode", EscapeRequestString(r.Mode)},
		{"players", EscapeRequestString(r.Players)},
		{"uptime", strconv.Itoa(r.Event.UptimeSeconds)},
		{"additionalinfo", EscapeRequestString(s.AdditionalInformation)},
	}
	var sb strings.Builder
	sb.WriteString(b.endpoint)
	for i, p := range pairs {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(p.k)
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.v))
	}
	return sb.String()
}

// Send issues the GET and checks the acknowledgement.
func (b *Beacon) Send(ctx context.Context, target string) error {
	if !b.breaker.Allow() {
		return fmt.Errorf("beacon: %w", ErrCircuitOpen)
	}
	err := b.send(ctx, target)
	// 端点返回非确认文本属于软失败，不计入熔断。
	if errors.Is(err, ErrBeaconRejected) {
		b.breaker.RecordSuccess()
	} else {
		b.breaker.Record(err)
	}
	return err
}

func (b *Beacon) send(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("beacon: build request: %w", err)
	}
	req.Header.Set("User-Agent", beaconUserAgent)
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("beacon: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, beaconBodyLimit))
		return fmt.Errorf("beacon: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, beaconBodyLimit))
	if err != nil {
		return fmt.Errorf("beacon: read response: %w", err)
	}
	if !strings.Contains(string(body), beaconAckPhrase) {
		return ErrBeaconRejected
	}
	logger.Tracef(3, "[dispatch] BlazeReport sent successfully!")
	return nil
}
