// Package livemea talks to the HTTP side of the LiveMEA service: the health
// and liveness endpoints polled before a session starts.
package livemea

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
)

// ErrOffline is returned when the service answers but reports no live feed.
var ErrOffline = errors.New("LiveMEA service is offline")

// Status is the service state reported by the health endpoints.
type Status struct {
	Check string
	Live  bool
	// DefaultMEA is the device the service streams by default, -1 if the
	// answer could not be read.
	DefaultMEA int
	Checked    time.Time
}

func (s Status) String() string {
	live := "Offline"
	if s.Live {
		live = "Live"
	}
	if s.DefaultMEA < 0 {
		return fmt.Sprintf("%s - %s", s.Check, live)
	}
	return fmt.Sprintf("%s - %s (default MEA %d)", s.Check, live, s.DefaultMEA)
}

// Client queries the health endpoints of a LiveMEA service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for baseURL whose requests time out after timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Status queries /check, /islive and /defaultmea. It returns the status
// together with ErrOffline when the service is reachable but not live.
func (c *Client) Status(ctx context.Context) (Status, error) {
	st := Status{DefaultMEA: -1}

	check, err := c.fetch(ctx, "/check")
	if err != nil {
		return st, err
	}
	st.Check = strings.TrimSpace(text(check))

	live, err := c.fetch(ctx, "/islive")
	if err != nil {
		return st, err
	}
	st.Live = truthy(live)

	def, err := c.fetch(ctx, "/defaultmea")
	if err != nil {
		return st, err
	}
	st.DefaultMEA = deviceID(def)
	st.Checked = time.Now()

	slog.Debug("LiveMEA status", "url", c.baseURL, "check", st.Check, "live", st.Live, "default_mea", st.DefaultMEA)
	if !st.Live {
		return st, ErrOffline
	}
	return st, nil
}

// fetch returns the decoded JSON body for JSON responses and the raw text
// otherwise.
func (c *Client) fetch(ctx context.Context, endpoint string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", endpoint, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", endpoint, resp.Status)
	}

	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt == "application/json" {
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", endpoint, err)
		}
		return v, nil
	}
	return string(body), nil
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "live":
			return true
		}
	}
	return false
}

// deviceID reads the device from the element before the last one of the
// answer. Text replies end in a terminator ("MEA2\n"), so that is the digit.
// A bare JSON number is the id itself.
func deviceID(v any) int {
	switch t := v.(type) {
	case float64:
		if t >= 0 && t == float64(int(t)) {
			return int(t)
		}
	case string:
		if len(t) >= 2 && t[len(t)-2] >= '0' && t[len(t)-2] <= '9' {
			return int(t[len(t)-2] - '0')
		}
	case []any:
		if len(t) >= 2 {
			return deviceID(t[len(t)-2])
		}
	}
	return -1
}
