package room

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

	"github.com/shodhai/speaking-agent/backend/internal/config"
)

// ErrDisabled is returned when no provider API key is configured. Callers
// may still relay into rooms created elsewhere by passing a room URL.
var ErrDisabled = errors.New("room service not configured")

// Room is the provider-side call room a session relays into.
type Room struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Client talks to the external room provider's REST API.
type Client struct {
	cfg  config.RoomConfig
	http *http.Client
}

// NewClient builds a provider client from configuration.
func NewClient(cfg config.RoomConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether provider credentials are configured.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.Enabled
}

// CreateOrGetRoom creates the named room, treating "already exists" as
// success. With an empty name the provider assigns one.
func (c *Client) CreateOrGetRoom(ctx context.Context, name string) (Room, error) {
	if !c.Enabled() {
		return Room{}, ErrDisabled
	}

	payload := map[string]any{
		"properties": map[string]any{
			"enable_chat":      true,
			"enable_knocking":  false,
			"start_video_off":  false,
			"start_audio_off":  false,
			"max_participants": 10,
		},
	}
	if name != "" {
		payload["name"] = name
	}

	var created Room
	status, err := c.post(ctx, "/rooms", payload, &created)
	if err != nil {
		return Room{}, err
	}

	switch {
	case status == http.StatusConflict:
		// Room already exists; derive the URL from the domain.
		return Room{Name: name, URL: fmt.Sprintf("https://%s/%s", c.cfg.Domain, name)}, nil
	case status >= 300:
		return Room{}, fmt.Errorf("room creation failed: status %d", status)
	}

	if created.URL == "" && created.Name != "" {
		created.URL = fmt.Sprintf("https://%s/%s", c.cfg.Domain, created.Name)
	}
	return created, nil
}

// IssueToken requests a meeting token allowing userName to join roomName.
func (c *Client) IssueToken(ctx context.Context, roomName, userName string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	payload := map[string]any{
		"properties": map[string]any{
			"room_name":       roomName,
			"user_name":       userName,
			"is_owner":        false,
			"start_audio_off": false,
			"start_video_off": true,
		},
	}

	var resp struct {
		Token string `json:"token"`
	}
	status, err := c.post(ctx, "/meeting-tokens", payload, &resp)
	if err != nil {
		return "", err
	}
	if status >= 300 {
		return "", fmt.Errorf("token request failed: status %d", status)
	}
	if resp.Token == "" {
		return "", errors.New("provider returned an empty token")
	}
	return resp.Token, nil
}

// RoomNameFromURL extracts the trailing room name from a room URL.
func RoomNameFromURL(roomURL string) string {
	trimmed := strings.TrimRight(roomURL, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("room provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 && out != nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, fmt.Errorf("read response: %w", err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}
