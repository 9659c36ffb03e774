// Package chzzkapi contains a minimal client for the Chzzk VOD chat replay
// API: one paginated fetch per call, cursor-driven via playerMessageTime.
package chzzkapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

// RawMessage is one chat message as delivered by the feed. Extras is an
// opaque JSON string; its known fields are decoded lazily by the filter.
type RawMessage struct {
	MessageTypeCode   int    `json:"messageTypeCode"`
	MessageStatusType string `json:"messageStatusType"`
	Content           string `json:"content"`
	PlayerMessageTime int64  `json:"playerMessageTime"`
	UserIDHash        string `json:"userIdHash"`
	Extras            string `json:"extras"`
}

// ChatPage is one page of the replay feed. NextPlayerMessageTime is nil when
// the feed has no further pages.
type ChatPage struct {
	VideoChats            []RawMessage
	PreviousVideoChats    []RawMessage
	NextPlayerMessageTime *int64
}

// Done reports whether the page terminates pagination. The feed signals the
// end either by omitting nextPlayerMessageTime or by sending 0.
func (p *ChatPage) Done() bool {
	return p.NextPlayerMessageTime == nil || *p.NextPlayerMessageTime == 0
}

// Client fetches chat pages for VODs.
type Client struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
}

func (c *Client) httpc() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// FetchChats fetches one page of chat messages for a video at the given
// cursor. A response without a content object is an error; so is a non-2xx
// status. The caller owns retry policy.
func (c *Client) FetchChats(ctx context.Context, videoID, cursor int64) (*ChatPage, error) {
	url := fmt.Sprintf("%s/%d/chats", c.BaseURL, videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("playerMessageTime", strconv.FormatInt(cursor, 10))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.httpc().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("chat feed status %d: %s", resp.StatusCode, string(b))
	}

	var body struct {
		Content *struct {
			VideoChats            []RawMessage `json:"videoChats"`
			PreviousVideoChats    []RawMessage `json:"previousVideoChats"`
			NextPlayerMessageTime *int64       `json:"nextPlayerMessageTime"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode chat feed response: %w", err)
	}
	if body.Content == nil {
		return nil, fmt.Errorf("content missing in chat feed response for video %d", videoID)
	}
	return &ChatPage{
		VideoChats:            body.Content.VideoChats,
		PreviousVideoChats:    body.Content.PreviousVideoChats,
		NextPlayerMessageTime: body.Content.NextPlayerMessageTime,
	}, nil
}
