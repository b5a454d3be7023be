package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultWebBaseURL     = "https://www.tiktok.com"
	DefaultWebcastBaseURL = "https://webcast.tiktok.com"

	chunkSize = 4096
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// qualityOrder lists the flv pull qualities from best to worst.
var qualityOrder = []string{"FULL_HD1", "HD1", "SD2", "SD1"}

// Options configures a WebcastClient
type Options struct {
	Cookies map[string]string
	// Proxy accepts http://, https:// and socks5:// URLs.
	Proxy string
	// Timeout bounds API calls. Chunk downloads are only bounded by ctx.
	Timeout time.Duration

	WebBaseURL     string
	WebcastBaseURL string
}

// WebcastClient talks to the webcast HTTP API.
type WebcastClient struct {
	api        *http.Client
	stream     *http.Client
	cookies    map[string]string
	webBase    string
	webcastURL string
}

// NewWebcastClient builds a client from opts.
func NewWebcastClient(opts Options) (*WebcastClient, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", opts.Proxy, err)
		}
		switch proxyURL.Scheme {
		case "http", "https", "socks5":
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", proxyURL.Scheme)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &WebcastClient{
		api:        &http.Client{Transport: transport, Timeout: timeout},
		stream:     &http.Client{Transport: transport},
		cookies:    opts.Cookies,
		webBase:    strings.TrimRight(opts.WebBaseURL, "/"),
		webcastURL: strings.TrimRight(opts.WebcastBaseURL, "/"),
	}
	if c.webBase == "" {
		c.webBase = DefaultWebBaseURL
	}
	if c.webcastURL == "" {
		c.webcastURL = DefaultWebcastBaseURL
	}
	return c, nil
}

func (c *WebcastClient) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	for name, value := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return req, nil
}

// getJSON performs a GET against the API and decodes the body into out.
func (c *WebcastClient) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := c.newRequest(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.api.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %s", ErrUnavailable, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrUnavailable, err)
	}
	return nil
}

type userRoomResponse struct {
	StatusCode int `json:"statusCode"`
	Data       struct {
		User struct {
			RoomID string `json:"roomId"`
		} `json:"user"`
	} `json:"data"`
}

// RoomID implements Source
func (c *WebcastClient) RoomID(ctx context.Context, username string) (string, error) {
	q := url.Values{}
	q.Set("aid", "1988")
	q.Set("sourceType", "54")
	q.Set("uniqueId", username)

	var resp userRoomResponse
	if err := c.getJSON(ctx, c.webBase+"/api-live/user/room/?"+q.Encode(), &resp); err != nil {
		return "", fmt.Errorf("failed to resolve room of @%s: %w", username, err)
	}
	if resp.Data.User.RoomID == "" {
		return "", fmt.Errorf("no room for @%s: %w", username, ErrNotFound)
	}
	return resp.Data.User.RoomID, nil
}

type roomInfoResponse struct {
	Data struct {
		Status int `json:"status"`
		Owner  struct {
			DisplayID string `json:"display_id"`
		} `json:"owner"`
		StreamURL struct {
			FlvPullURL  map[string]string `json:"flv_pull_url"`
			RtmpPullURL string            `json:"rtmp_pull_url"`
		} `json:"stream_url"`
	} `json:"data"`
}

func (c *WebcastClient) roomInfo(ctx context.Context, roomID string) (*roomInfoResponse, error) {
	q := url.Values{}
	q.Set("aid", "1988")
	q.Set("room_id", roomID)

	var resp roomInfoResponse
	if err := c.getJSON(ctx, c.webcastURL+"/webcast/room/info/?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch room %s: %w", roomID, err)
	}
	return &resp, nil
}

// Username implements Source
func (c *WebcastClient) Username(ctx context.Context, roomID string) (string, error) {
	info, err := c.roomInfo(ctx, roomID)
	if err != nil {
		return "", err
	}
	if info.Data.Owner.DisplayID == "" {
		return "", fmt.Errorf("room %s has no owner: %w", roomID, ErrNotFound)
	}
	return info.Data.Owner.DisplayID, nil
}

type checkAliveResponse struct {
	Data []struct {
		Alive  bool   `json:"alive"`
		RoomID string `json:"room_id_str"`
	} `json:"data"`
}

// IsLive implements Source
func (c *WebcastClient) IsLive(ctx context.Context, roomID string) (bool, error) {
	q := url.Values{}
	q.Set("aid", "1988")
	q.Set("region", "CH")
	q.Set("room_ids", roomID)
	q.Set("user_is_login", "true")

	var resp checkAliveResponse
	if err := c.getJSON(ctx, c.webcastURL+"/webcast/room/check_alive/?"+q.Encode(), &resp); err != nil {
		return false, fmt.Errorf("failed to check room %s: %w", roomID, err)
	}
	if len(resp.Data) == 0 {
		return false, nil
	}
	return resp.Data[0].Alive, nil
}

// LiveURL implements Source
func (c *WebcastClient) LiveURL(ctx context.Context, roomID string) (string, error) {
	info, err := c.roomInfo(ctx, roomID)
	if err != nil {
		return "", err
	}

	for _, quality := range qualityOrder {
		if u := info.Data.StreamURL.FlvPullURL[quality]; u != "" {
			slog.Debug("Selected stream quality", "room_id", roomID, "quality", quality)
			return u, nil
		}
	}
	return info.Data.StreamURL.RtmpPullURL, nil
}

// Chunks implements Source
func (c *WebcastClient) Chunks(ctx context.Context, streamURL string) (ChunkStream, error) {
	req, err := c.newRequest(ctx, streamURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: stream returned %s", ErrUnavailable, resp.Status)
	}

	return NewReaderStream(resp.Body, chunkSize), nil
}

// ReaderStream adapts an io.ReadCloser to a ChunkStream.
type ReaderStream struct {
	r    io.ReadCloser
	size int
}

// NewReaderStream returns chunks of at most size bytes read from r.
func NewReaderStream(r io.ReadCloser, size int) *ReaderStream {
	if size <= 0 {
		size = chunkSize
	}
	return &ReaderStream{r: r, size: size}
}

// Next implements ChunkStream
func (s *ReaderStream) Next() ([]byte, error) {
	buf := make([]byte, s.size)
	n, err := s.r.Read(buf)
	if n > 0 {
		// A trailing io.EOF is reported on the following call.
		return buf[:n], nil
	}
	if err == nil {
		return nil, nil
	}
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Close implements ChunkStream
func (s *ReaderStream) Close() error {
	return s.r.Close()
}
