package screen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// AgentClient talks to a small HTTP agent running on the machine that shows
// the game:
//
//	GET  /info             -> AgentInfo
//	GET  /pixel?x=&y=      -> RGB
//	GET  /pointer          -> Point
//	POST /pointer {x,y}
//	POST /click   {button}
type AgentClient struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

type AgentInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

type clickRequest struct {
	Button string `json:"button"`
}

var _ Screen = (*AgentClient)(nil)

type Option func(*AgentClient)

func WithTimeout(d time.Duration) Option {
	return func(c *AgentClient) { c.defaultTimeout = d }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *AgentClient) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *AgentClient) { c.retryMax = max }
}

// WithHTTPClient replaces the underlying client (tests dial in-memory listeners).
func WithHTTPClient(hc *fasthttp.Client) Option {
	return func(c *AgentClient) { c.http = hc }
}

func NewAgentClient(baseURL string, opts ...Option) *AgentClient {
	c := &AgentClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 2 * time.Second, WriteTimeout: 2 * time.Second, MaxConnsPerHost: 8},
		defaultTimeout: 2 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *AgentClient) Info(ctx context.Context) (*AgentInfo, error) {
	var info AgentInfo
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/info", nil, &info, true); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *AgentClient) SampleColor(ctx context.Context, p Point) (RGB, error) {
	var out RGB
	path := "/pixel?x=" + strconv.Itoa(p.X) + "&y=" + strconv.Itoa(p.Y)
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &out, true); err != nil {
		return RGB{}, err
	}
	return out, nil
}

func (c *AgentClient) PointerPosition(ctx context.Context) (Point, error) {
	var out Point
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/pointer", nil, &out, true); err != nil {
		return Point{}, err
	}
	return out, nil
}

// MovePointer는 멱등이라 재시도 허용, Click은 중복 클릭 위험이 있어 재시도 안 함.
func (c *AgentClient) MovePointer(ctx context.Context, p Point) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/pointer", p, nil, true)
}

func (c *AgentClient) Click(ctx context.Context) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/click", clickRequest{Button: "left"}, nil, false)
}

func (c *AgentClient) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")

	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("agent request %s %s: %w", method, path, err)
			}
			lastErr = err
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			err := fmt.Errorf("screen agent error: status=%d body=%s", status, truncate(string(resp.Body()), 256))
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *AgentClient) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// 50ms, 100ms ... 픽셀 샘플 지연이 곧 관측 지연이라 짧게.
func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 5 {
		attempt = 5
	}
	return time.Duration(1<<uint(attempt-1)) * 50 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
