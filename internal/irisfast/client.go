package irisfast

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Cheese-TicTacToe-bot/internal/keyboard"
	"github.com/valyala/fasthttp"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
	inlineKeyboard bool
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithInlineKeyboard sends layouts as structured keyboards instead of drawing them into the text.
func WithInlineKeyboard(on bool) Option {
	return func(c *Client) { c.inlineKeyboard = on }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) GetConfig(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/config", nil, &cfg, true); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Send posts a text reply and returns the id Iris assigned to it. Replies are not retried,
// so a timeout never produces a duplicate board.
func (c *Client) Send(ctx context.Context, chatID, text string, layout keyboard.Layout) (string, error) {
	req := ReplyRequest{Type: "text", Room: chatID, Data: c.compose(text, layout)}
	if c.inlineKeyboard && !layout.Empty() {
		req.Keyboard = &layout
	}
	var resp ReplyResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/reply", req, &resp, false); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// Edit replaces the text of a message sent earlier.
func (c *Client) Edit(ctx context.Context, chatID, messageID, text string, layout keyboard.Layout) error {
	if strings.TrimSpace(messageID) == "" {
		return errors.New("edit: empty message id")
	}
	req := EditRequest{Room: chatID, MessageID: messageID, Data: c.compose(text, layout)}
	if c.inlineKeyboard && !layout.Empty() {
		req.Keyboard = &layout
	}
	return c.doJSON(ctx, fasthttp.MethodPost, "/edit", req, nil, true)
}

func (c *Client) Delete(ctx context.Context, chatID, messageID string) error {
	if strings.TrimSpace(messageID) == "" {
		return nil
	}
	return c.doJSON(ctx, fasthttp.MethodPost, "/delete", DeleteRequest{Room: chatID, MessageID: messageID}, nil, true)
}

// SendImage posts a PNG as a base64 image reply.
func (c *Client) SendImage(ctx context.Context, chatID string, png []byte, caption string) error {
	req := ReplyRequest{Type: "image", Room: chatID, Data: base64.StdEncoding.EncodeToString(png)}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/reply", req, nil, false); err != nil {
		return err
	}
	if strings.TrimSpace(caption) == "" {
		return nil
	}
	_, err := c.Send(ctx, chatID, caption, keyboard.Layout{})
	return err
}

// compose draws the keyboard into the text for chats without inline buttons.
func (c *Client) compose(text string, layout keyboard.Layout) string {
	if c.inlineKeyboard || layout.Empty() {
		return text
	}
	grid := layout.Text()
	if grid == "" {
		return text
	}
	return text + "\n\n" + grid
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
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

	req.Header.Set("X-Request-ID", uuid.NewString())

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
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			body := string(resp.Body())
			err := fmt.Errorf("iris api error: status=%d body=%s", status, truncate(body, 512))
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
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

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
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
