package gateway

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

	"github.com/rainergb/omni-chat-app-sub001/internal/model"
	"go.uber.org/zap"
)

// DefaultTimeout bounds every request when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	BaseURL string
	// WebhookBase is the prefix of the callback URLs registered on create.
	// Defaults to BaseURL.
	WebhookBase string
	Timeout     time.Duration
	// HTTPClient overrides the transport; its Timeout is replaced by Timeout.
	HTTPClient *http.Client
}

// Client talks to the remote instance service. It holds no state besides its
// configuration and is safe for concurrent use.
type Client struct {
	baseURL     string
	webhookBase string
	http        *http.Client
	logger      *zap.Logger
}

// New returns a Client for opts. logger may be nil.
func New(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := &http.Client{}
	if opts.HTTPClient != nil {
		cp := *opts.HTTPClient
		hc = &cp
	}
	hc.Timeout = timeout

	base := strings.TrimRight(opts.BaseURL, "/")
	hook := strings.TrimRight(opts.WebhookBase, "/")
	if hook == "" {
		hook = base
	}
	return &Client{
		baseURL:     base,
		webhookBase: hook,
		http:        hc,
		logger:      logger.Named("gateway"),
	}
}

// BaseURL returns the service root the client was configured with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListInstances fetches every instance known to the service. A response that is
// neither an array nor a single-array wrapper yields an empty list, not an error.
func (c *Client) ListInstances(ctx context.Context) ([]model.Instance, error) {
	var raw json.RawMessage
	if err := c.do(ctx, OpList, http.MethodGet, "/instancia", nil, &raw); err != nil {
		return nil, err
	}
	items, ok := NormalizeList(raw)
	if !ok {
		c.logger.Warn("unexpected instance list shape", zap.Int("bytes", len(raw)))
	}
	out := make([]model.Instance, 0, len(items))
	for _, item := range items {
		var ri remoteInstance
		if err := json.Unmarshal(item, &ri); err != nil {
			c.logger.Warn("skipping malformed instance", zap.Error(err))
			continue
		}
		inst := ri.toModel()
		if inst.ID == "" {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

// CreateInstance registers a new channel named canal. The webhook callbacks are
// derived from the configured base URL.
func (c *Client) CreateInstance(ctx context.Context, canal string, sendDelay int) (CreateResponse, error) {
	req := CreateRequest{
		Canal:               canal,
		TempoEnvio:          sendDelay,
		WebHookMensagem:     c.webhookBase + WebhookMessage,
		WebHookStatusChat:   c.webhookBase + WebhookStatus,
		WebHookConectado:    c.webhookBase + WebhookConnected,
		WebHookDesconectado: c.webhookBase + WebhookDisconnected,
	}
	var resp CreateResponse
	if err := c.do(ctx, OpCreate, http.MethodPost, "/instancia", req, &resp); err != nil {
		return CreateResponse{}, err
	}
	if !resp.Success || resp.ID == "" {
		return CreateResponse{}, &Error{Op: OpCreate, cause: fmt.Errorf("rejected: %s", resp.Message)}
	}
	return resp, nil
}

// UpdateInstance sends a partial update and returns the fields the server
// echoed back. Fields missing from the response are nil, never defaults.
func (c *Client) UpdateInstance(ctx context.Context, id string, patch model.InstancePatch) (model.InstancePatch, error) {
	var echo remoteEcho
	if err := c.do(ctx, OpUpdate, http.MethodPut, "/instancia/"+url.PathEscape(id), patchBody(patch), &echo); err != nil {
		return model.InstancePatch{}, err
	}
	if echo.Success != nil && !*echo.Success {
		return model.InstancePatch{}, &Error{Op: OpUpdate, cause: fmt.Errorf("rejected: %s", echo.Message)}
	}
	return echo.toPatch(), nil
}

// DeleteInstance removes the instance on the service.
func (c *Client) DeleteInstance(ctx context.Context, id string) error {
	return c.ack(ctx, OpDelete, http.MethodDelete, "/instancia/"+url.PathEscape(id))
}

// DisconnectInstance ends the channel session without removing the instance.
func (c *Client) DisconnectInstance(ctx context.Context, id string) error {
	return c.ack(ctx, OpDisconnect, http.MethodPatch, "/instancia/disconnect/"+url.PathEscape(id))
}

// ReloadInstance asks the service to restart the channel session.
func (c *Client) ReloadInstance(ctx context.Context, id string) error {
	return c.ack(ctx, OpReload, http.MethodPatch, "/instancia/reload/"+url.PathEscape(id))
}

// GetQRCode fetches the pairing code for id.
func (c *Client) GetQRCode(ctx context.Context, id string) (string, error) {
	var resp QRCodeResponse
	if err := c.do(ctx, OpQRCode, http.MethodGet, "/instancia/qrcode/"+url.PathEscape(id), nil, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.QRCode == "" {
		return "", &Error{Op: OpQRCode, cause: fmt.Errorf("rejected: %s", resp.Message)}
	}
	return resp.QRCode, nil
}

func (c *Client) ack(ctx context.Context, op, method, path string) error {
	var resp Ack
	if err := c.do(ctx, op, method, path, nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &Error{Op: op, cause: fmt.Errorf("rejected: %s", resp.Message)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, cause: fmt.Errorf("encode request: %w", err)}
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return &Error{Op: op, cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("op", op),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return &Error{Op: op, cause: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Error{
			Op:         op,
			StatusCode: resp.StatusCode,
			cause:      fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &Error{Op: op, StatusCode: resp.StatusCode, cause: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
