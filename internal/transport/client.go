// Package transport is the only network-facing part of campaignctl. It talks
// to the remote messaging API and folds every failure into *Error.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/campaignctl/internal/campaign"
	"github.com/foxzi/campaignctl/internal/credentials"
	"github.com/foxzi/campaignctl/internal/metrics"
)

// maxBodySize bounds response bodies read from the remote API
const maxBodySize = 16 << 20

// Client is the remote campaign API client
type Client struct {
	baseURL    string
	creds      credentials.Provider
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new campaign API client
func NewClient(baseURL string, creds credentials.Provider, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "transport"),
	}
}

// ControlRequest is a fully built control command. It captures the token and
// the delay payload at build time, so later local state changes cannot leak
// into the request.
type ControlRequest struct {
	CampaignID string
	Action     campaign.Action
	Delay      *campaign.DelayRange
	RequestID  string

	token string
}

// NewControlRequest builds a control command. Only resume carries the delay.
// A missing credential fails with KindUnauthenticated and sends nothing.
func (c *Client) NewControlRequest(ctx context.Context, campaignID string, action campaign.Action, delay campaign.DelayRange) (*ControlRequest, error) {
	op := "control " + string(action)

	token, err := c.token(ctx, op)
	if err != nil {
		return nil, err
	}

	req := &ControlRequest{
		CampaignID: campaignID,
		Action:     action,
		RequestID:  uuid.New().String(),
		token:      token,
	}
	if action == campaign.ActionResume {
		d := delay
		req.Delay = &d
	}
	return req, nil
}

// Control sends a prepared control command. A nil error means the server
// acknowledged the command with status:true.
func (c *Client) Control(ctx context.Context, req *ControlRequest) error {
	op := "control " + string(req.Action)
	path := "/campaigns/" + url.PathEscape(req.CampaignID) + "/" + string(req.Action)

	var body any
	if req.Delay != nil {
		body = controlBody{Delay: req.Delay}
	}

	var env envelope
	if err := c.request(ctx, op, http.MethodPost, path, req.token, req.RequestID, body, &env); err != nil {
		return err
	}
	if !env.Status {
		return &Error{Kind: KindRejected, Op: op, Message: messageText(env.Message)}
	}

	c.logger.Debug("control acknowledged",
		"campaign_id", req.CampaignID,
		"action", req.Action,
		"request_id", req.RequestID,
	)
	return nil
}

// FetchDetail fetches the server snapshot of a campaign
func (c *Client) FetchDetail(ctx context.Context, campaignID string) (*Detail, error) {
	const op = "fetch detail"

	token, err := c.token(ctx, op)
	if err != nil {
		return nil, err
	}

	var env envelope
	path := "/campaigns/" + url.PathEscape(campaignID)
	if err := c.request(ctx, op, http.MethodGet, path, token, uuid.New().String(), nil, &env); err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, &Error{Kind: KindRejected, Op: op, Message: messageText(env.Message)}
	}

	var msg detailMessage
	if err := json.Unmarshal(env.Message, &msg); err != nil {
		return nil, &Error{Kind: KindTransport, Op: op, Message: "malformed detail", Err: err}
	}

	state, err := campaign.ParseState(msg.Status)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: op, Message: "malformed detail", Err: err}
	}
	if err := msg.Counters.Validate(); err != nil {
		return nil, &Error{Kind: KindTransport, Op: op, Message: "malformed detail", Err: err}
	}

	return &Detail{
		State:      state,
		Recipients: msg.Recipients,
		Counters:   msg.Counters,
		Delay:      msg.Delay,
	}, nil
}

func (c *Client) token(ctx context.Context, op string) (string, error) {
	if c.creds == nil {
		return "", &Error{Kind: KindUnauthenticated, Op: op, Err: credentials.ErrNoCredential}
	}
	token, err := c.creds.Token(ctx)
	if err != nil {
		return "", &Error{Kind: KindUnauthenticated, Op: op, Err: err}
	}
	return token, nil
}

// request performs an HTTP request to the remote API
func (c *Client) request(ctx context.Context, op, method, path, token, requestID string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindTransport, Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		metrics.IncUnauthorized()
		return &Error{Kind: KindUnauthorized, Op: op, Status: resp.StatusCode, Message: readError(resp.Body)}
	}
	if resp.StatusCode >= 300 {
		return &Error{Kind: KindTransport, Op: op, Status: resp.StatusCode, Message: readError(resp.Body)}
	}

	if result != nil {
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(result); err != nil {
			return &Error{Kind: KindTransport, Op: op, Status: resp.StatusCode, Message: "malformed response", Err: fmt.Errorf("decode response: %w", err)}
		}
	}

	return nil
}

func readError(r io.Reader) string {
	var errResp ErrorResponse
	if err := json.NewDecoder(io.LimitReader(r, maxBodySize)).Decode(&errResp); err != nil || errResp.Error == "" {
		return ""
	}
	return errResp.Error
}

