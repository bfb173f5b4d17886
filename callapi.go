package orchestrator

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"

	"github.com/bt-bridge/meeting-agent/shared"
	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"
)

// CallAPI is the HTTP implementation of CallTransport against a
// Stream-style video REST API. Webhook deliveries are authenticated with an
// HMAC-SHA256 hex digest of the raw body keyed by the API secret.
type CallAPI struct {
	logger    shared.LoggerAdapter
	baseURL   *url.URL
	apiKey    string
	apiSecret []byte
}

var _ CallTransport = (*CallAPI)(nil)

func NewCallAPI(logger shared.LoggerAdapter, baseURL, apiKey, apiSecret string) (*CallAPI, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("call API key and secret are required")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing call API base URL: %w", err)
	}
	return &CallAPI{
		logger:    logger,
		baseURL:   base,
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
	}, nil
}

func (c *CallAPI) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, c.apiSecret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *CallAPI) GetOrCreateCall(ctx context.Context, kind, id string) (Call, error) {
	call := Call{Kind: kind, ID: id}
	body := map[string]any{"data": map[string]any{"custom": map[string]any{"meetingId": id}}}
	if err := c.do(ctx, fasthttp.MethodPost, c.callPath(call, ""), body, nil); err != nil {
		return Call{}, fmt.Errorf("get-or-create call %s: %w", call.CID(), err)
	}
	return call, nil
}

func (c *CallAPI) QueryMembers(ctx context.Context, call Call) ([]CallMember, error) {
	var resp struct {
		Members []struct {
			UserID string `json:"user_id"`
			Role   string `json:"role"`
		} `json:"members"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, c.callPath(call, "members"), nil, &resp); err != nil {
		return nil, fmt.Errorf("querying members of %s: %w", call.CID(), err)
	}
	members := make([]CallMember, 0, len(resp.Members))
	for _, m := range resp.Members {
		members = append(members, CallMember{UserID: m.UserID, Role: m.Role})
	}
	return members, nil
}

func (c *CallAPI) AddMember(ctx context.Context, call Call, userID, role string) error {
	body := map[string]any{
		"update_members": []map[string]any{{"user_id": userID, "role": role}},
	}
	if err := c.do(ctx, fasthttp.MethodPost, c.callPath(call, "members"), body, nil); err != nil {
		return fmt.Errorf("adding member %s to %s: %w", userID, call.CID(), err)
	}
	return nil
}

func (c *CallAPI) SendCustomEvent(ctx context.Context, call Call, eventType, userID string, payload map[string]any) error {
	body := map[string]any{
		"type":   eventType,
		"user":   map[string]any{"id": userID},
		"custom": payload,
	}
	if err := c.do(ctx, fasthttp.MethodPost, c.callPath(call, "event"), body, nil); err != nil {
		return fmt.Errorf("sending custom event to %s: %w", call.CID(), err)
	}
	return nil
}

func (c *CallAPI) EndCall(ctx context.Context, call Call) error {
	if err := c.do(ctx, fasthttp.MethodPost, c.callPath(call, "mark_ended"), nil, nil); err != nil {
		return fmt.Errorf("ending call %s: %w", call.CID(), err)
	}
	return nil
}

func (c *CallAPI) callPath(call Call, suffix string) string {
	endpoint := c.baseURL.JoinPath("video", "call", call.Kind, call.ID)
	if suffix != "" {
		endpoint = endpoint.JoinPath(suffix)
	}
	return endpoint.String()
}

func (c *CallAPI) do(ctx context.Context, method, uri string, body any, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", c.apiKey)
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(data)
	}

	errC := make(chan error, 1)
	go func() {
		errC <- fasthttp.Do(req, resp)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errC:
		if err != nil {
			return fmt.Errorf("performing HTTP request: %w", err)
		}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), resp.Body())
	}
	if out != nil {
		if err := sonic.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("unmarshaling response body: %w", err)
		}
	}
	return nil
}
