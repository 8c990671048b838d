// Package flowhunt is the HTTP client for the flow invocation service. The
// executor consumes it through the narrow Invoker interface so tests can
// substitute a fake service.
package flowhunt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/QualityUnit/flowbatch/pkg/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WireInputKey is the field name the invocation API expects for the user
// text. The task-side "input" key is renamed to this before transmission.
const WireInputKey = "human_input"

type Invoker interface {
	// Invoke starts a flow run and returns immediately with an invocation id
	// and an initial status. singleton selects the de-duplicating endpoint.
	Invoke(ctx context.Context, flow domain.FlowRef, input map[string]string, singleton bool) (*domain.InvocationResult, error)

	// PollStatus fetches the current status of a previously started invocation.
	PollStatus(ctx context.Context, flow domain.FlowRef, invocationID string) (*domain.InvocationResult, error)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Invoke(ctx context.Context, flow domain.FlowRef, input map[string]string, singleton bool) (*domain.InvocationResult, error) {
	endpoint := "invoke"
	if singleton {
		endpoint = "invoke_singleton"
	}
	path := fmt.Sprintf("/v2/flows/%s/%s", url.PathEscape(flow.FlowID), endpoint)

	ctx, span := otel.Tracer("flowbatch/flowhunt").Start(ctx, "flowhunt.invoke",
		trace.WithAttributes(
			attribute.String("flowbatch.flow_id", flow.FlowID),
			attribute.String("flowbatch.workspace_id", flow.WorkspaceID),
			attribute.Bool("flowbatch.singleton", singleton),
		),
	)
	defer span.End()

	res, err := c.do(ctx, http.MethodPost, path, flow.WorkspaceID, wirePayload(input))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("flowbatch.invocation_id", res.ID))
	return res, nil
}

func (c *Client) PollStatus(ctx context.Context, flow domain.FlowRef, invocationID string) (*domain.InvocationResult, error) {
	path := fmt.Sprintf("/v2/flows/%s/invocations/%s", url.PathEscape(flow.FlowID), url.PathEscape(invocationID))

	ctx, span := otel.Tracer("flowbatch/flowhunt").Start(ctx, "flowhunt.poll_status",
		trace.WithAttributes(
			attribute.String("flowbatch.flow_id", flow.FlowID),
			attribute.String("flowbatch.invocation_id", invocationID),
		),
	)
	defer span.End()

	res, err := c.do(ctx, http.MethodGet, path, flow.WorkspaceID, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("flowbatch.status", string(res.Status)))
	return res, nil
}

// wirePayload renames the internal input key to the API's expected field.
func wirePayload(input map[string]string) map[string]string {
	out := make(map[string]string, len(input))
	for k, v := range input {
		if k == domain.InputKey {
			k = WireInputKey
		}
		out[k] = v
	}
	return out
}

func (c *Client) do(ctx context.Context, method, path, workspaceID string, body any) (*domain.InvocationResult, error) {
	var buf *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewReader(b)
	} else {
		buf = bytes.NewReader(nil)
	}

	u := c.baseURL + path
	if workspaceID != "" {
		u += "?workspace_id=" + url.QueryEscape(workspaceID)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("flowhunt %s %s: status %d: %s", method, path, resp.StatusCode, excerpt(out))
	}

	var res domain.InvocationResult
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("flowhunt %s %s: decode response: %w", method, path, err)
	}
	res.Raw = out
	return &res, nil
}

func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
