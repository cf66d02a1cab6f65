// Package client is a typed client for the verdict HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Harshitk-cp/verdict/internal/buildconfig"
	"github.com/Harshitk-cp/verdict/internal/domain"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const defaultTimeout = 60 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type OpenCaseRequest struct {
	EvidenceA string `json:"evidence_a"`
	EvidenceB string `json:"evidence_b"`
	Persona   string `json:"persona,omitempty"`
}

type OpenCaseResponse struct {
	CaseID    uuid.UUID     `json:"case_id"`
	Verdict   string        `json:"verdict"`
	Reasoning string        `json:"reasoning"`
	Winner    domain.Winner `json:"winner"`
	Persona   string        `json:"persona"`
	CreatedAt time.Time     `json:"created_at"`
}

type TurnResponse struct {
	TurnID         uuid.UUID   `json:"turn_id"`
	Response       string      `json:"response"`
	Side           domain.Side `json:"side"`
	Sequence       int         `json:"sequence"`
	RemainingTurns int         `json:"remaining_turns"`
}

type Case struct {
	CaseID         uuid.UUID         `json:"case_id"`
	Persona        string            `json:"persona"`
	Evidence       []domain.Evidence `json:"evidence"`
	Verdict        string            `json:"verdict"`
	Reasoning      string            `json:"reasoning"`
	Winner         domain.Winner     `json:"winner"`
	State          domain.CaseState  `json:"state"`
	RemainingTurns int               `json:"remaining_turns"`
	Turns          []domain.Turn     `json:"turns"`
	CreatedAt      time.Time         `json:"created_at"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status       int    `json:"-"`
	Message      string `json:"error"`
	Code         string `json:"code"`
	Kind         string `json:"kind,omitempty"`
	TurnAccepted bool   `json:"turn_accepted,omitempty"`
	Sequence     int    `json:"sequence,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("verdict api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("verdict api: %s (%d): %s", e.Code, e.Status, e.Message)
}

func (c *Client) OpenCase(ctx context.Context, req OpenCaseRequest) (*OpenCaseResponse, error) {
	var out OpenCaseResponse
	if err := c.do(ctx, http.MethodPost, "/v1/cases", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SubmitTurn(ctx context.Context, caseID uuid.UUID, side domain.Side, content string) (*TurnResponse, error) {
	body := map[string]string{"side": string(side), "content": content}
	var out TurnResponse
	if err := c.do(ctx, http.MethodPost, "/v1/cases/"+caseID.String()+"/turns", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetCase(ctx context.Context, caseID uuid.UUID) (*Case, error) {
	var out Case
	if err := c.do(ctx, http.MethodGet, "/v1/cases/"+caseID.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Version(ctx context.Context) (*buildconfig.Info, error) {
	var out buildconfig.Info
	if err := c.do(ctx, http.MethodGet, "/version", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Watch streams a case's events to fn until ctx ends, the server closes the
// stream, or fn returns an error.
func (c *Client) Watch(ctx context.Context, caseID uuid.UUID, fn func(domain.CaseEvent) error) error {
	url := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/v1/cases/" + caseID.String() + "/stream"
	conn, resp, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Message: "stream rejected"}
		}
		return fmt.Errorf("dial stream: %w", err)
	}
	defer func() { _ = conn.CloseNow() }()

	for {
		var evt domain.CaseEvent
		if err := wsjson.Read(ctx, conn, &evt); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}
		if err := fn(evt); err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "done")
			return err
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
