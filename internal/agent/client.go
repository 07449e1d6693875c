package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/google"

	"github.com/student360/student360-backend/internal/config"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// TokenProvider supplies a bearer credential for one outbound call.
// Credentials may rotate, so implementations must not hand out tokens cached
// beyond a single call.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// GoogleTokenProvider resolves application-default credentials on every call.
type GoogleTokenProvider struct{}

// NewGoogleTokenProvider creates a token provider backed by application
// default credentials.
func NewGoogleTokenProvider() *GoogleTokenProvider {
	return &GoogleTokenProvider{}
}

// Token fetches a fresh access token.
func (p *GoogleTokenProvider) Token(ctx context.Context) (string, error) {
	ts, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
	if err != nil {
		return "", fmt.Errorf("failed to resolve credentials: %w", err)
	}
	tok, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("failed to fetch access token: %w", err)
	}
	return tok.AccessToken, nil
}

// RemoteSession is the agent platform's view of a conversation.
type RemoteSession struct {
	ID             string                 `json:"id"`
	UserID         string                 `json:"userId"`
	AppName        string                 `json:"appName"`
	LastUpdateTime float64                `json:"lastUpdateTime"`
	State          map[string]interface{} `json:"state"`
	Events         []json.RawMessage      `json:"events"`
}

// queryEnvelope is the platform's RPC-style request: invoke class method X
// with input Y.
type queryEnvelope struct {
	ClassMethod string                 `json:"class_method"`
	Input       map[string]interface{} `json:"input"`
}

type sessionResponse struct {
	Output RemoteSession `json:"output"`
}

type sessionsResponse struct {
	Output struct {
		Sessions []RemoteSession `json:"sessions"`
	} `json:"output"`
}

// EngineURL builds the reasoning engine base URL from configuration.
func EngineURL(cfg config.AgentConfig) string {
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/reasoningEngines/%s",
		cfg.Location, cfg.ProjectID, cfg.Location, cfg.ResourceID)
}

// Client is the sole component that speaks the agent platform's wire
// protocol.
type Client struct {
	http    *resty.Client
	baseURL string
	tokens  TokenProvider
	log     *logrus.Entry
}

// NewClient creates a remote session client against the given engine URL.
func NewClient(baseURL string, tokens TokenProvider, timeout time.Duration) *Client {
	httpc := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:    httpc,
		baseURL: baseURL,
		tokens:  tokens,
		log:     logrus.WithField("component", "agent-client"),
	}
}

// query issues one envelope POST to the platform's query endpoint.
func (c *Client) query(ctx context.Context, method string, input map[string]interface{}, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return &RemoteError{Op: method, Err: err}
	}

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(queryEnvelope{ClassMethod: method, Input: input})
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Post(c.baseURL + ":query")
	if err != nil {
		return &RemoteError{Op: method, Err: err}
	}
	if resp.IsError() {
		return &RemoteError{Op: method, StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	return nil
}

// CreateSession creates a remote session for the given owner.
func (c *Client) CreateSession(ctx context.Context, userID string) (*RemoteSession, error) {
	var out sessionResponse
	if err := c.query(ctx, "async_create_session", map[string]interface{}{"user_id": userID}, &out); err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"session_id": out.Output.ID,
	}).Info("remote session created")

	return &out.Output, nil
}

// ListSessions lists the owner's remote sessions.
func (c *Client) ListSessions(ctx context.Context, userID string) ([]RemoteSession, error) {
	var out sessionsResponse
	if err := c.query(ctx, "async_list_sessions", map[string]interface{}{"user_id": userID}, &out); err != nil {
		return nil, err
	}
	return out.Output.Sessions, nil
}

// GetSession fetches one remote session.
func (c *Client) GetSession(ctx context.Context, userID, sessionID string) (*RemoteSession, error) {
	var out sessionResponse
	input := map[string]interface{}{"user_id": userID, "session_id": sessionID}
	if err := c.query(ctx, "async_get_session", input, &out); err != nil {
		return nil, err
	}
	return &out.Output, nil
}

// DeleteSession deletes a remote session. Callers must not assume success
// without this returning nil.
func (c *Client) DeleteSession(ctx context.Context, userID, sessionID string) error {
	input := map[string]interface{}{"user_id": userID, "session_id": sessionID}
	return c.query(ctx, "async_delete_session", input, nil)
}

// StreamQuery sends one user message and consumes the platform's chunked
// event-stream response. Exactly one normalized event is emitted per call:
// the early-parsed terminal object if valid JSON shows up mid-stream, else
// the full accumulated buffer parsed at end of stream. Not restartable.
func (c *Client) StreamQuery(ctx context.Context, userID, sessionID, message string, onEvent func(Event)) error {
	const op = "async_stream_query"

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return &RemoteError{Op: op, Err: err}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Cache-Control", "no-cache").
		SetBody(queryEnvelope{
			ClassMethod: op,
			Input: map[string]interface{}{
				"user_id":    userID,
				"session_id": sessionID,
				"message":    message,
			},
		}).
		Post(c.baseURL + ":streamQuery?alt=sse")
	if err != nil {
		return &RemoteError{Op: op, Err: err}
	}

	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 300 {
		raw, _ := io.ReadAll(body)
		return &RemoteError{Op: op, StatusCode: resp.StatusCode(), Body: string(raw)}
	}

	dec := newStreamDecoder()
	emitted := false
	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if dec.Write(buf[:n]) {
				onEvent(NormalizeEvent(dec.Payload()))
				emitted = true
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return &RemoteError{Op: op, Err: readErr}
		}
	}

	if !emitted {
		payload, err := dec.Finish()
		if err != nil {
			return err
		}
		ev := NormalizeEvent(payload)
		if ev.Content == "" {
			c.log.WithFields(logrus.Fields{
				"user_id":    userID,
				"session_id": sessionID,
			}).Warn("no text content found in stream response")
		}
		onEvent(ev)
	}

	return nil
}
