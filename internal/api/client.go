package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client talks to the matchmaking backend over REST.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zerolog.Logger
}

// New builds a REST client for the given base URL, e.g. http://localhost:5000.
func New(baseURL string, timeout time.Duration, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     logger,
	}
}

// Login validates credentials and returns the user's identity and hobby list.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, http.MethodPost, "/api/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return LoginResult{}, err
	}
	return out, nil
}

// Register creates an account. Verification must have succeeded beforehand.
func (c *Client) Register(ctx context.Context, email, password string, hobbies []string) error {
	return c.do(ctx, http.MethodPost, "/api/register", map[string]any{
		"email":    email,
		"password": password,
		"hobbies":  hobbies,
	}, nil)
}

// SendVerification asks the backend to mail a verification code.
func (c *Client) SendVerification(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/send-verification", map[string]string{
		"email": email,
	}, nil)
}

// VerifyCode checks the mailed verification code.
func (c *Client) VerifyCode(ctx context.Context, email, code string) error {
	return c.do(ctx, http.MethodPost, "/api/verify-code", map[string]string{
		"email": email,
		"code":  code,
	}, nil)
}

// RequestMatch enters the user into the matching pool. The same call doubles
// as the "waiting" re-poll: repeating it while pooled returns the current
// status.
func (c *Client) RequestMatch(ctx context.Context, userID string) (MatchResult, error) {
	var out MatchResult
	err := c.do(ctx, http.MethodPost, "/api/chat/request", map[string]string{
		"userId": userID,
	}, &out)
	if err != nil {
		return MatchResult{}, err
	}
	return out, nil
}

// CancelMatch withdraws a pending match request.
func (c *Client) CancelMatch(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/api/chat/cancel", map[string]string{
		"userId": userID,
	}, nil)
}

// CheckActive reports whether the user has a chat in progress server-side.
func (c *Client) CheckActive(ctx context.Context, userID string) (bool, error) {
	var out checkActiveResponse
	err := c.do(ctx, http.MethodGet, "/api/chat/check-active?userId="+url.QueryEscape(userID), nil, &out)
	if err != nil {
		return false, err
	}
	return out.HasActiveChat, nil
}

// GetRoom returns the user's active room id, or "" when there is none.
func (c *Client) GetRoom(ctx context.Context, userID string) (string, error) {
	var out roomResponse
	err := c.do(ctx, http.MethodGet, "/api/chat/get-room?userId="+url.QueryEscape(userID), nil, &out)
	if err != nil {
		return "", err
	}
	if out.RoomID == nil {
		return "", nil
	}
	return *out.RoomID, nil
}

// Messages fetches room messages newer than since (newest-first delivery).
// since == 0 fetches the full history.
func (c *Client) Messages(ctx context.Context, roomID string, since float64) ([]Message, error) {
	path := "/api/chat/messages/" + url.PathEscape(roomID)
	if since > 0 {
		path += "?since=" + strconv.FormatFloat(since, 'f', -1, 64)
	}
	var out messagesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SendMessage posts a chat message to the room's message store.
func (c *Client) SendMessage(ctx context.Context, roomID, sender, body string) error {
	return c.do(ctx, http.MethodPost, "/api/chat/send-message", map[string]string{
		"roomId":  roomID,
		"sender":  sender,
		"message": body,
	}, nil)
}

// EndChat terminates the chat for both participants.
func (c *Client) EndChat(ctx context.Context, roomID, userID string) error {
	return c.do(ctx, http.MethodPost, "/api/chat/end", map[string]string{
		"roomId": roomID,
		"userId": userID,
	}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		var detail detailResponse
		if json.Unmarshal(raw, &detail) == nil {
			apiErr.Detail = detail.Detail
		}
		c.log.Debug().Int("status", resp.StatusCode).Str("path", path).Str("detail", apiErr.Detail).Msg("backend refused request")
		return mapLogical(apiErr)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
