// Package gateway provides an HTTP client for the WAHA WhatsApp gateway.
//
// The gateway terminates the WhatsApp connection; this client only speaks
// its REST API: sending messages, presence signals, and reading the
// contact and group directory.
package gateway

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

	"github.com/donnabot/donna/internal/log"
)

// Client is a WAHA API client bound to a single session.
type Client struct {
	baseURL    string
	apiKey     string
	session    string
	httpClient *http.Client
	logger     log.Logger
}

// New creates a gateway client. baseURL and session are required; apiKey may
// be empty when the gateway runs without authentication.
func New(baseURL, apiKey, session string, logger log.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("gateway base URL is required")
	}
	if session == "" {
		return nil, fmt.Errorf("gateway session name is required")
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		session:    session,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

// Session returns the session name this client is bound to.
func (c *Client) Session() string { return c.session }

// SendText sends a text message to chatID. replyTo optionally quotes an
// earlier message by ID.
func (c *Client) SendText(ctx context.Context, chatID, text, replyTo string) error {
	req := sendTextRequest{
		Session: c.session,
		ChatID:  chatID,
		Text:    text,
		ReplyTo: replyTo,
	}
	if err := c.makeRequest(ctx, http.MethodPost, "/api/sendText", req, nil); err != nil {
		return fmt.Errorf("send text failed: %w", err)
	}
	return nil
}

// SendSeen marks the conversation as read.
func (c *Client) SendSeen(ctx context.Context, chatID string) error {
	req := chatRequest{Session: c.session, ChatID: chatID}
	if err := c.makeRequest(ctx, http.MethodPost, "/api/sendSeen", req, nil); err != nil {
		return fmt.Errorf("send seen failed: %w", err)
	}
	return nil
}

// StartTyping shows the typing indicator in chatID.
func (c *Client) StartTyping(ctx context.Context, chatID string) error {
	req := chatRequest{Session: c.session, ChatID: chatID}
	if err := c.makeRequest(ctx, http.MethodPost, "/api/startTyping", req, nil); err != nil {
		return fmt.Errorf("start typing failed: %w", err)
	}
	return nil
}

// StopTyping clears the typing indicator in chatID.
func (c *Client) StopTyping(ctx context.Context, chatID string) error {
	req := chatRequest{Session: c.session, ChatID: chatID}
	if err := c.makeRequest(ctx, http.MethodPost, "/api/stopTyping", req, nil); err != nil {
		return fmt.Errorf("stop typing failed: %w", err)
	}
	return nil
}

// SessionStatus returns the gateway session state.
func (c *Client) SessionStatus(ctx context.Context) (*Session, error) {
	var s Session
	path := "/api/sessions/" + url.PathEscape(c.session)
	if err := c.makeRequest(ctx, http.MethodGet, path, nil, &s); err != nil {
		return nil, fmt.Errorf("get session status failed: %w", err)
	}
	return &s, nil
}

// Contacts lists all known contacts.
func (c *Client) Contacts(ctx context.Context) ([]Contact, error) {
	var contacts []Contact
	path := "/api/contacts/all?session=" + url.QueryEscape(c.session)
	if err := c.makeRequest(ctx, http.MethodGet, path, nil, &contacts); err != nil {
		return nil, fmt.Errorf("list contacts failed: %w", err)
	}
	return contacts, nil
}

// Contact fetches a single contact by chat ID.
func (c *Client) Contact(ctx context.Context, contactID string) (*Contact, error) {
	var contact Contact
	path := fmt.Sprintf("/api/contacts?session=%s&contactId=%s",
		url.QueryEscape(c.session), url.QueryEscape(contactID))
	if err := c.makeRequest(ctx, http.MethodGet, path, nil, &contact); err != nil {
		return nil, fmt.Errorf("get contact failed: %w", err)
	}
	return &contact, nil
}

// ContactExists checks whether a phone number is registered on WhatsApp.
// On success it returns the canonical chat ID for the number.
func (c *Client) ContactExists(ctx context.Context, phone string) (bool, string, error) {
	var resp existsResponse
	path := fmt.Sprintf("/api/contacts/check-exists?session=%s&phone=%s",
		url.QueryEscape(c.session), url.QueryEscape(phone))
	if err := c.makeRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, "", fmt.Errorf("check contact failed: %w", err)
	}
	return resp.NumberExists, resp.ChatID, nil
}

// Groups lists all group chats in the session.
func (c *Client) Groups(ctx context.Context) ([]Group, error) {
	var groups []Group
	path := "/api/" + url.PathEscape(c.session) + "/groups"
	if err := c.makeRequest(ctx, http.MethodGet, path, nil, &groups); err != nil {
		return nil, fmt.Errorf("list groups failed: %w", err)
	}
	return groups, nil
}

// Group fetches a single group by ID.
func (c *Client) Group(ctx context.Context, groupID string) (*Group, error) {
	var group Group
	path := fmt.Sprintf("/api/%s/groups/%s",
		url.PathEscape(c.session), url.PathEscape(groupID))
	if err := c.makeRequest(ctx, http.MethodGet, path, nil, &group); err != nil {
		return nil, fmt.Errorf("get group failed: %w", err)
	}
	return &group, nil
}

// GroupParticipants lists the members of a group.
func (c *Client) GroupParticipants(ctx context.Context, groupID string) ([]Participant, error) {
	var participants []Participant
	path := fmt.Sprintf("/api/%s/groups/%s/participants",
		url.PathEscape(c.session), url.PathEscape(groupID))
	if err := c.makeRequest(ctx, http.MethodGet, path, nil, &participants); err != nil {
		return nil, fmt.Errorf("list group participants failed: %w", err)
	}
	return participants, nil
}

// makeRequest performs one API call: JSON encode, auth header, status
// check, JSON decode into result when result is non-nil.
func (c *Client) makeRequest(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
