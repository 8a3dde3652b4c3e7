package client

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

	"codecollab/internal/models"

	"github.com/gorilla/websocket"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrForbidden    = errors.New("no access to document")
	ErrUnauthorized = errors.New("authentication required")
)

// Client talks to the collaboration server as one user.
type Client struct {
	BaseURL string
	User    models.UserInfo

	client *http.Client
	dialer *websocket.Dialer
}

func NewClient(baseURL string, user models.UserInfo) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		User:    user,
		client:  &http.Client{Timeout: 10 * time.Second},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// FetchDocument returns the persisted snapshot of a document.
func (c *Client) FetchDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := c.do(ctx, http.MethodGet, "/api/documents/"+url.PathEscape(id), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// CreateDocument creates a document owned by the client's user.
func (c *Client) CreateDocument(ctx context.Context, title, content string) (*models.Document, error) {
	var doc models.Document
	req := models.DocumentCreate{Title: title, Content: content}
	if err := c.do(ctx, http.MethodPost, "/api/documents", req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// SaveDocument stores content as the document's snapshot.
func (c *Client) SaveDocument(ctx context.Context, id, content string) error {
	req := models.DocumentUpdate{Content: &content}
	return c.do(ctx, http.MethodPut, "/api/documents/"+url.PathEscape(id), req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	c.setIdentity(httpReq.Header)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) setIdentity(h http.Header) {
	h.Set("X-User-ID", c.User.ID)
	if c.User.Name != "" {
		h.Set("X-User-Name", c.User.Name)
	}
}

func (c *Client) socketURL(documentID string) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.BaseURL, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/documents/" + url.PathEscape(documentID)
	return u.String(), nil
}

// statusError maps an HTTP status to the client's sentinel errors.
func statusError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusSwitchingProtocols:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusUnauthorized:
		return ErrUnauthorized
	}
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
