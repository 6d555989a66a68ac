// Package chatboard provides a client for the chatboard HTTP API.
package chatboard

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Lobby is the room every board starts with.
const Lobby = "default/lobby"

// ErrNotLoggedIn is returned by calls that need a session when none is stored.
var ErrNotLoggedIn = errors.New("not logged in")

// Client is a chatboard API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Token      string
	Email      string
	HTTPClient *http.Client
}

// Session is the login state persisted between CLI runs.
type Session struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatboard error %d: %s", e.Status, e.Message)
}

// NewClient creates a new client. The session is loaded from
// CHATBOARD_CONFIG (default ~/.chatboard) when present.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("CHATBOARD_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".chatboard")
	}

	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadSession()
	return c
}

func (c *Client) sessionFile() string {
	return filepath.Join(c.ConfigDir, "session.json")
}

// LoadSession loads the stored session from disk.
func (c *Client) LoadSession() error {
	data, err := os.ReadFile(c.sessionFile())
	if err != nil {
		return err
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	c.Token = s.Token
	c.Email = s.Email
	return nil
}

// SaveSession writes the current session to disk.
func (c *Client) SaveSession() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	data, _ := json.MarshalIndent(Session{Token: c.Token, Email: c.Email}, "", "  ")
	return os.WriteFile(c.sessionFile(), data, 0600)
}

// ClearSession forgets the stored session.
func (c *Client) ClearSession() error {
	c.Token = ""
	c.Email = ""
	err := os.Remove(c.sessionFile())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// doRequest performs an HTTP request and decodes a JSON response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, contentType string, authed bool, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if authed {
		if c.Token == "" {
			return ErrNotLoggedIn
		}
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in interface{}, authed bool, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	return c.doRequest(ctx, method, path, body, "application/json", authed, out)
}

// roomPath turns "category/room" into the API path for that room.
func roomPath(room string) (string, error) {
	category, name, ok := strings.Cut(room, "/")
	if !ok || category == "" || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("room must be category/name, got %q", room)
	}
	return "/rooms/" + url.PathEscape(category) + "/" + url.PathEscape(name), nil
}

// Account is the signed-in user's own account.
type Account struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// RegisterResponse is the response from account registration.
type RegisterResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	ProfileURL    string `json:"profile_url"`
}

// Register creates an account. A verification link is emailed to the address.
func (c *Client) Register(ctx context.Context, email, password, displayName string) (*RegisterResponse, error) {
	req := map[string]string{"email": email, "password": password, "display_name": displayName}
	var resp RegisterResponse
	if err := c.doJSON(ctx, "POST", "/auth/register", req, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LoginResponse is the response from logging in.
type LoginResponse struct {
	Token         string   `json:"token"`
	ExpiresAt     string   `json:"expires_at"`
	EmailVerified bool     `json:"email_verified"`
	Account       *Account `json:"account"`
}

// Login starts a session and stores it on disk.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	req := map[string]string{"email": email, "password": password}
	var resp LoginResponse
	if err := c.doJSON(ctx, "POST", "/auth/login", req, false, &resp); err != nil {
		return nil, err
	}

	c.Token = resp.Token
	c.Email = email
	if err := c.SaveSession(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout ends the session on the server and forgets it locally.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.doJSON(ctx, "POST", "/auth/logout", nil, true, nil); err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
			return err
		}
	}
	return c.ClearSession()
}

// Verify confirms an email address with the token from the verification link.
// A full link is accepted as well as a bare token.
func (c *Client) Verify(ctx context.Context, tokenOrLink string) error {
	token := tokenOrLink
	if u, err := url.Parse(tokenOrLink); err == nil && u.Query().Get("token") != "" {
		token = u.Query().Get("token")
	}
	return c.doJSON(ctx, "POST", "/auth/verify", map[string]string{"token": token}, false, nil)
}

// ResendVerification asks the server to mail a new verification link.
func (c *Client) ResendVerification(ctx context.Context) error {
	return c.doJSON(ctx, "POST", "/auth/verify/resend", nil, true, nil)
}

// Me returns the signed-in account.
func (c *Client) Me(ctx context.Context) (*Account, error) {
	var resp Account
	if err := c.doJSON(ctx, "GET", "/auth/me", nil, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetDisplayName changes the name shown on new messages.
func (c *Client) SetDisplayName(ctx context.Context, name string) (*Account, error) {
	var resp Account
	if err := c.doJSON(ctx, "PUT", "/auth/profile", map[string]string{"display_name": name}, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Profile is the public view of an account.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	JoinedAt    string `json:"joined_at"`
}

// GetProfile gets a user's public profile.
func (c *Client) GetProfile(ctx context.Context, id string) (*Profile, error) {
	var resp Profile
	if err := c.doJSON(ctx, "GET", "/users/"+url.PathEscape(id), nil, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RoomInfo represents room metadata.
type RoomInfo struct {
	Room         string `json:"room"`
	Category     string `json:"category"`
	Name         string `json:"name"`
	MessageCount int64  `json:"message_count"`
	LastActive   string `json:"last_active"`
}

// RoomsResponse is the response from listing rooms.
type RoomsResponse struct {
	Rooms []RoomInfo `json:"rooms"`
	Total int        `json:"total"`
}

// ListRooms lists rooms.
func (c *Client) ListRooms(ctx context.Context, limit, offset int) (*RoomsResponse, error) {
	var resp RoomsResponse
	path := fmt.Sprintf("/rooms?limit=%d&offset=%d", limit, offset)
	if err := c.doJSON(ctx, "GET", path, nil, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateRoom creates a new room addressed as "category/name".
func (c *Client) CreateRoom(ctx context.Context, room string) (*RoomInfo, error) {
	category, name, ok := strings.Cut(room, "/")
	if !ok {
		category, name = "default", room
	}
	var resp RoomInfo
	if err := c.doJSON(ctx, "POST", "/rooms", map[string]string{"category": category, "name": name}, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Message represents a chat message.
type Message struct {
	ID                string `json:"id"`
	Room              string `json:"room"`
	UserID            string `json:"uid"`
	User              string `json:"user"`
	Text              string `json:"text"`
	Image             string `json:"image,omitempty"`
	AttachmentID      string `json:"attachment_id,omitempty"`
	Timestamp         int64  `json:"ts"`
	ForwardedFromRoom string `json:"forwarded_from_room,omitempty"`
	ForwardedCategory string `json:"forwarded_category,omitempty"`
	ForwardedAt       int64  `json:"forwarded_at,omitempty"`
	ReplyCount        int64  `json:"reply_count"`
}

// MessagesResponse is one page of a room, oldest first.
type MessagesResponse struct {
	Room     RoomInfo  `json:"room"`
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
	Oldest   string    `json:"oldest,omitempty"`
	Newest   string    `json:"newest,omitempty"`
}

// GetMessages retrieves a page of messages. Leave before and after empty for
// the latest page; pass Oldest as before or Newest as after to move.
func (c *Client) GetMessages(ctx context.Context, room string, limit int, before, after string) (*MessagesResponse, error) {
	base, err := roomPath(room)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if before != "" {
		q.Set("before", before)
	}
	if after != "" {
		q.Set("after", after)
	}
	path := base
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp MessagesResponse
	if err := c.doJSON(ctx, "GET", path, nil, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetMessage gets a single message.
func (c *Client) GetMessage(ctx context.Context, room, id string) (*Message, error) {
	base, err := roomPath(room)
	if err != nil {
		return nil, err
	}
	var resp Message
	if err := c.doJSON(ctx, "GET", base+"/messages/"+url.PathEscape(id), nil, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PostMessageRequest is the request body for posting a message.
type PostMessageRequest struct {
	Text         string `json:"text,omitempty"`
	Image        string `json:"image,omitempty"`
	AttachmentID string `json:"attachment_id,omitempty"`
}

// PostMessage posts a message to a room.
func (c *Client) PostMessage(ctx context.Context, room string, req PostMessageRequest) (*Message, error) {
	base, err := roomPath(room)
	if err != nil {
		return nil, err
	}
	var resp Message
	if err := c.doJSON(ctx, "POST", base+"/messages", req, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Attachment is an uploaded image.
type Attachment struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// UploadAttachment uploads raw image bytes to the object store.
func (c *Client) UploadAttachment(ctx context.Context, data []byte, contentType string) (*Attachment, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	var resp Attachment
	if err := c.doRequest(ctx, "POST", "/attachments", bytes.NewReader(data), contentType, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Forward copies a message into another existing room.
func (c *Client) Forward(ctx context.Context, room, id, target string) (*Message, error) {
	base, err := roomPath(room)
	if err != nil {
		return nil, err
	}
	category, name, ok := strings.Cut(target, "/")
	if !ok {
		return nil, fmt.Errorf("target must be category/name, got %q", target)
	}
	req := map[string]string{"category": category, "room": name}
	var resp Message
	if err := c.doJSON(ctx, "POST", base+"/messages/"+url.PathEscape(id)+"/forward", req, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reply is a message nested under a parent.
type Reply struct {
	ID        string `json:"id"`
	ParentID  string `json:"parent_id"`
	Room      string `json:"room"`
	UserID    string `json:"uid"`
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"ts"`
}

// ThreadResponse is a parent message with its replies.
type ThreadResponse struct {
	Parent  *Message `json:"parent"`
	Replies []Reply  `json:"replies"`
	HasMore bool     `json:"has_more"`
}

// GetThread gets a message and its replies, oldest first.
func (c *Client) GetThread(ctx context.Context, room, id string, limit int, after string) (*ThreadResponse, error) {
	base, err := roomPath(room)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/messages/%s/replies?limit=%d", base, url.PathEscape(id), limit)
	if after != "" {
		path += "&after=" + url.QueryEscape(after)
	}
	var resp ThreadResponse
	if err := c.doJSON(ctx, "GET", path, nil, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PostReply replies to a message.
func (c *Client) PostReply(ctx context.Context, room, id, text string) (*Reply, error) {
	base, err := roomPath(room)
	if err != nil {
		return nil, err
	}
	var resp Reply
	if err := c.doJSON(ctx, "POST", base+"/messages/"+url.PathEscape(id)+"/replies", map[string]string{"text": text}, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchResult represents a search result.
type SearchResult struct {
	ID        string `json:"id"`
	Room      string `json:"room"`
	UserID    string `json:"uid"`
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"ts"`
}

// SearchResponse is the response from searching messages.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}

// Search searches for messages.
func (c *Client) Search(ctx context.Context, query string, limit int, room string, after int64) (*SearchResponse, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", fmt.Sprint(limit))
	if room != "" {
		q.Set("room", room)
	}
	if after > 0 {
		q.Set("after", fmt.Sprint(after))
	}

	var resp SearchResponse
	if err := c.doJSON(ctx, "GET", "/find?"+q.Encode(), nil, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Check is a single dependency health check.
type Check struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health checks server health. A degraded server answers 503, which is
// reported as the response rather than an error.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Stats is the board-wide summary.
type Stats struct {
	TotalAccounts int64  `json:"total_accounts"`
	TotalRooms    int64  `json:"total_rooms"`
	TotalMessages int64  `json:"total_messages"`
	LastActivity  string `json:"last_activity"`
	TopRooms      []struct {
		Room         string `json:"room"`
		MessageCount int64  `json:"message_count"`
	} `json:"top_rooms"`
}

// Stats gets board statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var resp Stats
	if err := c.doJSON(ctx, "GET", "/stats", nil, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Event is a live feed frame.
type Event struct {
	Type    string   `json:"type"` // "message" or "reply"
	Message *Message `json:"message,omitempty"`
	Reply   *Reply   `json:"reply,omitempty"`
}

// Watch streams a room's live events to fn until ctx is done or the
// connection drops.
func (c *Client) Watch(ctx context.Context, room string, fn func(Event)) error {
	base, err := roomPath(room)
	if err != nil {
		return err
	}

	wsURL := c.BaseURL + base + "/live"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fn(ev)
	}
}

// DataURL encodes image bytes for the inline image field of a message.
func DataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
