package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"okeyonline/internal/domain/presence"
	roomDomain "okeyonline/internal/domain/room"
	userDomain "okeyonline/internal/domain/user"
	roomUC "okeyonline/internal/usecase/room"
	userUC "okeyonline/internal/usecase/user"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultAttempts = 3
	DefaultBackoff  = time.Second
)

type noRetryKey struct{}

// APIError is a non-2xx answer of the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Client talks to the lobby REST API. GET, PUT and DELETE are retried with a
// linear backoff; POST is sent once.
type Client struct {
	baseURL string
	http    *retryablehttp.Client

	mu    sync.RWMutex
	token string
}

type Option func(c *Client)

func WithBackoff(unit time.Duration) Option {
	return func(c *Client) {
		c.http.Backoff = func(_, _ time.Duration, attemptNum int, _ *http.Response) time.Duration {
			return time.Duration(attemptNum+1) * unit
		}
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) { c.http.Logger = leveledLogger{log} }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = DefaultAttempts - 1
	rc.HTTPClient.Timeout = DefaultTimeout
	rc.Logger = nil
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Value(noRetryKey{}) != nil {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	// hand the last response back instead of a "giving up" error
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{baseURL: strings.TrimRight(baseURL, "/"), http: rc}
	WithBackoff(DefaultBackoff)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload interface{}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = raw
	}
	if method == http.MethodPost {
		ctx = context.WithValue(ctx, noRetryKey{}, true)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env envelope
		if json.Unmarshal(respBody, &env) == nil && env.Error != "" {
			return &APIError{Status: resp.StatusCode, Message: env.Error}
		}
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out == nil {
		return nil
	}
	if err = json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// data unwraps the {success, data} envelope into out.
func (c *Client) data(ctx context.Context, method, path string, body, out any) error {
	var env envelope
	if err := c.do(ctx, method, path, body, &env); err != nil {
		return err
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	return nil
}

type AuthResult struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Token   string             `json:"token"`
	User    userDomain.Summary `json:"user"`
}

type Health struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}

// Register creates an account and keeps its token for later calls.
func (c *Client) Register(ctx context.Context, username, email, password string) (AuthResult, error) {
	var res AuthResult
	body := map[string]string{"username": username, "email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", body, &res); err != nil {
		return res, err
	}
	c.SetToken(res.Token)
	return res, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var res AuthResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &res); err != nil {
		return res, err
	}
	c.SetToken(res.Token)
	return res, nil
}

func (c *Client) Profile(ctx context.Context) (userDomain.Profile, error) {
	var p userDomain.Profile
	err := c.data(ctx, http.MethodGet, "/api/users/profile", nil, &p)
	return p, err
}

func (c *Client) UpdateProfile(ctx context.Context, req userUC.UpdateProfileRequest) (userDomain.Profile, error) {
	var p userDomain.Profile
	err := c.data(ctx, http.MethodPut, "/api/users/profile", req, &p)
	return p, err
}

func (c *Client) Stats(ctx context.Context) (userDomain.StatsView, error) {
	var s userDomain.StatsView
	err := c.data(ctx, http.MethodGet, "/api/users/stats", nil, &s)
	return s, err
}

func (c *Client) UserStats(ctx context.Context, userID string) (userDomain.StatsView, error) {
	var s userDomain.StatsView
	err := c.data(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID)+"/stats", nil, &s)
	return s, err
}

func (c *Client) OnlineUsers(ctx context.Context) ([]presence.OnlineUser, error) {
	var users []presence.OnlineUser
	err := c.data(ctx, http.MethodGet, "/api/users/online", nil, &users)
	return users, err
}

type RoomFilter struct {
	GameType string
	Status   string
	Page     int
}

func (c *Client) Rooms(ctx context.Context, f RoomFilter) ([]roomDomain.View, error) {
	q := url.Values{}
	if f.GameType != "" {
		q.Set("gameType", f.GameType)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	path := "/api/rooms"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var rooms []roomDomain.View
	err := c.data(ctx, http.MethodGet, path, nil, &rooms)
	return rooms, err
}

func (c *Client) MyRooms(ctx context.Context) ([]roomDomain.View, error) {
	var rooms []roomDomain.View
	err := c.data(ctx, http.MethodGet, "/api/rooms/my-rooms", nil, &rooms)
	return rooms, err
}

func roomPath(roomID, suffix string) string {
	return "/api/rooms/" + url.PathEscape(roomID) + suffix
}

func (c *Client) room(ctx context.Context, method, path string, body any) (roomDomain.View, error) {
	var v roomDomain.View
	err := c.data(ctx, method, path, body, &v)
	return v, err
}

func (c *Client) Room(ctx context.Context, roomID string) (roomDomain.View, error) {
	return c.room(ctx, http.MethodGet, roomPath(roomID, ""), nil)
}

func (c *Client) CreateRoom(ctx context.Context, req roomUC.CreateRequest) (roomDomain.View, error) {
	return c.room(ctx, http.MethodPost, "/api/rooms", req)
}

func (c *Client) JoinRoom(ctx context.Context, roomID, password string) (roomDomain.View, error) {
	var body any
	if password != "" {
		body = map[string]string{"password": password}
	}
	return c.room(ctx, http.MethodPost, roomPath(roomID, "/join"), body)
}

func (c *Client) LeaveRoom(ctx context.Context, roomID string) (roomDomain.View, error) {
	return c.room(ctx, http.MethodDelete, roomPath(roomID, "/leave"), nil)
}

func (c *Client) Spectate(ctx context.Context, roomID string) (roomDomain.View, error) {
	return c.room(ctx, http.MethodPost, roomPath(roomID, "/spectate"), nil)
}

func (c *Client) Unspectate(ctx context.Context, roomID string) (roomDomain.View, error) {
	return c.room(ctx, http.MethodDelete, roomPath(roomID, "/spectate"), nil)
}

func (c *Client) StartGame(ctx context.Context, roomID string) (roomDomain.View, error) {
	return c.room(ctx, http.MethodPost, roomPath(roomID, "/start"), nil)
}

func (c *Client) EndGame(ctx context.Context, roomID string, req roomUC.EndRequest) (roomDomain.View, error) {
	return c.room(ctx, http.MethodPost, roomPath(roomID, "/end"), req)
}

func (c *Client) CancelRoom(ctx context.Context, roomID string) (roomDomain.View, error) {
	return c.room(ctx, http.MethodDelete, roomPath(roomID, ""), nil)
}

func (c *Client) Messages(ctx context.Context, roomID string) ([]roomDomain.ChatMessage, error) {
	var msgs []roomDomain.ChatMessage
	err := c.data(ctx, http.MethodGet, roomPath(roomID, "/messages"), nil, &msgs)
	return msgs, err
}

func (c *Client) RoomOnline(ctx context.Context, roomID string) ([]presence.OnlineUser, error) {
	var users []presence.OnlineUser
	err := c.data(ctx, http.MethodGet, roomPath(roomID, "/online"), nil, &users)
	return users, err
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Infow(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Warnw(msg, kv...) }

var _ retryablehttp.LeveledLogger = leveledLogger{}
