package fhsdk

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
)

// TokenProvider supplies the bearer token for each request. A nil or
// empty token leaves the request unauthenticated.
type TokenProvider interface {
	Token() string
}

// StaticToken is a TokenProvider returning a fixed token.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// Client is a Future Human HTTP API client.
type Client struct {
	BaseURL    string
	Tokens     TokenProvider
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string, tokens TokenProvider) *Client {
	return &Client{
		BaseURL: baseURL,
		Tokens:  tokens,
		Timeout: 10 * time.Second,
	}
}

// User represents an account.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Identity is the who-is-this section of an agent.
type Identity struct {
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Appearance selects the persona and accent color.
type Appearance struct {
	PersonaID       *string `json:"persona_id"`
	BackgroundColor *string `json:"background_color"`
}

// Voice selects the spoken language and voice name.
type Voice struct {
	Language string `json:"language,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Style holds the personality sliders, each in [0,10].
type Style struct {
	Formality  int `json:"formality"`
	Pace       int `json:"pace"`
	Calm       int `json:"calm"`
	Introvert  int `json:"introvert"`
	Empathy    int `json:"empathy"`
	Humor      int `json:"humor"`
	Creativity int `json:"creativity"`
	Directness int `json:"directness"`
}

// Brain selects the model tier and custom instructions.
type Brain struct {
	ID           string `json:"id"`
	Instructions string `json:"instructions,omitempty"`
}

// Background selects the scene behind the persona.
type Background struct {
	BackgroundID *string `json:"background_id"`
}

// Agent represents the API agent model.
type Agent struct {
	ID         string     `json:"id"`
	Identity   Identity   `json:"identity"`
	Appearance Appearance `json:"appearance"`
	Voice      Voice      `json:"voice"`
	Style      Style      `json:"style"`
	Brain      Brain      `json:"brain"`
	Background Background `json:"background"`
	CreatedAt  string     `json:"created_at"`
	UpdatedAt  string     `json:"updated_at"`
}

// AgentSections is the payload for creating an agent.
type AgentSections struct {
	Identity   Identity    `json:"identity"`
	Appearance *Appearance `json:"appearance,omitempty"`
	Voice      *Voice      `json:"voice,omitempty"`
	Style      *Style      `json:"style,omitempty"`
	Brain      Brain       `json:"brain"`
	Background *Background `json:"background,omitempty"`
}

// AgentPatch is the payload for a partial agent update. Nil sections are
// left untouched.
type AgentPatch struct {
	Identity   *Identity   `json:"identity,omitempty"`
	Appearance *Appearance `json:"appearance,omitempty"`
	Voice      *Voice      `json:"voice,omitempty"`
	Style      *Style      `json:"style,omitempty"`
	Brain      *Brain      `json:"brain,omitempty"`
	Background *Background `json:"background,omitempty"`
}

// Connection represents a provider link on an agent.
type Connection struct {
	ID         int64          `json:"id"`
	AgentID    string         `json:"agent_id"`
	ProviderID string         `json:"provider_id"`
	ExtID      string         `json:"ext_id"`
	Status     string         `json:"status"`
	Config     map[string]any `json:"config"`
	Token      *string        `json:"token"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
}

// NewConnection is the payload for creating a connection.
type NewConnection struct {
	ProviderID string         `json:"provider_id"`
	ExtID      string         `json:"ext_id,omitempty"`
	Status     string         `json:"status,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
	Token      *string        `json:"token,omitempty"`
}

// ConnectionPatch is the payload for a partial connection update. Config
// and Token use raw messages so `null` clears the value while absence
// leaves it alone.
type ConnectionPatch struct {
	Status string          `json:"status,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
	Token  json.RawMessage `json:"token,omitempty"`
}

// APIError wraps non-2xx responses. Code and Message are filled from the
// error envelope when the body parses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Conflict reports whether the error is a unique-key conflict.
func (e *APIError) Conflict() bool {
	return e.StatusCode == http.StatusConflict
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == status
}

// Register creates an account and returns a fresh token.
func (c *Client) Register(ctx context.Context, email, password, displayName string) (AuthResult, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}
	if displayName != "" {
		body["display_name"] = displayName
	}
	var resp AuthResult
	err := c.do(ctx, http.MethodPost, "v1/auth/register", body, &resp)
	return resp, err
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}
	var resp AuthResult
	err := c.do(ctx, http.MethodPost, "v1/auth/login", body, &resp)
	return resp, err
}

// Me returns the authenticated account.
func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "v1/me", nil, &resp)
	return resp, err
}

// UpdateMe updates the authenticated account.
func (c *Client) UpdateMe(ctx context.Context, displayName *string) (User, error) {
	body := map[string]any{}
	if displayName != nil {
		body["display_name"] = *displayName
	}
	var resp User
	err := c.do(ctx, http.MethodPatch, "v1/me", body, &resp)
	return resp, err
}

// CreateAgent creates an agent from its sections.
func (c *Client) CreateAgent(ctx context.Context, sections AgentSections) (Agent, error) {
	var resp Agent
	err := c.do(ctx, http.MethodPost, "v1/agents", sections, &resp)
	return resp, err
}

// ListAgents returns the caller's agents.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var resp struct {
		Items []Agent `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v1/agents", nil, &resp)
	return resp.Items, err
}

// GetAgent fetches an agent by id.
func (c *Client) GetAgent(ctx context.Context, id string) (Agent, error) {
	var resp Agent
	err := c.do(ctx, http.MethodGet, "v1/agents/"+pathEscape(id), nil, &resp)
	return resp, err
}

// UpdateAgent applies a partial update.
func (c *Client) UpdateAgent(ctx context.Context, id string, patch AgentPatch) (Agent, error) {
	var resp Agent
	err := c.do(ctx, http.MethodPatch, "v1/agents/"+pathEscape(id), patch, &resp)
	return resp, err
}

// DeleteAgent deletes an agent and its connections.
func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v1/agents/"+pathEscape(id), nil, nil)
}

// ListConnections returns the agent's connections ordered by id.
func (c *Client) ListConnections(ctx context.Context, agentID string) ([]Connection, error) {
	var resp struct {
		Items []Connection `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.connectionsPath(agentID, 0), nil, &resp)
	return resp.Items, err
}

// CreateConnection creates a connection on the agent.
func (c *Client) CreateConnection(ctx context.Context, agentID string, conn NewConnection) (Connection, error) {
	var resp Connection
	err := c.do(ctx, http.MethodPost, c.connectionsPath(agentID, 0), conn, &resp)
	return resp, err
}

// UpdateConnection applies a partial update to a connection.
func (c *Client) UpdateConnection(ctx context.Context, agentID string, id int64, patch ConnectionPatch) (Connection, error) {
	var resp Connection
	err := c.do(ctx, http.MethodPatch, c.connectionsPath(agentID, id), patch, &resp)
	return resp, err
}

// DeleteConnection deletes a connection.
func (c *Client) DeleteConnection(ctx context.Context, agentID string, id int64) error {
	return c.do(ctx, http.MethodDelete, c.connectionsPath(agentID, id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Tokens != nil {
		if token := c.Tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if jsonErr := json.Unmarshal(b, &envelope); jsonErr == nil && envelope.Error.Code != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) connectionsPath(agentID string, id int64) string {
	p := fmt.Sprintf("v1/agents/%s/connections", pathEscape(agentID))
	if id != 0 {
		p = fmt.Sprintf("%s/%d", p, id)
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func pathEscape(s string) string {
	return url.PathEscape(s)
}
