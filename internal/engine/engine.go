package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"futurehuman/internal/config"
	"futurehuman/internal/domain"
	"futurehuman/internal/events"
	"futurehuman/internal/repo"
)

// ErrInvalidCredentials hides whether the email or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// RegisterUser creates an account with a bcrypt-hashed password.
func (e Engine) RegisterUser(ctx context.Context, email, password, displayName string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, errors.New("valid email is required")
	}
	if len(password) < 8 {
		return domain.User{}, errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		CreatedAt:    e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.User{}, fmt.Errorf("email already registered: %w", repo.ErrConflict)
		}
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.registered", u.ID, "user", u.ID, events.EventPayload{"email": u.Email}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Authenticate verifies email/password and returns the user.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// UpdateAccount updates mutable account fields.
func (e Engine) UpdateAccount(ctx context.Context, userID string, displayName *string) (domain.User, error) {
	if err := e.Repo.UpdateUser(ctx, userID, displayName); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, userID)
}

// AgentSections carries the full sectioned payload for agent creation.
type AgentSections struct {
	Identity   domain.Identity
	Appearance domain.Appearance
	Voice      domain.Voice
	Style      domain.Style
	Brain      domain.Brain
	Background domain.Background
}

// AgentPatch carries optional section updates; nil sections are untouched.
type AgentPatch struct {
	Identity   *domain.Identity
	Appearance *domain.Appearance
	Voice      *domain.Voice
	Style      *domain.Style
	Brain      *domain.Brain
	Background *domain.Background
}

func (e Engine) shapeSections(s *AgentSections) error {
	s.Identity.Name = strings.TrimSpace(s.Identity.Name)
	if s.Identity.Name == "" {
		return errors.New("identity.name is required")
	}
	if s.Brain.ID == "" {
		return errors.New("brain.id is required")
	}
	if e.Config != nil && len(e.Config.Catalog.Brains) > 0 {
		if _, ok := e.Config.Catalog.Brains[s.Brain.ID]; !ok {
			return fmt.Errorf("unknown brain %s", s.Brain.ID)
		}
	}
	if s.Appearance.BackgroundColor != nil {
		s.Appearance.BackgroundColor = domain.NormalizeHexColor(*s.Appearance.BackgroundColor)
	}
	s.Style = s.Style.Clamp()
	if s.Voice.Language == "" && e.Config != nil {
		s.Voice.Language = e.Config.Defaults.Language
	}
	if s.Voice.Name == "" && e.Config != nil {
		s.Voice.Name = e.Config.Defaults.Voice
	}
	return nil
}

func (e Engine) CreateAgent(ctx context.Context, userID string, sections AgentSections) (domain.Agent, error) {
	if userID == "" {
		return domain.Agent{}, errors.New("user is required")
	}
	if err := e.shapeSections(&sections); err != nil {
		return domain.Agent{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Agent{
		ID:         uuid.New().String(),
		UserID:     userID,
		Identity:   sections.Identity,
		Appearance: sections.Appearance,
		Voice:      sections.Voice,
		Style:      sections.Style,
		Brain:      sections.Brain,
		Background: sections.Background,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Agent{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAgent(ctx, tx, a); err != nil {
		return domain.Agent{}, fmt.Errorf("insert agent: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "agent.created", userID, "agent", a.ID, events.EventPayload{"name": a.Identity.Name}); err != nil {
		return domain.Agent{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Agent{}, err
	}
	return a, nil
}

// GetAgentOwned fetches an agent and hides foreign rows behind ErrNotFound.
func (e Engine) GetAgentOwned(ctx context.Context, userID, agentID string) (domain.Agent, error) {
	a, err := e.Repo.GetAgent(ctx, agentID)
	if err != nil {
		return domain.Agent{}, err
	}
	if a.UserID != userID {
		return domain.Agent{}, repo.ErrNotFound
	}
	return a, nil
}

func (e Engine) UpdateAgent(ctx context.Context, userID, agentID string, patch AgentPatch) (domain.Agent, error) {
	a, err := e.GetAgentOwned(ctx, userID, agentID)
	if err != nil {
		return domain.Agent{}, err
	}
	if patch.Identity != nil {
		a.Identity = *patch.Identity
	}
	if patch.Appearance != nil {
		a.Appearance = *patch.Appearance
	}
	if patch.Voice != nil {
		a.Voice = *patch.Voice
	}
	if patch.Style != nil {
		a.Style = *patch.Style
	}
	if patch.Brain != nil {
		a.Brain = *patch.Brain
	}
	if patch.Background != nil {
		a.Background = *patch.Background
	}
	sections := AgentSections{
		Identity:   a.Identity,
		Appearance: a.Appearance,
		Voice:      a.Voice,
		Style:      a.Style,
		Brain:      a.Brain,
		Background: a.Background,
	}
	if err := e.shapeSections(&sections); err != nil {
		return domain.Agent{}, err
	}
	a.Identity = sections.Identity
	a.Appearance = sections.Appearance
	a.Voice = sections.Voice
	a.Style = sections.Style
	a.Brain = sections.Brain
	a.Background = sections.Background
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Agent{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAgent(ctx, tx, a); err != nil {
		return domain.Agent{}, err
	}
	if err := e.Events.Append(ctx, tx, "agent.updated", userID, "agent", a.ID, events.EventPayload{"name": a.Identity.Name}); err != nil {
		return domain.Agent{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Agent{}, err
	}
	return a, nil
}

func (e Engine) DeleteAgent(ctx context.Context, userID, agentID string) error {
	if _, err := e.GetAgentOwned(ctx, userID, agentID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAgent(ctx, tx, agentID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "agent.deleted", userID, "agent", agentID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// ConnectionFields are the mutable connection attributes.
type ConnectionFields struct {
	ProviderID string
	ExtID      string
	Status     string
	Config     map[string]any
	Token      *string
}

// ConnectionUpdateOptions uses provided-flags so a PATCH can distinguish
// "leave alone" from "set to null".
type ConnectionUpdateOptions struct {
	Status    string
	ConfigSet bool
	Config    map[string]any
	TokenSet  bool
	Token     *string
}

func (e Engine) CreateConnection(ctx context.Context, userID, agentID string, fields ConnectionFields) (domain.Connection, error) {
	if _, err := e.GetAgentOwned(ctx, userID, agentID); err != nil {
		return domain.Connection{}, err
	}
	fields.ProviderID = strings.TrimSpace(fields.ProviderID)
	if fields.ProviderID == "" {
		return domain.Connection{}, errors.New("provider_id is required")
	}
	if e.Config != nil && len(e.Config.Catalog.Providers) > 0 {
		if _, ok := e.Config.Catalog.Providers[fields.ProviderID]; !ok {
			return domain.Connection{}, fmt.Errorf("unknown provider %s", fields.ProviderID)
		}
	}
	if fields.ExtID == "" {
		fields.ExtID = fields.ProviderID
	}
	if fields.Status == "" {
		fields.Status = domain.ConnectionStatusDefault
	}
	if !domain.ValidConnectionStatus(fields.Status) {
		return domain.Connection{}, fmt.Errorf("invalid status %s", fields.Status)
	}
	now := e.now().UTC().Format(time.RFC3339)
	c := domain.Connection{
		AgentID:    agentID,
		ProviderID: fields.ProviderID,
		ExtID:      fields.ExtID,
		Status:     fields.Status,
		Config:     fields.Config,
		Token:      fields.Token,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Connection{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertConnection(ctx, tx, c)
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.Connection{}, fmt.Errorf("connection %s#%s already exists: %w", c.ProviderID, c.ExtID, repo.ErrConflict)
		}
		return domain.Connection{}, err
	}
	c.ID = id
	if err := e.Events.Append(ctx, tx, "connection.created", userID, "connection", fmt.Sprint(id), events.EventPayload{"provider_id": c.ProviderID, "ext_id": c.ExtID}); err != nil {
		return domain.Connection{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Connection{}, err
	}
	return c, nil
}

func (e Engine) UpdateConnection(ctx context.Context, userID, agentID string, id int64, opts ConnectionUpdateOptions) (domain.Connection, error) {
	if _, err := e.GetAgentOwned(ctx, userID, agentID); err != nil {
		return domain.Connection{}, err
	}
	c, err := e.Repo.GetConnection(ctx, agentID, id)
	if err != nil {
		return domain.Connection{}, err
	}
	if opts.Status != "" {
		if !domain.ValidConnectionStatus(opts.Status) {
			return domain.Connection{}, fmt.Errorf("invalid status %s", opts.Status)
		}
		c.Status = opts.Status
	}
	if opts.ConfigSet {
		c.Config = opts.Config
	}
	if opts.TokenSet {
		c.Token = opts.Token
	}
	c.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Connection{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateConnection(ctx, tx, c); err != nil {
		return domain.Connection{}, err
	}
	if err := e.Events.Append(ctx, tx, "connection.updated", userID, "connection", fmt.Sprint(id), events.EventPayload{"status": c.Status}); err != nil {
		return domain.Connection{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Connection{}, err
	}
	return c, nil
}

func (e Engine) DeleteConnection(ctx context.Context, userID, agentID string, id int64) error {
	if _, err := e.GetAgentOwned(ctx, userID, agentID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteConnection(ctx, tx, agentID, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "connection.deleted", userID, "connection", fmt.Sprint(id), events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}
