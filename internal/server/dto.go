package server

import (
	"encoding/json"

	"futurehuman/internal/domain"
)

// Request payloads

type RegisterRequest struct {
	Email       string `json:"email" format:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type UpdateAccountRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
}

type IdentitySection struct {
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Description string `json:"description,omitempty"`
}

type AppearanceSection struct {
	PersonaID       *string `json:"persona_id"`
	BackgroundColor *string `json:"background_color"`
}

type VoiceSection struct {
	Language string `json:"language,omitempty"`
	Name     string `json:"name,omitempty"`
}

type StyleSection struct {
	Formality  int `json:"formality" minimum:"0" maximum:"10"`
	Pace       int `json:"pace" minimum:"0" maximum:"10"`
	Calm       int `json:"calm" minimum:"0" maximum:"10"`
	Introvert  int `json:"introvert" minimum:"0" maximum:"10"`
	Empathy    int `json:"empathy" minimum:"0" maximum:"10"`
	Humor      int `json:"humor" minimum:"0" maximum:"10"`
	Creativity int `json:"creativity" minimum:"0" maximum:"10"`
	Directness int `json:"directness" minimum:"0" maximum:"10"`
}

type BrainSection struct {
	ID           string `json:"id"`
	Instructions string `json:"instructions,omitempty"`
}

type BackgroundSection struct {
	BackgroundID *string `json:"background_id"`
}

type CreateAgentRequest struct {
	Identity   IdentitySection    `json:"identity"`
	Appearance *AppearanceSection `json:"appearance,omitempty"`
	Voice      *VoiceSection      `json:"voice,omitempty"`
	Style      *StyleSection      `json:"style,omitempty"`
	Brain      BrainSection       `json:"brain"`
	Background *BackgroundSection `json:"background,omitempty"`
}

type UpdateAgentRequest struct {
	Identity   *IdentitySection   `json:"identity,omitempty"`
	Appearance *AppearanceSection `json:"appearance,omitempty"`
	Voice      *VoiceSection      `json:"voice,omitempty"`
	Style      *StyleSection      `json:"style,omitempty"`
	Brain      *BrainSection      `json:"brain,omitempty"`
	Background *BackgroundSection `json:"background,omitempty"`
}

type CreateConnectionRequest struct {
	ProviderID string         `json:"provider_id"`
	ExtID      string         `json:"ext_id,omitempty"`
	Status     string         `json:"status,omitempty" enum:"connected,needs_setup,error"`
	Config     map[string]any `json:"config,omitempty" jsonschema:"type=object,additionalProperties=true"`
	Token      *string        `json:"token,omitempty"`
}

// UpdateConnectionRequest uses raw messages so an explicit JSON null can be
// told apart from an absent field (null clears the value).
type UpdateConnectionRequest struct {
	Status string          `json:"status,omitempty" enum:"connected,needs_setup,error"`
	Config json.RawMessage `json:"config,omitempty" jsonschema:"type=object,additionalProperties=true"`
	Token  json.RawMessage `json:"token,omitempty"`
}

// Response payloads

type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type AgentResponse struct {
	ID         string            `json:"id"`
	Identity   IdentitySection   `json:"identity"`
	Appearance AppearanceSection `json:"appearance"`
	Voice      VoiceSection      `json:"voice"`
	Style      StyleSection      `json:"style"`
	Brain      BrainSection      `json:"brain"`
	Background BackgroundSection `json:"background"`
	CreatedAt  string            `json:"created_at" format:"date-time"`
	UpdatedAt  string            `json:"updated_at" format:"date-time"`
}

type ConnectionResponse struct {
	ID         int64          `json:"id"`
	AgentID    string         `json:"agent_id"`
	ProviderID string         `json:"provider_id"`
	ExtID      string         `json:"ext_id"`
	Status     string         `json:"status" enum:"connected,needs_setup,error"`
	Config     map[string]any `json:"config"`
	Token      *string        `json:"token"`
	CreatedAt  string         `json:"created_at" format:"date-time"`
	UpdatedAt  string         `json:"updated_at" format:"date-time"`
}

type agentList struct {
	Items []AgentResponse `json:"items"`
}

type connectionList struct {
	Items []ConnectionResponse `json:"items"`
}

// Conversion helpers

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
}

func agentResponse(a domain.Agent) AgentResponse {
	return AgentResponse{
		ID:         a.ID,
		Identity:   IdentitySection(a.Identity),
		Appearance: AppearanceSection(a.Appearance),
		Voice:      VoiceSection(a.Voice),
		Style:      StyleSection(a.Style),
		Brain:      BrainSection(a.Brain),
		Background: BackgroundSection(a.Background),
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func connectionResponse(c domain.Connection) ConnectionResponse {
	return ConnectionResponse{
		ID:         c.ID,
		AgentID:    c.AgentID,
		ProviderID: c.ProviderID,
		ExtID:      c.ExtID,
		Status:     c.Status,
		Config:     c.Config,
		Token:      c.Token,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func mapAgents(in []domain.Agent) []AgentResponse {
	out := []AgentResponse{}
	for _, a := range in {
		out = append(out, agentResponse(a))
	}
	return out
}

func mapConnections(in []domain.Connection) []ConnectionResponse {
	out := []ConnectionResponse{}
	for _, c := range in {
		out = append(out, connectionResponse(c))
	}
	return out
}

func sectionsFromCreate(req CreateAgentRequest) (domain.Identity, domain.Appearance, domain.Voice, domain.Style, domain.Brain, domain.Background) {
	identity := domain.Identity(req.Identity)
	appearance := domain.Appearance{}
	if req.Appearance != nil {
		appearance = domain.Appearance(*req.Appearance)
	}
	voice := domain.Voice{}
	if req.Voice != nil {
		voice = domain.Voice(*req.Voice)
	}
	style := domain.DefaultStyle()
	if req.Style != nil {
		style = domain.Style(*req.Style)
	}
	brain := domain.Brain(req.Brain)
	background := domain.Background{}
	if req.Background != nil {
		background = domain.Background(*req.Background)
	}
	return identity, appearance, voice, style, brain, background
}
