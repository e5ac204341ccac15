package domain

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name,omitempty"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// Agent is the persisted persona configuration. Section sub-objects mirror
// the wizard document so a PATCH can carry any subset of them.
type Agent struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Identity   Identity   `json:"identity"`
	Appearance Appearance `json:"appearance"`
	Voice      Voice      `json:"voice"`
	Style      Style      `json:"style"`
	Brain      Brain      `json:"brain"`
	Background Background `json:"background"`
	CreatedAt  string     `json:"created_at" format:"date-time"`
	UpdatedAt  string     `json:"updated_at" format:"date-time"`
}

type Identity struct {
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Description string `json:"description,omitempty"`
}

type Appearance struct {
	PersonaID       *string `json:"persona_id"`
	BackgroundColor *string `json:"background_color"`
}

type Voice struct {
	Language string `json:"language"`
	Name     string `json:"name"`
}

// Style holds the eight personality sliders, each an integer in [0,10].
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

type Brain struct {
	ID           string `json:"id"`
	Instructions string `json:"instructions,omitempty"`
}

type Background struct {
	BackgroundID *string `json:"background_id"`
}

// Connection links an agent to a third-party provider. (provider_id, ext_id)
// is unique per agent; ID is the surrogate key.
type Connection struct {
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

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
