package wizard

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"futurehuman/internal/domain"
)

// Step identifies one screen of the wizard.
type Step string

const (
	StepIdentity    Step = "identity"
	StepAppearance  Step = "appearance"
	StepVoiceSoul   Step = "voiceSoul"
	StepBrain       Step = "brain"
	StepBackground  Step = "background"
	StepConnections Step = "connections"
)

// Steps is the fixed wizard sequence.
var Steps = []Step{
	StepIdentity,
	StepAppearance,
	StepVoiceSoul,
	StepBrain,
	StepBackground,
	StepConnections,
}

func stepIndex(s Step) int {
	for i, v := range Steps {
		if v == s {
			return i
		}
	}
	return -1
}

// ValidStep reports whether s is a member of the step sequence.
func ValidStep(s Step) bool {
	return stepIndex(s) >= 0
}

// Section names accepted by PatchSection.
const (
	SectionIdentity    = "identity"
	SectionAppearance  = "appearance"
	SectionVoice       = "voice"
	SectionStyle       = "style"
	SectionBrain       = "brain"
	SectionBackground  = "background"
	SectionConnections = "connections"
)

// Connection is a provider link as the wizard sees it. ID is the server
// id, 0 until the record is persisted; TempID identifies the record
// locally until then.
type Connection struct {
	ID         int64          `json:"id"`
	TempID     string         `json:"temp_id,omitempty"`
	ProviderID string         `json:"provider_id"`
	ExtID      string         `json:"ext_id,omitempty"`
	Status     string         `json:"status,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
	Token      *string        `json:"token,omitempty"`
}

// NewTempConnection builds an unpersisted connection for a provider.
func NewTempConnection(providerID string, now time.Time) Connection {
	return Connection{
		TempID:     fmt.Sprintf("tmp:%s:%d", providerID, now.UnixNano()),
		ProviderID: providerID,
		ExtID:      providerID,
		Status:     domain.ConnectionStatusDefault,
	}
}

func (c Connection) extID() string {
	if c.ExtID != "" {
		return c.ExtID
	}
	return c.ProviderID
}

func (c Connection) status() string {
	if c.Status != "" {
		return c.Status
	}
	return domain.ConnectionStatusDefault
}

// Document is the agent under construction or edit.
type Document struct {
	EntityID    string            `json:"entity_id,omitempty"`
	DraftID     string            `json:"draft_id,omitempty"`
	CurrentStep Step              `json:"current_step"`
	Identity    domain.Identity   `json:"identity"`
	Appearance  domain.Appearance `json:"appearance"`
	Voice       domain.Voice      `json:"voice"`
	Style       domain.Style      `json:"style"`
	Brain       domain.Brain      `json:"brain"`
	Background  domain.Background `json:"background"`
	Connections []Connection      `json:"connections"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewDocument returns a document with all sections at their defaults.
// Each document gets its own draft id; it travels with the persisted
// draft and identifies it across reloads.
func NewDocument() Document {
	return Document{
		DraftID:     uuid.NewString(),
		CurrentStep: StepIdentity,
		Style:       domain.DefaultStyle(),
		Connections: []Connection{},
	}
}

func cloneConnections(in []Connection) []Connection {
	out := make([]Connection, len(in))
	for i, c := range in {
		out[i] = c
		if c.Config != nil {
			cfg := make(map[string]any, len(c.Config))
			for k, v := range c.Config {
				cfg[k] = v
			}
			out[i].Config = cfg
		}
		if c.Token != nil {
			token := *c.Token
			out[i].Token = &token
		}
	}
	return out
}

func (d Document) clone() Document {
	d.Connections = cloneConnections(d.Connections)
	return d
}

func (d *Document) applyPatch(section string, fields map[string]any) error {
	switch section {
	case SectionIdentity:
		for k, v := range fields {
			switch k {
			case "name":
				d.Identity.Name = asString(v)
			case "role":
				d.Identity.Role = asString(v)
			case "company_name":
				d.Identity.CompanyName = asString(v)
			case "description":
				d.Identity.Description = asString(v)
			default:
				return fmt.Errorf("unknown identity field %q", k)
			}
		}
	case SectionAppearance:
		for k, v := range fields {
			switch k {
			case "persona_id":
				d.Appearance.PersonaID = asStringPtr(v)
			case "background_color":
				d.Appearance.BackgroundColor = asStringPtr(v)
			default:
				return fmt.Errorf("unknown appearance field %q", k)
			}
		}
	case SectionVoice:
		for k, v := range fields {
			switch k {
			case "language":
				d.Voice.Language = asString(v)
			case "name":
				d.Voice.Name = asString(v)
			default:
				return fmt.Errorf("unknown voice field %q", k)
			}
		}
	case SectionStyle:
		for k, v := range fields {
			score := rawScore(v)
			switch k {
			case "formality":
				d.Style.Formality = score
			case "pace":
				d.Style.Pace = score
			case "calm":
				d.Style.Calm = score
			case "introvert":
				d.Style.Introvert = score
			case "empathy":
				d.Style.Empathy = score
			case "humor":
				d.Style.Humor = score
			case "creativity":
				d.Style.Creativity = score
			case "directness":
				d.Style.Directness = score
			default:
				return fmt.Errorf("unknown style field %q", k)
			}
		}
	case SectionBrain:
		for k, v := range fields {
			switch k {
			case "id":
				d.Brain.ID = asString(v)
			case "instructions":
				d.Brain.Instructions = asString(v)
			default:
				return fmt.Errorf("unknown brain field %q", k)
			}
		}
	case SectionBackground:
		for k, v := range fields {
			switch k {
			case "background_id":
				d.Background.BackgroundID = asStringPtr(v)
			default:
				return fmt.Errorf("unknown background field %q", k)
			}
		}
	default:
		return fmt.Errorf("unknown section %q", section)
	}
	return nil
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func asStringPtr(v any) *string {
	if v == nil {
		return nil
	}
	s := asString(v)
	if s == "" {
		return nil
	}
	return &s
}

// rawScore converts a patch value to an int without clamping; clamping
// happens when the submission payload is built.
func rawScore(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return domain.StyleDefault
		}
		return int(math.Round(n))
	default:
		return domain.StyleDefault
	}
}
