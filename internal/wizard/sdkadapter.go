package wizard

import (
	"context"
	"encoding/json"

	"futurehuman/internal/domain"
	fhsdk "futurehuman/sdk/go"
)

// SDKServices adapts the HTTP client to the wizard's service
// interfaces.
type SDKServices struct {
	Client *fhsdk.Client
}

var (
	_ AgentService      = SDKServices{}
	_ ConnectionService = SDKServices{}
)

func (s SDKServices) GetAgent(ctx context.Context, id string) (AgentData, error) {
	a, err := s.Client.GetAgent(ctx, id)
	if err != nil {
		return AgentData{}, err
	}
	return agentDataFromSDK(a), nil
}

func (s SDKServices) CreateAgent(ctx context.Context, data AgentData) (AgentData, error) {
	appearance := fhsdk.Appearance(data.Appearance)
	voice := fhsdk.Voice(data.Voice)
	style := fhsdk.Style(data.Style)
	background := fhsdk.Background(data.Background)
	a, err := s.Client.CreateAgent(ctx, fhsdk.AgentSections{
		Identity:   fhsdk.Identity(data.Identity),
		Appearance: &appearance,
		Voice:      &voice,
		Style:      &style,
		Brain:      fhsdk.Brain(data.Brain),
		Background: &background,
	})
	if err != nil {
		return AgentData{}, err
	}
	return agentDataFromSDK(a), nil
}

func (s SDKServices) UpdateAgent(ctx context.Context, id string, data AgentData) (AgentData, error) {
	identity := fhsdk.Identity(data.Identity)
	appearance := fhsdk.Appearance(data.Appearance)
	voice := fhsdk.Voice(data.Voice)
	style := fhsdk.Style(data.Style)
	brain := fhsdk.Brain(data.Brain)
	background := fhsdk.Background(data.Background)
	a, err := s.Client.UpdateAgent(ctx, id, fhsdk.AgentPatch{
		Identity:   &identity,
		Appearance: &appearance,
		Voice:      &voice,
		Style:      &style,
		Brain:      &brain,
		Background: &background,
	})
	if err != nil {
		return AgentData{}, err
	}
	return agentDataFromSDK(a), nil
}

func (s SDKServices) ListConnections(ctx context.Context, agentID string) ([]Connection, error) {
	items, err := s.Client.ListConnections(ctx, agentID)
	if err != nil {
		return nil, err
	}
	out := make([]Connection, 0, len(items))
	for _, c := range items {
		out = append(out, connectionFromSDK(c))
	}
	return out, nil
}

func (s SDKServices) CreateConnection(ctx context.Context, agentID string, c Connection) (Connection, error) {
	got, err := s.Client.CreateConnection(ctx, agentID, fhsdk.NewConnection{
		ProviderID: c.ProviderID,
		ExtID:      c.ExtID,
		Status:     c.Status,
		Config:     c.Config,
		Token:      c.Token,
	})
	if err != nil {
		return Connection{}, err
	}
	return connectionFromSDK(got), nil
}

func (s SDKServices) UpdateConnection(ctx context.Context, agentID string, id int64, c Connection) (Connection, error) {
	configRaw := json.RawMessage("null")
	if c.Config != nil {
		b, err := json.Marshal(c.Config)
		if err != nil {
			return Connection{}, err
		}
		configRaw = b
	}
	tokenRaw := json.RawMessage("null")
	if c.Token != nil {
		b, err := json.Marshal(*c.Token)
		if err != nil {
			return Connection{}, err
		}
		tokenRaw = b
	}
	got, err := s.Client.UpdateConnection(ctx, agentID, id, fhsdk.ConnectionPatch{
		Status: c.Status,
		Config: configRaw,
		Token:  tokenRaw,
	})
	if err != nil {
		return Connection{}, err
	}
	return connectionFromSDK(got), nil
}

func (s SDKServices) DeleteConnection(ctx context.Context, agentID string, id int64) error {
	return s.Client.DeleteConnection(ctx, agentID, id)
}

func agentDataFromSDK(a fhsdk.Agent) AgentData {
	return AgentData{
		ID:         a.ID,
		Identity:   domain.Identity(a.Identity),
		Appearance: domain.Appearance(a.Appearance),
		Voice:      domain.Voice(a.Voice),
		Style:      domain.Style(a.Style),
		Brain:      domain.Brain(a.Brain),
		Background: domain.Background(a.Background),
	}
}

func connectionFromSDK(c fhsdk.Connection) Connection {
	return Connection{
		ID:         c.ID,
		ProviderID: c.ProviderID,
		ExtID:      c.ExtID,
		Status:     c.Status,
		Config:     c.Config,
		Token:      c.Token,
	}
}
