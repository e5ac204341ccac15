package wizard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"futurehuman/internal/domain"
)

// AgentData is the server-shaped agent the controller exchanges with
// the agent service.
type AgentData struct {
	ID         string
	Identity   domain.Identity
	Appearance domain.Appearance
	Voice      domain.Voice
	Style      domain.Style
	Brain      domain.Brain
	Background domain.Background
}

// AgentService is the server-side agent resource.
type AgentService interface {
	GetAgent(ctx context.Context, id string) (AgentData, error)
	CreateAgent(ctx context.Context, data AgentData) (AgentData, error)
	UpdateAgent(ctx context.Context, id string, data AgentData) (AgentData, error)
}

// ErrStaleLoad marks a LoadForEdit whose response arrived after a newer
// load started; its result was discarded.
var ErrStaleLoad = errors.New("load superseded by a newer one")

// Controller drives the store and the server resources together: load
// on edit entry, local saves, and the submit that flushes the document
// and reconciles connections.
type Controller struct {
	store  *Store
	agents AgentService
	conns  ConnectionService
	logger *log.Logger

	mu         sync.Mutex
	generation uint64
	snapshot   []Connection
}

func NewController(store *Store, agents AgentService, conns ConnectionService, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		store:  store,
		agents: agents,
		conns:  conns,
		logger: logger,
	}
}

// Store exposes the underlying store for navigation and direct edits.
func (c *Controller) Store() *Store { return c.store }

// Snapshot returns the last known server connection state.
func (c *Controller) Snapshot() []Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneConnections(c.snapshot)
}

// LoadForEdit fetches the agent and its connections and overwrites the
// store's sections with server truth. The current step is left alone.
// Each call supersedes any in-flight one; a superseded call returns
// ErrStaleLoad without touching the store.
func (c *Controller) LoadForEdit(ctx context.Context, entityID string) error {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	agent, err := c.agents.GetAgent(ctx, entityID)
	if err != nil {
		return fmt.Errorf("load agent %s: %w", entityID, err)
	}
	conns, err := c.conns.ListConnections(ctx, entityID)
	if err != nil {
		return fmt.Errorf("load connections for %s: %w", entityID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return ErrStaleLoad
	}
	c.snapshot = cloneConnections(conns)
	c.store.ReplaceSections(documentFromServer(agent, conns))
	return nil
}

// RefreshSnapshot re-fetches the server connection state for the
// current entity without touching the document. Call sites that run
// Submit in a fresh process use this to rebuild the diff baseline.
func (c *Controller) RefreshSnapshot(ctx context.Context) error {
	doc := c.store.Document()
	if doc.EntityID == "" {
		return nil
	}
	conns, err := c.conns.ListConnections(ctx, doc.EntityID)
	if err != nil {
		return fmt.Errorf("refresh connections for %s: %w", doc.EntityID, err)
	}
	c.mu.Lock()
	c.snapshot = cloneConnections(conns)
	c.mu.Unlock()
	return nil
}

// Save applies a section patch locally. Nothing goes to the network
// until Submit.
func (c *Controller) Save(section string, fields map[string]any) error {
	return c.store.PatchSection(section, fields)
}

// Submit assembles the submission payload, creates or updates the
// agent, then reconciles the connections section against the last
// server snapshot. On success the reconciled list replaces the store's
// connections, the snapshot is refreshed and the local draft is
// cleared. On failure the in-memory document and the draft are left
// intact for a retry.
func (c *Controller) Submit(ctx context.Context) (Document, error) {
	doc := c.store.Document()
	payload, err := payloadFromDocument(doc)
	if err != nil {
		return Document{}, err
	}

	entityID := doc.EntityID
	var before []Connection
	if entityID == "" {
		created, err := c.agents.CreateAgent(ctx, payload)
		if err != nil {
			return Document{}, fmt.Errorf("create agent: %w", err)
		}
		entityID = created.ID
	} else {
		if _, err := c.agents.UpdateAgent(ctx, entityID, payload); err != nil {
			return Document{}, fmt.Errorf("update agent %s: %w", entityID, err)
		}
		before = c.Snapshot()
	}

	rec := Reconciler{Service: c.conns, Logger: c.logger}
	final, _, err := rec.Reconcile(ctx, entityID, before, doc.Connections)
	if err != nil {
		return Document{}, fmt.Errorf("reconcile connections: %w", err)
	}

	c.mu.Lock()
	c.snapshot = cloneConnections(final)
	c.mu.Unlock()
	c.store.SetEntityID(entityID)
	c.store.SetConnections(final)
	c.store.ClearDraft()
	return c.store.Document(), nil
}

// payloadFromDocument builds the server payload, clamping style scores
// and normalizing the background color. Fails fast before any network
// call when required fields are missing.
func payloadFromDocument(doc Document) (AgentData, error) {
	if doc.Identity.Name == "" {
		return AgentData{}, errors.New("identity name is required")
	}
	if doc.Brain.ID == "" {
		return AgentData{}, errors.New("brain id is required")
	}
	appearance := doc.Appearance
	if appearance.BackgroundColor != nil {
		appearance.BackgroundColor = domain.NormalizeHexColor(*appearance.BackgroundColor)
	}
	return AgentData{
		ID:         doc.EntityID,
		Identity:   doc.Identity,
		Appearance: appearance,
		Voice:      doc.Voice,
		Style:      doc.Style.Clamp(),
		Brain:      doc.Brain,
		Background: doc.Background,
	}, nil
}

// documentFromServer maps a server agent into document sections,
// coercing style scores and defaulting nulls so every section is fully
// shaped.
func documentFromServer(agent AgentData, conns []Connection) Document {
	doc := NewDocument()
	doc.EntityID = agent.ID
	doc.Identity = agent.Identity
	doc.Appearance = agent.Appearance
	if doc.Appearance.BackgroundColor != nil {
		doc.Appearance.BackgroundColor = domain.NormalizeHexColor(*doc.Appearance.BackgroundColor)
	}
	doc.Voice = agent.Voice
	doc.Style = agent.Style.Clamp()
	doc.Brain = agent.Brain
	doc.Background = agent.Background
	doc.Connections = cloneConnections(conns)
	return doc
}
