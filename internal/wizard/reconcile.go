package wizard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
)

// ConnectionService is the server-side connection collection the
// reconciler applies its delta to.
type ConnectionService interface {
	ListConnections(ctx context.Context, agentID string) ([]Connection, error)
	CreateConnection(ctx context.Context, agentID string, c Connection) (Connection, error)
	UpdateConnection(ctx context.Context, agentID string, id int64, c Connection) (Connection, error)
	DeleteConnection(ctx context.Context, agentID string, id int64) error
}

// conflictError is implemented by service errors that map a unique-key
// conflict (HTTP 409).
type conflictError interface {
	Conflict() bool
}

func isConflict(err error) bool {
	var c conflictError
	return errors.As(err, &c) && c.Conflict()
}

// Delta describes the calls one reconciliation pass issued. Created and
// Updated carry the server's authoritative post-write records.
type Delta struct {
	Created []Connection
	Updated []Connection
	Deleted []int64
}

// Reconciler syncs an edited connection list against the server by
// diffing it with the last known server state.
type Reconciler struct {
	Service ConnectionService
	Logger  *log.Logger
}

func (r Reconciler) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

// connectionKey identifies a record for diffing: persisted records by
// durable id, unpersisted ones by business key.
func connectionKey(c Connection) string {
	if c.ID != 0 {
		return fmt.Sprintf("id:%d", c.ID)
	}
	return "k:" + c.ProviderID + "#" + c.extID()
}

// connectionEqual applies the diff equality rule: provider, ext id,
// status (defaulted) and the null-normalized config and token all
// match.
func connectionEqual(a, b Connection) bool {
	if a.ProviderID != b.ProviderID || a.extID() != b.extID() || a.status() != b.status() {
		return false
	}
	if !configEqual(a.Config, b.Config) {
		return false
	}
	return tokenEqual(a.Token, b.Token)
}

// configEqual deep-compares configs through their canonical JSON form,
// treating nil and empty maps as equal.
func configEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}

func tokenEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Reconcile diffs before (last known server state) against after (the
// edited list), applies creates, updates and deletes sequentially, and
// returns the after-shaped list with server records substituted for the
// ones it wrote. Any call failure aborts the pass; no compensation is
// attempted.
//
// A create that hits the server's unique (provider, ext) constraint
// adopts the existing server row instead of failing, so a retried
// submit whose earlier create did land does not duplicate records.
func (r Reconciler) Reconcile(ctx context.Context, agentID string, before, after []Connection) ([]Connection, Delta, error) {
	delta := Delta{}

	beforeMap := make(map[string]Connection, len(before))
	byBusiness := make(map[string]Connection, len(before))
	for _, c := range before {
		beforeMap[connectionKey(c)] = c
		if c.ID != 0 {
			byBusiness[c.ProviderID+"#"+c.extID()] = c
		}
	}

	// Last occurrence wins on duplicate keys in after; earlier ones are
	// skipped with a warning.
	lastIndex := make(map[string]int, len(after))
	for i, c := range after {
		key := connectionKey(c)
		if prev, dup := lastIndex[key]; dup {
			r.logger().Printf("wizard: duplicate connection key %s at positions %d and %d, last one wins", key, prev, i)
		}
		lastIndex[key] = i
	}

	// Resolve each surviving after entry to its before row: by diff key
	// first, then by business key so a record re-added without its id
	// reuses the persisted row instead of forcing a delete and a
	// same-key create.
	matched := make(map[int]Connection, len(after))
	keptIDs := make(map[int64]bool, len(before))
	for i, c := range after {
		key := connectionKey(c)
		if lastIndex[key] != i {
			continue
		}
		prev, ok := beforeMap[key]
		if !ok && c.ID == 0 {
			if p, found := byBusiness[c.ProviderID+"#"+c.extID()]; found {
				if _, claimed := lastIndex[connectionKey(p)]; !claimed {
					prev, ok = p, true
				}
			}
		}
		if !ok {
			continue
		}
		matched[i] = prev
		if prev.ID != 0 {
			keptIDs[prev.ID] = true
		}
	}

	// Deletes run first so a removed row's unique key is free for any
	// same-key create later in the pass.
	for _, c := range before {
		if c.ID == 0 || keptIDs[c.ID] {
			continue
		}
		if err := r.Service.DeleteConnection(ctx, agentID, c.ID); err != nil {
			return nil, delta, fmt.Errorf("delete connection %d: %w", c.ID, err)
		}
		delta.Deleted = append(delta.Deleted, c.ID)
	}

	// created/updated results keyed for the substitution pass.
	createdByBusinessKey := map[string]Connection{}
	updatedByID := map[int64]Connection{}

	for i, c := range after {
		key := connectionKey(c)
		if lastIndex[key] != i {
			continue
		}
		prev, exists := matched[i]
		if !exists {
			got, err := r.create(ctx, agentID, c)
			if err != nil {
				return nil, delta, err
			}
			delta.Created = append(delta.Created, got)
			createdByBusinessKey[got.ProviderID+"#"+got.extID()] = got
			continue
		}
		if prev.ID == 0 || connectionEqual(prev, c) {
			continue
		}
		got, err := r.Service.UpdateConnection(ctx, agentID, prev.ID, normalizeFields(c))
		if err != nil {
			return nil, delta, fmt.Errorf("update connection %d: %w", prev.ID, err)
		}
		delta.Updated = append(delta.Updated, got)
		updatedByID[got.ID] = got
	}

	// Rebuild the after-shaped list: create targets become their server
	// records (matched by business key), matched targets their refreshed
	// or persisted rows, everything else passes through.
	final := make([]Connection, 0, len(after))
	for i, c := range after {
		key := connectionKey(c)
		if lastIndex[key] != i {
			continue
		}
		prev, existed := matched[i]
		if !existed {
			if got, ok := createdByBusinessKey[c.ProviderID+"#"+c.extID()]; ok {
				final = append(final, got)
				continue
			}
		} else if got, ok := updatedByID[prev.ID]; ok {
			final = append(final, got)
			continue
		} else if c.ID == 0 && prev.ID != 0 {
			final = append(final, prev)
			continue
		}
		final = append(final, c)
	}
	return final, delta, nil
}

func (r Reconciler) create(ctx context.Context, agentID string, c Connection) (Connection, error) {
	got, err := r.Service.CreateConnection(ctx, agentID, normalizeFields(c))
	if err == nil {
		return got, nil
	}
	if !isConflict(err) {
		return Connection{}, fmt.Errorf("create connection %s: %w", c.ProviderID, err)
	}
	// The record already exists server-side, typically from a submit
	// whose response was lost. Adopt it; when the edited record differs
	// from the adopted row, push the edits with an update so adoption
	// never discards them.
	existing, listErr := r.Service.ListConnections(ctx, agentID)
	if listErr != nil {
		return Connection{}, fmt.Errorf("create connection %s: adopt after conflict: %w", c.ProviderID, listErr)
	}
	for _, e := range existing {
		if e.ProviderID != c.ProviderID || e.extID() != c.extID() {
			continue
		}
		r.logger().Printf("wizard: adopted existing connection %d for %s#%s after conflict", e.ID, c.ProviderID, c.extID())
		if connectionEqual(e, c) {
			return e, nil
		}
		got, upErr := r.Service.UpdateConnection(ctx, agentID, e.ID, normalizeFields(c))
		if upErr != nil {
			return Connection{}, fmt.Errorf("update adopted connection %d: %w", e.ID, upErr)
		}
		return got, nil
	}
	return Connection{}, fmt.Errorf("create connection %s: %w", c.ProviderID, err)
}

// normalizeFields fills the defaulted fields sent on create/update.
func normalizeFields(c Connection) Connection {
	c.ExtID = c.extID()
	c.Status = c.status()
	return c
}
