package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
)

// fakeConnections records calls and simulates the server collection.
type fakeConnections struct {
	nextID  int64
	rows    map[int64]Connection
	order   []int64
	creates int
	updates int
	deletes int
	lists   int
	failOn  string
	// when conflictKeys is set, creates for those provider#ext keys
	// return a conflict error.
	conflictKeys map[string]bool
}

func newFakeConnections() *fakeConnections {
	return &fakeConnections{nextID: 1, rows: map[int64]Connection{}}
}

type fakeConflict struct{}

func (fakeConflict) Error() string  { return "conflict" }
func (fakeConflict) Conflict() bool { return true }

func (f *fakeConnections) seed(c Connection) Connection {
	c.ID = f.nextID
	f.nextID++
	f.rows[c.ID] = c
	f.order = append(f.order, c.ID)
	return c
}

func (f *fakeConnections) ListConnections(ctx context.Context, agentID string) ([]Connection, error) {
	f.lists++
	if f.failOn == "list" {
		return nil, errors.New("list failed")
	}
	var out []Connection
	for _, id := range f.order {
		if c, ok := f.rows[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConnections) CreateConnection(ctx context.Context, agentID string, c Connection) (Connection, error) {
	f.creates++
	if f.failOn == "create" {
		return Connection{}, errors.New("create failed")
	}
	key := c.ProviderID + "#" + c.ExtID
	if f.conflictKeys[key] {
		return Connection{}, fakeConflict{}
	}
	// The real server enforces UNIQUE(provider, ext) over live rows.
	for _, id := range f.order {
		if e, ok := f.rows[id]; ok && e.ProviderID+"#"+e.ExtID == key {
			return Connection{}, fakeConflict{}
		}
	}
	c.TempID = ""
	return f.seed(c), nil
}

func (f *fakeConnections) UpdateConnection(ctx context.Context, agentID string, id int64, c Connection) (Connection, error) {
	f.updates++
	if f.failOn == "update" {
		return Connection{}, errors.New("update failed")
	}
	existing, ok := f.rows[id]
	if !ok {
		return Connection{}, errors.New("not found")
	}
	existing.Status = c.Status
	existing.Config = c.Config
	existing.Token = c.Token
	f.rows[id] = existing
	return existing, nil
}

func (f *fakeConnections) DeleteConnection(ctx context.Context, agentID string, id int64) error {
	f.deletes++
	if f.failOn == "delete" {
		return errors.New("delete failed")
	}
	if _, ok := f.rows[id]; !ok {
		return errors.New("not found")
	}
	delete(f.rows, id)
	return nil
}

func quietReconciler(svc ConnectionService) Reconciler {
	return Reconciler{Service: svc, Logger: log.New(io.Discard, "", 0)}
}

func TestReconcileNoOp(t *testing.T) {
	svc := newFakeConnections()
	a := svc.seed(Connection{ProviderID: "gmail", ExtID: "gmail", Status: "connected"})
	b := svc.seed(Connection{ProviderID: "slack", ExtID: "slack", Status: "needs_setup"})

	before := []Connection{a, b}
	after := []Connection{a, b}
	final, delta, err := quietReconciler(svc).Reconcile(context.Background(), "agent-1", before, after)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if svc.creates != 0 || svc.updates != 0 || svc.deletes != 0 {
		t.Fatalf("expected zero calls, got c=%d u=%d d=%d", svc.creates, svc.updates, svc.deletes)
	}
	if len(delta.Created) != 0 || len(delta.Updated) != 0 || len(delta.Deleted) != 0 {
		t.Fatalf("expected empty delta, got %+v", delta)
	}
	if len(final) != 2 || final[0].ID != a.ID || final[1].ID != b.ID {
		t.Fatalf("final list changed: %+v", final)
	}
}

func TestReconcileCreates(t *testing.T) {
	svc := newFakeConnections()
	after := []Connection{
		tempConnection("gmail", 1),
		tempConnection("slack", 2),
	}
	final, delta, err := quietReconciler(svc).Reconcile(context.Background(), "agent-1", nil, after)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if svc.creates != 2 || svc.updates != 0 || svc.deletes != 0 {
		t.Fatalf("expected 2 creates only, got c=%d u=%d d=%d", svc.creates, svc.updates, svc.deletes)
	}
	if len(delta.Created) != 2 {
		t.Fatalf("expected 2 created, got %d", len(delta.Created))
	}
	if len(final) != 2 {
		t.Fatalf("expected 2 final connections, got %d", len(final))
	}
	for _, c := range final {
		if c.ID == 0 {
			t.Fatalf("connection %s still has no server id", c.ProviderID)
		}
		if c.TempID != "" {
			t.Fatalf("connection %s kept temp id %s", c.ProviderID, c.TempID)
		}
	}
	if final[0].ProviderID != "gmail" || final[1].ProviderID != "slack" {
		t.Fatalf("order not preserved: %+v", final)
	}
}

func TestReconcileDeletes(t *testing.T) {
	svc := newFakeConnections()
	a := svc.seed(Connection{ProviderID: "gmail", ExtID: "gmail", Status: "connected"})
	b := svc.seed(Connection{ProviderID: "slack", ExtID: "slack", Status: "connected"})

	final, delta, err := quietReconciler(svc).Reconcile(context.Background(), "agent-1", []Connection{a, b}, nil)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if svc.deletes != 2 || svc.creates != 0 || svc.updates != 0 {
		t.Fatalf("expected 2 deletes only, got c=%d u=%d d=%d", svc.creates, svc.updates, svc.deletes)
	}
	if len(delta.Deleted) != 2 || delta.Deleted[0] != a.ID || delta.Deleted[1] != b.ID {
		t.Fatalf("wrong deleted ids: %v", delta.Deleted)
	}
	if len(final) != 0 {
		t.Fatalf("expected empty final list, got %+v", final)
	}
}

func TestReconcileUpdateDetection(t *testing.T) {
	svc := newFakeConnections()
	orig := svc.seed(Connection{ProviderID: "gmail", ExtID: "gmail", Status: "needs_setup"})

	edited := orig
	edited.Status = "connected"
	final, delta, err := quietReconciler(svc).Reconcile(context.Background(), "agent-1", []Connection{orig}, []Connection{edited})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if svc.updates != 1 || svc.creates != 0 || svc.deletes != 0 {
		t.Fatalf("expected 1 update only, got c=%d u=%d d=%d", svc.creates, svc.updates, svc.deletes)
	}
	if len(delta.Updated) != 1 || delta.Updated[0].Status != "connected" {
		t.Fatalf("wrong updated delta: %+v", delta.Updated)
	}
	if final[0].Status != "connected" {
		t.Fatalf("final record not refreshed: %+v", final[0])
	}
}

func TestReconcileEqualByDefaults(t *testing.T) {
	svc := newFakeConnections()
	orig := svc.seed(Connection{ProviderID: "gmail", ExtID: "gmail", Status: "needs_setup"})

	// Empty status and ext id default to needs_setup / provider id, so
	// this compares equal and issues nothing.
	edited := Connection{ID: orig.ID, ProviderID: "gmail"}
	_, _, err := quietReconciler(svc).Reconcile(context.Background(), "agent-1", []Connection{orig}, []Connection{edited})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if svc.creates+svc.updates+svc.deletes != 0 {
		t.Fatalf("expected zero calls, got c=%d u=%d d=%d", svc.creates, svc.updates, svc.deletes)
	}
}

func TestReconcileMixedCreateAndDelete(t *testing.T) {
	svc := newFakeConnections()
	gmail := svc.seed(Connection{ProviderID: "gmail", ExtID: "gmail", Status: "connected"})

	after := []Connection{tempConnection("slack", 7)}
	final, delta, err := quietReconciler(svc).Reconcile(context.Background(), "agent-1", []Connection{gmail}, after)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if svc.creates != 1 || svc.deletes != 1 || svc.updates != 0 {
		t.Fatalf("expected 1 create + 1 delete, got c=%d u=%d d=%d", svc.creates, svc.updates, svc.deletes)
	}
	if len(delta.Deleted) != 1 || delta.Deleted[0] != gmail.ID {
		t.Fatalf("wrong deleted ids: %v", delta.Deleted)
	}
	if len(final) != 1 || final[0].ProviderID != "slack" || final[0].ID == 0 {
		t.Fatalf("unexpected final list: %+v", final)
	}
}

func TestReconcileConflictAdoptsExisting(t *testing.T) {
	svc := newFakeConnections()
	existing := svc.seed(Connection{ProviderID: "gmail", ExtID: "gmail", Status: "connected"})
	svc.conflictKeys = map[string]bool{"gmail#gmail": true}

	// The client never saw the earlier create land, so it retries with a
	// temp record; the conflict resolves to the existing row.
	after := []Connection{tempConnection("gmail", 3)}
	final, delta, err := quietReconciler(svc).Reconcile(context.Background(), "agent-1", nil, after)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(final) != 1 || final[0].ID != existing.ID {
		t.Fatalf("expected adopted row %d, got %+v", existing.ID, final)
	}
	if len(delta.Created) != 1 || delta.Created[0].ID != existing.ID {
		t.Fatalf("expected adopted row in delta, got %+v", delta.Created)
	}
	if svc.lists != 1 {
		t.Fatalf("expected one list call for adoption, got %d", svc.lists)
	}
}

func TestReconcileReaddKeepsPersistedRow(t *testing.T) {
	svc := newFakeConnections()
	orig := svc.seed(Connection{ProviderID: "gmail", ExtID: "gmail", Status: "connected"})

	// Removing a persisted row and re-adding the same provider in one
	// session resolves to the persisted row; a delete plus a same-key
	// create would collide with the unique constraint and lose the row.
	after := []Connection{tempConnection("gmail", 4)}
	final, delta, err := quietReconciler(svc).Reconcile(context.Background(), "agent-1", []Connection{orig}, after)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if svc.deletes != 0 || svc.creates != 0 || svc.updates != 1 {
		t.Fatalf("expected 1 update only, got c=%d u=%d d=%d", svc.creates, svc.updates, svc.deletes)
	}
	if len(delta.Deleted) != 0 || len(delta.Created) != 0 || len(delta.Updated) != 1 {
		t.Fatalf("unexpected delta: %+v", delta)
	}
	if len(final) != 1 || final[0].ID != orig.ID || final[0].Status != "needs_setup" {
		t.Fatalf("unexpected final list: %+v", final)
	}
	if _, ok := svc.rows[orig.ID]; !ok {
		t.Fatal("persisted row lost")
	}
}

func TestReconcileMatchesMissingIDByBusinessKey(t *testing.T) {
	svc := newFakeConnections()
	orig := svc.seed(Connection{ProviderID: "gmail", ExtID: "gmail", Status: "connected"})

	// Same record with the id stripped: the business key still matches
	// the persisted row, so nothing is issued.
	edited := orig
	edited.ID = 0
	final, delta, err := quietReconciler(svc).Reconcile(context.Background(), "agent-1", []Connection{orig}, []Connection{edited})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if svc.creates+svc.updates+svc.deletes != 0 {
		t.Fatalf("expected zero calls, got c=%d u=%d d=%d", svc.creates, svc.updates, svc.deletes)
	}
	if len(delta.Created)+len(delta.Updated)+len(delta.Deleted) != 0 {
		t.Fatalf("expected empty delta, got %+v", delta)
	}
	if len(final) != 1 || final[0].ID != orig.ID {
		t.Fatalf("final should carry the persisted id, got %+v", final)
	}
}

func TestReconcileDeleteRunsBeforeCreate(t *testing.T) {
	svc := newFakeConnections()
	old := svc.seed(Connection{ProviderID: "gmail", ExtID: "gmail", Status: "connected"})

	// A replacement row under the same unique key from a stale snapshot:
	// the delete must land first or the create conflicts against the row
	// that is about to go away.
	replacement := Connection{ID: 42, ProviderID: "gmail", ExtID: "gmail", Status: "needs_setup"}
	final, delta, err := quietReconciler(svc).Reconcile(context.Background(), "agent-1", []Connection{old}, []Connection{replacement})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if svc.deletes != 1 || svc.creates != 1 || svc.lists != 0 {
		t.Fatalf("expected delete then clean create, got c=%d d=%d lists=%d", svc.creates, svc.deletes, svc.lists)
	}
	if len(delta.Deleted) != 1 || delta.Deleted[0] != old.ID {
		t.Fatalf("wrong deleted ids: %v", delta.Deleted)
	}
	if len(final) != 1 || final[0].ID == 0 || final[0].ID == old.ID {
		t.Fatalf("unexpected final list: %+v", final)
	}
	if len(svc.rows) != 1 {
		t.Fatalf("expected exactly one server row, got %d", len(svc.rows))
	}
}

func TestReconcileAdoptionRefreshesFields(t *testing.T) {
	svc := newFakeConnections()
	existing := svc.seed(Connection{ProviderID: "gmail", ExtID: "gmail", Status: "error"})

	// Conflict against a row the client never saw: adopt it, then push
	// the edited fields so they are not silently replaced by the old
	// record.
	edited := tempConnection("gmail", 6)
	token := "tok-9"
	edited.Token = &token
	final, delta, err := quietReconciler(svc).Reconcile(context.Background(), "agent-1", nil, []Connection{edited})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if svc.updates != 1 || svc.lists != 1 {
		t.Fatalf("expected adoption update, got updates=%d lists=%d", svc.updates, svc.lists)
	}
	if len(final) != 1 || final[0].ID != existing.ID || final[0].Status != "needs_setup" {
		t.Fatalf("unexpected final list: %+v", final)
	}
	if final[0].Token == nil || *final[0].Token != token {
		t.Fatalf("edited token lost on adoption: %+v", final[0])
	}
	if len(delta.Created) != 1 || delta.Created[0].Status != "needs_setup" {
		t.Fatalf("unexpected created delta: %+v", delta.Created)
	}
}

func TestReconcileDuplicateKeysLastWins(t *testing.T) {
	svc := newFakeConnections()
	first := tempConnection("slack", 1)
	second := tempConnection("slack", 2)
	token := "xoxb-123"
	second.Token = &token

	final, _, err := quietReconciler(svc).Reconcile(context.Background(), "agent-1", nil, []Connection{first, second})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if svc.creates != 1 {
		t.Fatalf("expected a single create for duplicate keys, got %d", svc.creates)
	}
	if len(final) != 1 || final[0].Token == nil || *final[0].Token != token {
		t.Fatalf("expected the last duplicate to win, got %+v", final)
	}
}

func TestReconcilePropagatesFailure(t *testing.T) {
	svc := newFakeConnections()
	svc.failOn = "create"
	after := []Connection{tempConnection("gmail", 1)}
	if _, _, err := quietReconciler(svc).Reconcile(context.Background(), "agent-1", nil, after); err == nil {
		t.Fatal("expected create failure to propagate")
	}
}

func TestConnectionEqualConfigDeepCompare(t *testing.T) {
	a := Connection{ProviderID: "slack", Config: map[string]any{"channel": "general", "depth": 2}}
	b := Connection{ProviderID: "slack", Config: map[string]any{"depth": 2, "channel": "general"}}
	if !connectionEqual(a, b) {
		t.Fatal("reordered config keys should compare equal")
	}
	b.Config["depth"] = 3
	if connectionEqual(a, b) {
		t.Fatal("changed config should not compare equal")
	}
	c := Connection{ProviderID: "slack"}
	d := Connection{ProviderID: "slack", Config: map[string]any{}}
	if !connectionEqual(c, d) {
		t.Fatal("nil and empty config should compare equal")
	}
}

// tempConnection builds a temp connection with a deterministic
// temp id for tests.
func tempConnection(providerID string, n int64) Connection {
	c := Connection{
		TempID:     fmt.Sprintf("tmp:%s:%d", providerID, n),
		ProviderID: providerID,
		ExtID:      providerID,
		Status:     "needs_setup",
	}
	return c
}
