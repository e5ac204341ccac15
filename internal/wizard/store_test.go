package wizard

import (
	"testing"
	"time"
)

func newTestStore() (*Store, *MemoryStorage) {
	storage := NewMemoryStorage()
	store := NewStore(storage, "draft")
	store.SetDelay(time.Millisecond)
	return store, storage
}

func TestStepNavigationBoundaries(t *testing.T) {
	store, _ := newTestStore()

	store.PreviousStep()
	if got := store.CurrentStep(); got != StepIdentity {
		t.Fatalf("previous at first step moved to %s", got)
	}

	for range Steps {
		store.NextStep()
	}
	if got := store.CurrentStep(); got != StepConnections {
		t.Fatalf("expected to clamp at last step, got %s", got)
	}
	store.NextStep()
	if got := store.CurrentStep(); got != StepConnections {
		t.Fatalf("next at last step moved to %s", got)
	}
}

func TestGoToStepIdempotent(t *testing.T) {
	store, _ := newTestStore()
	if err := store.GoToStep(StepBrain); err != nil {
		t.Fatalf("goto: %v", err)
	}
	stamp := store.Document().UpdatedAt
	if err := store.GoToStep(StepBrain); err != nil {
		t.Fatalf("goto same step: %v", err)
	}
	if got := store.Document().UpdatedAt; !got.Equal(stamp) {
		t.Fatal("goto to the current step bumped the document")
	}
	if err := store.GoToStep("nope"); err == nil {
		t.Fatal("expected error for unknown step")
	}
}

func TestPatchSection(t *testing.T) {
	store, _ := newTestStore()
	if err := store.PatchSection(SectionIdentity, map[string]any{"name": "Ada", "role": "Support"}); err != nil {
		t.Fatalf("patch identity: %v", err)
	}
	if err := store.PatchSection(SectionStyle, map[string]any{"formality": 13}); err != nil {
		t.Fatalf("patch style: %v", err)
	}
	doc := store.Document()
	if doc.Identity.Name != "Ada" || doc.Identity.Role != "Support" {
		t.Fatalf("identity not merged: %+v", doc.Identity)
	}
	// The store keeps the raw value; clamping happens in the submit
	// mapper.
	if doc.Style.Formality != 13 {
		t.Fatalf("expected raw 13 in store, got %d", doc.Style.Formality)
	}
	if doc.Style.Humor != 5 {
		t.Fatalf("untouched slider changed: %d", doc.Style.Humor)
	}
	if err := store.PatchSection("bogus", map[string]any{"x": 1}); err == nil {
		t.Fatal("expected error for unknown section")
	}
}

func TestDebouncedPersistAndHydrate(t *testing.T) {
	store, storage := newTestStore()
	if err := store.PatchSection(SectionIdentity, map[string]any{"name": "Ada"}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := storage.Get("draft"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("debounced persist never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}

	reloaded := NewStore(storage, "draft")
	reloaded.Hydrate("")
	if got := reloaded.Document().Identity.Name; got != "Ada" {
		t.Fatalf("hydrated name %q", got)
	}
}

func TestHydrateStepHintWins(t *testing.T) {
	store, storage := newTestStore()
	if err := store.GoToStep(StepBrain); err != nil {
		t.Fatalf("goto: %v", err)
	}
	store.Flush()

	withHint := NewStore(storage, "draft")
	withHint.Hydrate(StepConnections)
	if got := withHint.CurrentStep(); got != StepConnections {
		t.Fatalf("step hint ignored, got %s", got)
	}

	withoutHint := NewStore(storage, "draft")
	withoutHint.Hydrate("")
	if got := withoutHint.CurrentStep(); got != StepBrain {
		t.Fatalf("persisted step not restored, got %s", got)
	}
}

func TestHydrateOnlyOnce(t *testing.T) {
	store, storage := newTestStore()
	if err := store.PatchSection(SectionIdentity, map[string]any{"name": "Ada"}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	store.Flush()

	reloaded := NewStore(storage, "draft")
	reloaded.Hydrate("")
	if err := reloaded.PatchSection(SectionIdentity, map[string]any{"name": "Grace"}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	reloaded.Hydrate("")
	if got := reloaded.Document().Identity.Name; got != "Grace" {
		t.Fatalf("second hydrate clobbered edits, got %q", got)
	}
}

func TestHydrateSwallowsBadDraft(t *testing.T) {
	storage := NewMemoryStorage()
	storage.Set("draft", "{not json")
	store := NewStore(storage, "draft")
	store.Hydrate(StepVoiceSoul)
	doc := store.Document()
	if doc.CurrentStep != StepVoiceSoul {
		t.Fatalf("step hint lost on bad draft, got %s", doc.CurrentStep)
	}
	if doc.Style.Formality != 5 {
		t.Fatalf("defaults lost on bad draft: %+v", doc.Style)
	}
}

func TestResetClearsDraft(t *testing.T) {
	store, storage := newTestStore()
	if err := store.PatchSection(SectionIdentity, map[string]any{"name": "Ada"}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	store.SetEntityID("agent-1")
	store.Flush()
	oldDraftID := store.Document().DraftID

	store.Reset()
	if _, ok := storage.Get("draft"); ok {
		t.Fatal("reset left the draft behind")
	}
	doc := store.Document()
	if doc.EntityID != "" || doc.Identity.Name != "" || doc.CurrentStep != StepIdentity {
		t.Fatalf("reset left state behind: %+v", doc)
	}
	if doc.DraftID == "" || doc.DraftID == oldDraftID {
		t.Fatalf("reset should mint a fresh draft id, got %q", doc.DraftID)
	}
}

func TestDraftIDSurvivesReload(t *testing.T) {
	store, storage := newTestStore()
	id := store.Document().DraftID
	if id == "" {
		t.Fatal("new document has no draft id")
	}
	store.Flush()

	reloaded := NewStore(storage, "draft")
	reloaded.Hydrate("")
	if got := reloaded.Document().DraftID; got != id {
		t.Fatalf("draft id changed across reload: %q vs %q", got, id)
	}
}

func TestRemoveConnection(t *testing.T) {
	store, _ := newTestStore()
	tmp := NewTempConnection("slack", time.Unix(0, 42))
	store.AddConnection(tmp)
	store.AddConnection(Connection{ID: 9, ProviderID: "gmail", ExtID: "gmail", Status: "connected"})

	if !store.RemoveConnection(0, tmp.TempID) {
		t.Fatal("temp connection not removed")
	}
	if !store.RemoveConnection(9, "") {
		t.Fatal("persisted connection not removed")
	}
	if store.RemoveConnection(9, "") {
		t.Fatal("removing twice should report false")
	}
	if got := len(store.Document().Connections); got != 0 {
		t.Fatalf("expected empty connections, got %d", got)
	}
}
