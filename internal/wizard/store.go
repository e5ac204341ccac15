package wizard

import (
	"encoding/json"
	"sync"
	"time"
)

// PersistDelay coalesces rapid edits into one draft write.
const PersistDelay = 200 * time.Millisecond

// Store holds the in-progress document and autosaves it, debounced, to
// a draft store. The in-memory document always reflects the latest
// patch immediately; durability is eventual.
type Store struct {
	mu       sync.Mutex
	doc      Document
	storage  Storage
	key      string
	delay    time.Duration
	timer    *time.Timer
	hydrated bool
	now      func() time.Time
}

// NewStore creates a store over the given draft storage and key.
func NewStore(storage Storage, key string) *Store {
	return &Store{
		doc:     NewDocument(),
		storage: storage,
		key:     key,
		delay:   PersistDelay,
		now:     time.Now,
	}
}

// SetDelay overrides the autosave debounce, for tests.
func (s *Store) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// SetNow overrides the clock, for tests.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Document returns a copy of the current document.
func (s *Store) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.clone()
}

// CurrentStep returns the active step.
func (s *Store) CurrentStep() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.CurrentStep
}

// PatchSection shallow-merges fields into the named section. No
// clamping or normalization happens here; the submission mapper owns
// that.
func (s *Store) PatchSection(section string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.doc.applyPatch(section, fields); err != nil {
		return err
	}
	s.touchLocked()
	return nil
}

// SetConnections replaces the connections section.
func (s *Store) SetConnections(conns []Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Connections = cloneConnections(conns)
	s.touchLocked()
}

// AddConnection appends a connection to the section.
func (s *Store) AddConnection(c Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Connections = append(s.doc.Connections, c)
	s.touchLocked()
}

// RemoveConnection drops the connection matching the server id or, for
// unpersisted records, the temp id. Reports whether anything changed.
func (s *Store) RemoveConnection(id int64, tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.doc.Connections[:0]
	removed := false
	for _, c := range s.doc.Connections {
		match := (id != 0 && c.ID == id) || (tempID != "" && c.TempID == tempID)
		if match {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	if removed {
		s.doc.Connections = kept
		s.touchLocked()
	}
	return removed
}

// SetEntityID records the server-assigned id.
func (s *Store) SetEntityID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.EntityID == id {
		return
	}
	s.doc.EntityID = id
	s.touchLocked()
}

// GoToStep activates the given step. Going to the current step is a
// no-op; navigation is free in both directions.
func (s *Store) GoToStep(step Step) error {
	if !ValidStep(step) {
		return &UnknownStepError{Step: step}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.CurrentStep == step {
		return nil
	}
	s.doc.CurrentStep = step
	s.touchLocked()
	return nil
}

// NextStep advances one step, clamped at the end of the sequence.
func (s *Store) NextStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := stepIndex(s.doc.CurrentStep)
	if i < 0 || i >= len(Steps)-1 {
		return
	}
	s.doc.CurrentStep = Steps[i+1]
	s.touchLocked()
}

// PreviousStep goes back one step, clamped at the start.
func (s *Store) PreviousStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := stepIndex(s.doc.CurrentStep)
	if i <= 0 {
		return
	}
	s.doc.CurrentStep = Steps[i-1]
	s.touchLocked()
}

// Hydrate loads a previously saved draft on first call. stepHint, when
// valid, wins over the persisted step so a reload resumes where the
// route points; otherwise the persisted step is restored. Subsequent
// calls are no-ops.
func (s *Store) Hydrate(stepHint Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hydrated {
		return
	}
	s.hydrated = true
	raw, ok := s.storage.Get(s.key)
	if !ok {
		if ValidStep(stepHint) {
			s.doc.CurrentStep = stepHint
		}
		return
	}
	var saved Document
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		if ValidStep(stepHint) {
			s.doc.CurrentStep = stepHint
		}
		return
	}
	if saved.Connections == nil {
		saved.Connections = []Connection{}
	}
	switch {
	case ValidStep(stepHint):
		saved.CurrentStep = stepHint
	case !ValidStep(saved.CurrentStep):
		saved.CurrentStep = StepIdentity
	}
	s.doc = saved
}

// ReplaceSections overwrites every data section with server truth,
// leaving the current step where it is.
func (s *Store) ReplaceSections(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := s.doc.CurrentStep
	s.doc.EntityID = doc.EntityID
	s.doc.Identity = doc.Identity
	s.doc.Appearance = doc.Appearance
	s.doc.Voice = doc.Voice
	s.doc.Style = doc.Style
	s.doc.Brain = doc.Brain
	s.doc.Background = doc.Background
	s.doc.Connections = cloneConnections(doc.Connections)
	s.doc.CurrentStep = step
	s.touchLocked()
}

// Persist writes the draft immediately and cancels any pending
// debounced write.
func (s *Store) Persist() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistLocked()
}

// Flush is an alias for Persist, for call sites that drain before
// exiting.
func (s *Store) Flush() {
	s.Persist()
}

// ClearDraft removes the saved draft and cancels pending writes. The
// in-memory document is untouched.
func (s *Store) ClearDraft() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.storage.Remove(s.key)
}

// Reset restores all sections to defaults and clears the draft.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.doc = NewDocument()
	s.storage.Remove(s.key)
}

// touchLocked bumps UpdatedAt and schedules a debounced draft write.
// Callers hold the mutex.
func (s *Store) touchLocked() {
	s.doc.UpdatedAt = s.now()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.persistLocked()
	})
}

func (s *Store) persistLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	b, err := json.Marshal(s.doc)
	if err != nil {
		return
	}
	s.storage.Set(s.key, string(b))
}

// UnknownStepError reports a step outside the wizard sequence.
type UnknownStepError struct {
	Step Step
}

func (e *UnknownStepError) Error() string {
	return "unknown wizard step " + string(e.Step)
}
