// Package suggestion owns the list of machine-suggested key factor drafts
// and the editing sessions that lift items out of it.
//
// An item is Suggested while it sits in the ordered list, Editing while an
// EditingSession holds it, and Removed once rejected or accepted. Editing
// sessions remember the index they were pulled from and an immutable clone
// of the item; apply reinserts the edited draft and discard reinserts the
// clone, both at min(index, len(list)).
package suggestion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

var (
	// ErrIndexOutOfRange is returned for list positions that do not exist.
	ErrIndexOutOfRange = errors.New("suggestion: index out of range")
	// ErrSessionNotFound is returned for unknown editing session ids.
	ErrSessionNotFound = errors.New("suggestion: editing session not found")
)

// EditingSession is a suggestion lifted out of the list for hand editing.
type EditingSession struct {
	ID         int
	Draft      keyfactor.Draft
	Index      int
	ShowErrors bool

	original keyfactor.Draft
}

// Original returns a copy of the draft as it was before editing began.
func (s *EditingSession) Original() keyfactor.Draft {
	return s.original.Clone()
}

// Validation validates the working draft.
func (s *EditingSession) Validation() keyfactor.Validation {
	return keyfactor.Validate(s.Draft)
}

// Submitter sends a single draft for the accept fast path.
type Submitter func(ctx context.Context, d keyfactor.Draft) error

// Option customizes a Manager.
type Option func(*Manager)

// WithDismissHandler registers fn to run when the list empties out with no
// edit open and no load in flight.
func WithDismissHandler(fn func()) Option {
	return func(m *Manager) {
		m.onDismiss = fn
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Manager is safe for concurrent use; no lock is held while a Submitter runs.
type Manager struct {
	mu        sync.Mutex
	items     []keyfactor.Draft
	sessions  []*EditingSession
	nextID    int
	loading   bool
	onDismiss func()
	logger    *zap.Logger
}

// NewManager returns an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Items returns the current list. The slice is a copy; the drafts are the
// live values.
func (m *Manager) Items() []keyfactor.Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]keyfactor.Draft, len(m.items))
	copy(out, m.items)
	return out
}

// Len returns the number of suggested items.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// OfKind returns the listed drafts of kind.
func (m *Manager) OfKind(kind keyfactor.Kind) []keyfactor.Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return keyfactor.OfKind(m.items, kind)
}

// Sessions returns the open editing sessions in creation order.
func (m *Manager) Sessions() []*EditingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*EditingSession, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// Session looks up an open editing session.
func (m *Manager) Session(id int) (*EditingSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.sessionIndex(id)
	if idx < 0 {
		return nil, false
	}
	return m.sessions[idx], true
}

// Loading reports whether a load is in flight.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// SetLoading marks a load as started or finished.
func (m *Manager) SetLoading(loading bool) {
	m.mu.Lock()
	m.loading = loading
	m.mu.Unlock()
}

// Replace swaps in a freshly loaded list. Open editing sessions survive and
// reinsert into the new list when closed.
func (m *Manager) Replace(items []keyfactor.Draft) {
	next := make([]keyfactor.Draft, 0, len(items))
	for _, d := range items {
		if d != nil {
			next = append(next, d)
		}
	}
	m.mu.Lock()
	m.loading = false
	dismiss := m.setItemsLocked(next)
	m.mu.Unlock()
	m.fire(dismiss)
}

// PullForEditing removes item i and opens an editing session for it.
func (m *Manager) PullForEditing(i int) (*EditingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pullLocked(i, false)
}

func (m *Manager) pullLocked(i int, showErrors bool) (*EditingSession, error) {
	if i < 0 || i >= len(m.items) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	item := m.items[i]
	m.nextID++
	session := &EditingSession{
		ID:         m.nextID,
		Draft:      item,
		Index:      i,
		ShowErrors: showErrors,
		original:   item.Clone(),
	}
	m.sessions = append(m.sessions, session)
	next := make([]keyfactor.Draft, 0, len(m.items)-1)
	next = append(next, m.items[:i]...)
	next = append(next, m.items[i+1:]...)
	// an open session suppresses dismissal, so the result can be ignored
	m.setItemsLocked(next)
	m.logger.Debug("suggestion pulled for editing", zap.Int("session", session.ID), zap.Int("index", i))
	return session, nil
}

// Apply closes session id and reinserts its edited draft. It returns the
// index the draft landed at.
func (m *Manager) Apply(id int) (int, error) {
	return m.close(id, false)
}

// Discard closes session id and reinserts the untouched original.
func (m *Manager) Discard(id int) (int, error) {
	return m.close(id, true)
}

func (m *Manager) close(id int, rollback bool) (int, error) {
	m.mu.Lock()
	idx := m.sessionIndex(id)
	if idx < 0 {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: %d", ErrSessionNotFound, id)
	}
	session := m.sessions[idx]
	m.sessions = append(m.sessions[:idx:idx], m.sessions[idx+1:]...)
	draft := session.Draft
	if rollback {
		draft = session.original.Clone()
	}
	at := session.Index
	if at > len(m.items) {
		at = len(m.items)
	}
	if at < 0 {
		at = 0
	}
	next := make([]keyfactor.Draft, 0, len(m.items)+1)
	next = append(next, m.items[:at]...)
	next = append(next, draft)
	next = append(next, m.items[at:]...)
	dismiss := m.setItemsLocked(next)
	m.mu.Unlock()
	m.fire(dismiss)
	return at, nil
}

// Reject drops item i permanently.
func (m *Manager) Reject(i int) (keyfactor.Draft, error) {
	m.mu.Lock()
	if i < 0 || i >= len(m.items) {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	item := m.items[i]
	dismiss := m.removeLocked(i)
	m.mu.Unlock()
	m.fire(dismiss)
	return item, nil
}

// Remove drops the given drafts, matched by identity, and reports how many
// were found.
func (m *Manager) Remove(drafts ...keyfactor.Draft) int {
	m.mu.Lock()
	removed := 0
	dismiss := false
	for _, d := range drafts {
		if i := m.indexOfLocked(d); i >= 0 {
			dismiss = m.removeLocked(i) || dismiss
			removed++
		}
	}
	m.mu.Unlock()
	m.fire(dismiss)
	return removed
}

// AcceptResult describes how an accept attempt ended.
type AcceptResult struct {
	// Submitted is true when the item was persisted and removed.
	Submitted bool
	// Session is set when a validation failure moved the item into editing.
	Session *EditingSession
}

// Accept submits item i on its own. A validation failure reported by submit
// moves the item into an editing session with errors shown; any other
// failure leaves it in place. Both failures are returned.
func (m *Manager) Accept(ctx context.Context, i int, submit Submitter) (AcceptResult, error) {
	m.mu.Lock()
	if i < 0 || i >= len(m.items) {
		m.mu.Unlock()
		return AcceptResult{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	item := m.items[i]
	m.mu.Unlock()

	err := submit(ctx, item.Clone())

	m.mu.Lock()
	current := m.indexOfLocked(item)
	if err == nil {
		dismiss := false
		if current >= 0 {
			dismiss = m.removeLocked(current)
		}
		m.mu.Unlock()
		m.fire(dismiss)
		return AcceptResult{Submitted: true}, nil
	}
	defer m.mu.Unlock()
	if IsValidationFailure(err) && current >= 0 {
		session, pullErr := m.pullLocked(current, true)
		if pullErr == nil {
			return AcceptResult{Session: session}, err
		}
	}
	return AcceptResult{}, err
}

// IsValidationFailure reports whether err carries a ValidationFailure() true
// marker, as structured server rejections do.
func IsValidationFailure(err error) bool {
	var vf interface{ ValidationFailure() bool }
	return errors.As(err, &vf) && vf.ValidationFailure()
}

func (m *Manager) removeLocked(i int) bool {
	next := make([]keyfactor.Draft, 0, len(m.items)-1)
	next = append(next, m.items[:i]...)
	next = append(next, m.items[i+1:]...)
	return m.setItemsLocked(next)
}

// setItemsLocked installs next, dropping unsupported kinds from a non-empty
// list, and reports whether the panel should be dismissed.
func (m *Manager) setItemsLocked(next []keyfactor.Draft) bool {
	prev := len(m.items)
	if len(next) > 0 {
		kept := next[:0:0]
		for _, d := range next {
			if supported(d) {
				kept = append(kept, d)
				continue
			}
			m.logger.Debug("dropping unsupported suggestion", zap.String("kind", string(d.Kind())))
		}
		next = kept
	}
	m.items = next
	return prev > 0 && len(m.items) == 0 && len(m.sessions) == 0 && !m.loading
}

func (m *Manager) fire(dismiss bool) {
	if dismiss && m.onDismiss != nil {
		m.onDismiss()
	}
}

func (m *Manager) indexOfLocked(d keyfactor.Draft) int {
	for i, item := range m.items {
		if item == d {
			return i
		}
	}
	return -1
}

func (m *Manager) sessionIndex(id int) int {
	for i, s := range m.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func supported(d keyfactor.Draft) bool {
	switch d.(type) {
	case *keyfactor.DriverDraft, *keyfactor.BaseRateDraft:
		return true
	}
	return false
}
