// Package feed fans key factor change events out to in-process listeners,
// keyed by post.
package feed

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

// EventType names a change.
type EventType string

const (
	EventKeyFactorAdded EventType = "key_factor_added"
	EventVoteUpdated    EventType = "vote_updated"
	EventCommentCreated EventType = "comment_created"
)

// Event describes one change to a post's key factors.
type Event struct {
	ID        string
	Type      EventType
	PostID    int64
	CommentID int64
	KeyFactor *keyfactor.KeyFactor
	Vote      keyfactor.VoteAggregate
	At        time.Time
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(kind EventType, postID int64) Event {
	return Event{ID: uuid.NewString(), Type: kind, PostID: postID, At: time.Now().UTC()}
}

const (
	defaultSubscriberCapacity = 100
	defaultBacklogLimit       = 50
	defaultDedupeWindow       = 1024
)

// Option customizes Router construction.
type Option func(*Router)

// WithLogger injects a logger for drop diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSubscriberCapacity overrides the buffered channel size per subscriber.
func WithSubscriberCapacity(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.channelSize = n
		}
	}
}

// WithBacklogLimit overrides how many events are held for a post nobody
// listens to yet.
func WithBacklogLimit(limit int) Option {
	return func(r *Router) {
		if limit > 0 {
			r.backlogLimit = limit
		}
	}
}

// WithDedupeWindow controls how many recent event ids are remembered.
func WithDedupeWindow(size int) Option {
	return func(r *Router) {
		if size > 0 {
			r.dedupeWindow = size
		}
	}
}

// Router delivers events to per-post subscribers with buffering,
// deduplication and bounded channels.
type Router struct {
	mu           sync.RWMutex
	subscribers  map[int64]map[*subscriber]struct{}
	backlog      map[int64][]Event
	recentIDs    map[string]struct{}
	recentOrder  []string
	channelSize  int
	backlogLimit int
	dedupeWindow int
	logger       *zap.Logger
}

// Subscription is an active listener on one post.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close terminates the subscription and closes Events.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewRouter constructs a router.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		subscribers:  map[int64]map[*subscriber]struct{}{},
		backlog:      map[int64][]Event{},
		recentIDs:    map[string]struct{}{},
		recentOrder:  make([]string, 0, defaultDedupeWindow),
		channelSize:  defaultSubscriberCapacity,
		backlogLimit: defaultBacklogLimit,
		dedupeWindow: defaultDedupeWindow,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Subscribe listens for events on postID. Buffered events are replayed first.
func (r *Router) Subscribe(postID int64) Subscription {
	sub := newSubscriber(r.channelSize, r.logger)
	r.mu.Lock()
	if r.subscribers[postID] == nil {
		r.subscribers[postID] = map[*subscriber]struct{}{}
	}
	r.subscribers[postID][sub] = struct{}{}
	backlog := r.backlog[postID]
	delete(r.backlog, postID)
	r.mu.Unlock()
	for _, event := range backlog {
		sub.deliver(event)
	}
	return Subscription{
		Events: sub.ch,
		cancel: func() {
			r.removeSubscriber(postID, sub)
		},
	}
}

// Publish delivers event or buffers it when the post has no subscriber.
// Events repeating a recently seen id are ignored.
func (r *Router) Publish(event Event) {
	if event.ID != "" && r.isDuplicate(event.ID) {
		return
	}
	r.mu.RLock()
	subs := make([]*subscriber, 0, len(r.subscribers[event.PostID]))
	for sub := range r.subscribers[event.PostID] {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()
	if len(subs) == 0 {
		r.bufferEvent(event)
		return
	}
	for _, sub := range subs {
		sub.deliver(event)
	}
}

func (r *Router) removeSubscriber(postID int64, sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subs := r.subscribers[postID]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(r.subscribers, postID)
		}
	}
	sub.close()
}

func (r *Router) bufferEvent(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue := r.backlog[event.PostID]
	if len(queue) >= r.backlogLimit {
		queue = queue[1:]
		r.logger.Debug("feed backlog drop", zap.Int64("post", event.PostID), zap.Int("limit", r.backlogLimit))
	}
	r.backlog[event.PostID] = append(queue, event)
}

func (r *Router) isDuplicate(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recentIDs[id]; ok {
		return true
	}
	r.recentIDs[id] = struct{}{}
	r.recentOrder = append(r.recentOrder, id)
	if len(r.recentOrder) > r.dedupeWindow {
		delete(r.recentIDs, r.recentOrder[0])
		r.recentOrder = r.recentOrder[1:]
	}
	return false
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	logger *zap.Logger
	closed bool
}

func newSubscriber(capacity int, logger *zap.Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{ch: make(chan Event, capacity), logger: logger}
}

// deliver never blocks. On overflow the less important of the oldest queued
// event and the incoming one is dropped.
func (s *subscriber) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
		return
	default:
	}
	var oldest Event
	select {
	case oldest = <-s.ch:
	default:
		// a reader drained the queue in between
		s.ch <- event
		return
	}
	if dropOldest(oldest, event) {
		s.logger.Debug("feed dropped event", zap.String("type", string(oldest.Type)), zap.String("reason", "overflow"))
		s.ch <- event
		return
	}
	s.ch <- oldest
	s.logger.Debug("feed dropped event", zap.String("type", string(event.Type)), zap.String("reason", "overflow:incoming"))
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Vote updates are dropped before additions.
func dropOldest(oldest, incoming Event) bool {
	oldestVote := isVote(oldest.Type)
	incomingVote := isVote(incoming.Type)
	if !oldestVote && incomingVote {
		return false
	}
	return true
}

func isVote(kind EventType) bool {
	return strings.EqualFold(string(kind), string(EventVoteUpdated))
}
