package workbench

import (
	"sort"
	"sync"

	"github.com/Metaculus/metaculus-sub005/internal/feed"
	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

// Store is the combined list of persisted key factors for one post. It is
// shared with other surfaces, so it only ever grows by merge or has a single
// entry's vote replaced.
type Store struct {
	postID int64
	router *feed.Router

	mu      sync.RWMutex
	factors []keyfactor.KeyFactor
	index   map[int64]int
}

// NewStore returns an empty store. router may be nil.
func NewStore(postID int64, router *feed.Router) *Store {
	return &Store{postID: postID, router: router, index: map[int64]int{}}
}

// PostID returns the post the store tracks.
func (s *Store) PostID() int64 {
	return s.postID
}

// Merge appends factors whose id is not present yet and returns how many
// were added. Entries already present are kept as they are.
func (s *Store) Merge(factors ...keyfactor.KeyFactor) int {
	s.mu.Lock()
	var added []keyfactor.KeyFactor
	for _, kf := range factors {
		if kf.ID == 0 || kf.Draft == nil {
			continue
		}
		if _, ok := s.index[kf.ID]; ok {
			continue
		}
		s.index[kf.ID] = len(s.factors)
		s.factors = append(s.factors, kf)
		added = append(added, kf)
	}
	s.mu.Unlock()
	for i := range added {
		kf := added[i]
		event := feed.NewEvent(feed.EventKeyFactorAdded, s.postID)
		event.CommentID = kf.CommentID
		event.KeyFactor = &kf
		s.publish(event)
	}
	return len(added)
}

// UpdateVote replaces the aggregate of one entry. It reports false for
// unknown ids.
func (s *Store) UpdateVote(id int64, vote keyfactor.VoteAggregate) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if ok {
		s.factors[i].Vote = vote
	}
	s.mu.Unlock()
	if ok {
		event := feed.NewEvent(feed.EventVoteUpdated, s.postID)
		event.Vote = vote
		event.KeyFactor = &keyfactor.KeyFactor{ID: id}
		s.publish(event)
	}
	return ok
}

// Get looks up one entry.
func (s *Store) Get(id int64) (keyfactor.KeyFactor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return keyfactor.KeyFactor{}, false
	}
	return s.factors[i], true
}

// Snapshot returns a copy of the entries in insertion order.
func (s *Store) Snapshot() []keyfactor.KeyFactor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]keyfactor.KeyFactor, len(s.factors))
	copy(out, s.factors)
	return out
}

// Ranked returns the entries ordered by vote score, highest first.
func (s *Store) Ranked() []keyfactor.KeyFactor {
	out := s.Snapshot()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Vote.Score > out[j].Vote.Score
	})
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.factors)
}

func (s *Store) commentCreated(commentID int64) {
	event := feed.NewEvent(feed.EventCommentCreated, s.postID)
	event.CommentID = commentID
	s.publish(event)
}

func (s *Store) publish(event feed.Event) {
	if s.router != nil {
		s.router.Publish(event)
	}
}
