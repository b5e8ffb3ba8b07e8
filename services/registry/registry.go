// Package registry implements the process-wide table of live sessions keyed
// by meeting_id, plus the file-backed persistence that lets a restarted
// process discover orphaned sessions. Persistence writes are serialized by
// the same lock guarding the in-memory map, so active_sessions.json only
// ever has a single writer.
package registry

import (
	"sync"

	apxerrors "github.com/metacogma/meetcapture/errors"
	"github.com/metacogma/meetcapture/models/session"
)

// Registry is a concurrent meeting_id -> Session mapping. Iteration is
// intentionally not exposed outside this package's own persistence sweep —
// callers needing every live session go through the engine.
type Registry struct {
	mu    sync.Mutex
	live  map[string]*session.Session
	store *session.Store
}

func New(persistedPath string) *Registry {
	return &Registry{
		live:  make(map[string]*session.Session),
		store: session.NewStore(persistedPath),
	}
}

// InsertUnique adds sess, rejecting with AlreadyActive if a live session
// already exists for its meeting_id. Persists the corresponding
// PersistedSession record in the same critical section.
func (r *Registry) InsertUnique(sess *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.live[sess.MeetingID]; exists {
		return apxerrors.E(apxerrors.AlreadyActive, nil).WithMsg("session already active for " + sess.MeetingID)
	}
	r.live[sess.MeetingID] = sess

	rec := session.PersistedSession{
		MeetingID: sess.MeetingID,
		SessionID: sess.SessionID,
		Platform:  sess.Platform,
		FramesDir: sess.FramesDir,
		StartedAt: sess.StartedAt,
		FrameCount: 0,
	}
	return r.store.Put(rec)
}

// Get returns the live session for meeting_id, if any.
func (r *Registry) Get(meetingID string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.live[meetingID]
	return s, ok
}

// Remove deletes meeting_id from both the in-memory table and the
// persistence file. The persisted record is removed even when meeting_id has
// no live in-memory entry (as for a recovered orphan).
func (r *Registry) Remove(meetingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, meetingID)
	return r.store.Remove(meetingID)
}

// PersistedOrphan returns the persisted record for a meeting_id that has no
// live session, used by Leave's orphan fast path.
func (r *Registry) PersistedOrphan(meetingID string) (session.PersistedSession, bool, error) {
	r.mu.Lock()
	if _, live := r.live[meetingID]; live {
		r.mu.Unlock()
		return session.PersistedSession{}, false, nil
	}
	r.mu.Unlock()
	return r.store.Get(meetingID)
}

// AllPersisted returns every persisted record, used by a startup sweep that
// offers each one to RecoverOrphan.
func (r *Registry) AllPersisted() (map[string]session.PersistedSession, error) {
	return r.store.All()
}

// LiveCount reports the number of sessions currently registered.
func (r *Registry) LiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// LiveMeetingIDs returns a snapshot of every meeting_id currently registered,
// used by the shutdown coordinator to drain sessions one by one.
func (r *Registry) LiveMeetingIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.live))
	for id := range r.live {
		ids = append(ids, id)
	}
	return ids
}
