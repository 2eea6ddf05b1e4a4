package upload

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultSessionTTL is how long a created-but-unopened upload session is
// kept. Signed part URLs stop working well before a day passes.
const DefaultSessionTTL = time.Hour

// Session is the server-issued upload target recorded when a document is
// created, keyed by that document's id.
type Session struct {
	DocumentID string
	ParentID   string // parent's document id, invalidated on completion
	DriveID    string
	FileID     string
	UploadID   string
	UploadURL  string
}

// Sessions is the process-wide table of pending upload sessions. Each
// session is handed out at most once. Safe for concurrent use.
type Sessions struct {
	mu      sync.Mutex
	entries *gocache.Cache
}

// NewSessions creates a table whose entries expire after ttl; ttl <= 0
// keeps them until taken.
func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		return &Sessions{entries: gocache.New(gocache.NoExpiration, 0)}
	}

	return &Sessions{entries: gocache.New(ttl, ttl)}
}

// Put records s under its document id, replacing any earlier session.
func (t *Sessions) Put(s Session) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries.Set(s.DocumentID, s, gocache.DefaultExpiration)
}

// Take removes and returns the session for documentID.
func (t *Sessions) Take(documentID string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.entries.Get(documentID)
	if !ok {
		return Session{}, false
	}

	t.entries.Delete(documentID)

	s, ok := v.(Session)

	return s, ok
}

// Len returns the number of pending sessions.
func (t *Sessions) Len() int {
	return t.entries.ItemCount()
}
