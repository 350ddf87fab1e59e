package chat

import (
	"errors"
	"strings"
	"sync"
)

// Default bounds for a Registry.
const (
	DefaultMaxClients        = 100
	DefaultMaxUsernameLength = 31
)

var (
	// ErrFull is returned by Register when every slot is occupied.
	ErrFull = errors.New("chat: registry full")
	// ErrNameTaken is returned by SetUsername when another active session
	// already uses the name.
	ErrNameTaken = errors.New("chat: username already taken")
	// ErrNameInvalid is returned by SetUsername for empty, blank or over-long
	// names.
	ErrNameInvalid = errors.New("chat: invalid username")
	// ErrNotFound is returned by Find when no active session has the name.
	ErrNotFound = errors.New("chat: user not found")
)

// SessionRef identifies one registration of a slot. The generation changes
// every time the slot is claimed, so a ref outlives its session harmlessly.
type SessionRef struct {
	slot int
	gen  uint64
}

// Slot returns the registry slot index the ref points to.
func (r SessionRef) Slot() int {
	return r.slot
}

// Peer is a point-in-time view of one named session, for delivery.
type Peer struct {
	Conn     Conn
	Username string
}

type session struct {
	conn     Conn
	active   bool
	username string
	peerAddr string
	gen      uint64
}

// Registry is the fixed-capacity table of active sessions shared by every
// handler. All methods serialize on a single mutex and never do I/O while
// holding it.
type Registry struct {
	mutex       sync.Mutex
	slots       []session
	active      int
	maxUsername int
}

// NewRegistry creates a registry with the given number of slots. Non-positive
// values fall back to the defaults.
func NewRegistry(capacity, maxUsernameLength int) *Registry {
	if capacity <= 0 {
		capacity = DefaultMaxClients
	}
	if maxUsernameLength <= 0 {
		maxUsernameLength = DefaultMaxUsernameLength
	}
	return &Registry{
		slots:       make([]session, capacity),
		maxUsername: maxUsernameLength,
	}
}

// Capacity returns the number of slots.
func (r *Registry) Capacity() int {
	return len(r.slots)
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.active
}

// Register claims the first free slot for conn. It returns ErrFull and leaves
// the table untouched when no slot is free.
func (r *Registry) Register(conn Conn, peerAddr string) (SessionRef, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i := range r.slots {
		s := &r.slots[i]
		if s.active {
			continue
		}
		s.gen++
		s.conn = conn
		s.active = true
		s.username = ""
		s.peerAddr = peerAddr
		r.active++
		return SessionRef{slot: i, gen: s.gen}, nil
	}
	return SessionRef{}, ErrFull
}

// lookup returns the session for ref if it is still the active occupant.
// Callers must hold the mutex.
func (r *Registry) lookup(ref SessionRef) *session {
	if ref.slot < 0 || ref.slot >= len(r.slots) {
		return nil
	}
	s := &r.slots[ref.slot]
	if !s.active || s.gen != ref.gen {
		return nil
	}
	return s
}

// SetUsername trims name and assigns it to the session. The uniqueness check
// and the assignment happen under one lock acquisition.
func (r *Registry) SetUsername(ref SessionRef, name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > r.maxUsername {
		return ErrNameInvalid
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	s := r.lookup(ref)
	if s == nil || s.username != "" {
		return ErrNameInvalid
	}
	for i := range r.slots {
		other := &r.slots[i]
		if i != ref.slot && other.active && other.username == name {
			return ErrNameTaken
		}
	}
	s.username = name
	return nil
}

// Username returns the name of the session, or "" if unset or released.
func (r *Registry) Username(ref SessionRef) string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if s := r.lookup(ref); s != nil {
		return s.username
	}
	return ""
}

// Unregister releases the slot. It reports whether this call released it and
// the username the session had; later calls with the same ref are no-ops.
func (r *Registry) Unregister(ref SessionRef) (string, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s := r.lookup(ref)
	if s == nil {
		return "", false
	}
	name := s.username
	s.active = false
	s.conn = nil
	s.username = ""
	s.peerAddr = ""
	r.active--
	return name, true
}

// SnapshotOthers returns every active, named session except exclude, in slot
// order.
func (r *Registry) SnapshotOthers(exclude SessionRef) []Peer {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	peers := make([]Peer, 0, r.active)
	for i := range r.slots {
		s := &r.slots[i]
		if !s.active || s.username == "" {
			continue
		}
		if i == exclude.slot && s.gen == exclude.gen {
			continue
		}
		peers = append(peers, Peer{Conn: s.conn, Username: s.username})
	}
	return peers
}

// Find returns the connection of the active session named username.
func (r *Registry) Find(username string) (Conn, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i := range r.slots {
		s := &r.slots[i]
		if s.active && s.username != "" && s.username == username {
			return s.conn, nil
		}
	}
	return nil, ErrNotFound
}

// ListUsernames returns the names of all active, named sessions in slot order.
func (r *Registry) ListUsernames() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	names := make([]string, 0, r.active)
	for i := range r.slots {
		if s := &r.slots[i]; s.active && s.username != "" {
			names = append(names, s.username)
		}
	}
	return names
}

// SessionInfo describes one active session for status reporting.
type SessionInfo struct {
	Slot     int    `json:"slot"`
	Username string `json:"username,omitempty"`
	PeerAddr string `json:"peer"`
}

// Sessions returns every active session, named or not, in slot order.
func (r *Registry) Sessions() []SessionInfo {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	infos := make([]SessionInfo, 0, r.active)
	for i := range r.slots {
		if s := &r.slots[i]; s.active {
			infos = append(infos, SessionInfo{Slot: i, Username: s.username, PeerAddr: s.peerAddr})
		}
	}
	return infos
}
