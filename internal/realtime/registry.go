package realtime

import (
	"errors"
	"sort"
)

// ConnID identifies one live transport session.
type ConnID string

var ErrHandleOwned = errors.New("connection already registered to another user")

// Registry is the bidirectional user <-> connection index. It is not safe for
// concurrent use on its own; Hub serializes access.
type Registry struct {
	byUser map[string]map[ConnID]struct{}
	byConn map[ConnID]string
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[ConnID]struct{}),
		byConn: make(map[ConnID]string),
	}
}

// Register adds conn to userID's set. first reports whether this made the user live.
// Registering the same pair twice is a no-op.
func (r *Registry) Register(userID string, conn ConnID) (first bool, err error) {
	if owner, ok := r.byConn[conn]; ok {
		if owner != userID {
			return false, ErrHandleOwned
		}
		return false, nil
	}

	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[ConnID]struct{})
		r.byUser[userID] = set
	}
	set[conn] = struct{}{}
	r.byConn[conn] = userID
	return len(set) == 1, nil
}

// Unregister removes conn. last reports whether the owning user has no
// connections left; ok is false for an unknown conn.
func (r *Registry) Unregister(conn ConnID) (userID string, last bool, ok bool) {
	userID, ok = r.byConn[conn]
	if !ok {
		return "", false, false
	}
	delete(r.byConn, conn)

	set := r.byUser[userID]
	delete(set, conn)
	if len(set) == 0 {
		delete(r.byUser, userID)
		return userID, true, true
	}
	return userID, false, true
}

func (r *Registry) IsLive(userID string) bool {
	return len(r.byUser[userID]) > 0
}

func (r *Registry) UserOf(conn ConnID) (string, bool) {
	userID, ok := r.byConn[conn]
	return userID, ok
}

// HandlesFor returns a sorted copy of the user's connections.
func (r *Registry) HandlesFor(userID string) []ConnID {
	set := r.byUser[userID]
	handles := make([]ConnID, 0, len(set))
	for conn := range set {
		handles = append(handles, conn)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles
}

func (r *Registry) Users() int {
	return len(r.byUser)
}
