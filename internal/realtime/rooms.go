package realtime

import "sort"

// Rooms tracks multicast group membership in both directions so a closing
// connection can leave everything it joined without scanning every room.
// Empty sets are removed as soon as they empty out.
type Rooms struct {
	members map[string]map[ConnID]struct{}
	joined  map[ConnID]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[ConnID]struct{}),
		joined:  make(map[ConnID]map[string]struct{}),
	}
}

// Join reports whether conn was newly added.
func (r *Rooms) Join(conn ConnID, room string) bool {
	set, ok := r.members[room]
	if !ok {
		set = make(map[ConnID]struct{})
		r.members[room] = set
	}
	if _, exists := set[conn]; exists {
		return false
	}
	set[conn] = struct{}{}

	rooms, ok := r.joined[conn]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[conn] = rooms
	}
	rooms[room] = struct{}{}
	return true
}

// Leave reports whether conn was a member.
func (r *Rooms) Leave(conn ConnID, room string) bool {
	set, ok := r.members[room]
	if !ok {
		return false
	}
	if _, exists := set[conn]; !exists {
		return false
	}

	delete(set, conn)
	if len(set) == 0 {
		delete(r.members, room)
	}
	rooms := r.joined[conn]
	delete(rooms, room)
	if len(rooms) == 0 {
		delete(r.joined, conn)
	}
	return true
}

// LeaveAll drops conn from every room and returns the rooms it was in.
func (r *Rooms) LeaveAll(conn ConnID) []string {
	left := r.RoomsOf(conn)
	for _, room := range left {
		r.Leave(conn, room)
	}
	return left
}

func (r *Rooms) Has(conn ConnID, room string) bool {
	_, ok := r.members[room][conn]
	return ok
}

func (r *Rooms) Members(room string) []ConnID {
	set := r.members[room]
	members := make([]ConnID, 0, len(set))
	for conn := range set {
		members = append(members, conn)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return members
}

func (r *Rooms) RoomsOf(conn ConnID) []string {
	set := r.joined[conn]
	rooms := make([]string, 0, len(set))
	for room := range set {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

func (r *Rooms) Len() int {
	return len(r.members)
}
