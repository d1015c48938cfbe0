package relay

// Rooms tracks which connections belong to which named room.
//
// Rooms spring into existence on first join and are pruned as soon as they
// empty; an absent entry and an empty room are indistinguishable. Not safe
// for concurrent use; confined to the Hub goroutine.
type Rooms struct {
	members map[string]map[string]struct{} // room name -> member set
	joined  map[string]map[string]struct{} // conn id -> room names
}

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join adds connID to the room. Joining a room twice is idempotent.
func (r *Rooms) Join(room, connID string) {
	set, ok := r.members[room]
	if !ok {
		set = make(map[string]struct{})
		r.members[room] = set
	}
	set[connID] = struct{}{}

	rooms, ok := r.joined[connID]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[connID] = rooms
	}
	rooms[room] = struct{}{}
}

// Leave removes connID from one room.
func (r *Rooms) Leave(room, connID string) {
	if set, ok := r.members[room]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.members, room)
		}
	}
	if rooms, ok := r.joined[connID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, connID)
		}
	}
}

// LeaveAll removes connID from every room it is a member of and returns the
// names of the rooms it left. Used on disconnect.
func (r *Rooms) LeaveAll(connID string) []string {
	rooms := r.RoomsOf(connID)
	for _, room := range rooms {
		r.Leave(room, connID)
	}
	return rooms
}

// Members returns the current member set of a room.
func (r *Rooms) Members(room string) []string {
	set := r.members[room]
	out := make([]string, 0, len(set))
	for connID := range set {
		out = append(out, connID)
	}
	return out
}

// RoomsOf returns the rooms connID is currently a member of.
func (r *Rooms) RoomsOf(connID string) []string {
	set := r.joined[connID]
	out := make([]string, 0, len(set))
	for room := range set {
		out = append(out, room)
	}
	return out
}
