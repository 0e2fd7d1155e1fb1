package relay

import (
	"sort"

	"github.com/harborchat/relay/internal/domain"
)

// Room is a named broadcast domain: a member set, a bounded message log,
// and the set of usernames currently typing in it. Rooms are created
// lazily on first reference and persist once created, even when empty.
type Room struct {
	name    string
	members map[string]*Connection
	log     []domain.Message
	typing  map[string]struct{}
}

func newRoom(name string) *Room {
	return &Room{
		name:    name,
		members: make(map[string]*Connection),
		typing:  make(map[string]struct{}),
	}
}

// Name returns the room identifier.
func (rm *Room) Name() string { return rm.name }

// MemberCount returns the current member set size.
func (rm *Room) MemberCount() int { return len(rm.members) }

// LogLen returns the current message log length.
func (rm *Room) LogLen() int { return len(rm.log) }

func (rm *Room) addMember(c *Connection)    { rm.members[c.ID] = c }
func (rm *Room) removeMember(c *Connection) { delete(rm.members, c.ID) }

func (rm *Room) hasMember(id string) bool {
	_, ok := rm.members[id]
	return ok
}

// append pushes a message onto the log, evicting the oldest entry when the
// bound is exceeded. Eviction is strict FIFO.
func (rm *Room) append(msg domain.Message, limit int) {
	rm.log = append(rm.log, msg)
	if limit > 0 && len(rm.log) > limit {
		over := len(rm.log) - limit
		rm.log = append(rm.log[:0], rm.log[over:]...)
	}
}

// tail returns a copy of the most recent n log entries in send order.
// It is a read, never a pop.
func (rm *Room) tail(n int) []domain.Message {
	if n < 0 {
		n = 0
	}
	if n > len(rm.log) {
		n = len(rm.log)
	}
	out := make([]domain.Message, n)
	copy(out, rm.log[len(rm.log)-n:])
	return out
}

// setTyping adds or removes username from the typing set and reports
// whether the set changed.
func (rm *Room) setTyping(username string, typing bool) bool {
	_, present := rm.typing[username]
	if typing == present {
		return false
	}
	if typing {
		rm.typing[username] = struct{}{}
	} else {
		delete(rm.typing, username)
	}
	return true
}

// typingUsernames returns the typing set sorted for stable output.
func (rm *Room) typingUsernames() []string {
	out := make([]string, 0, len(rm.typing))
	for u := range rm.typing {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Directory owns every room. Any string is a valid room identifier and
// rooms come into existence on first reference, so there is no
// room-not-found failure mode anywhere in the relay.
type Directory struct {
	rooms        map[string]*Room
	historyLimit int
}

func NewDirectory(historyLimit int) *Directory {
	return &Directory{
		rooms:        make(map[string]*Room),
		historyLimit: historyLimit,
	}
}

// Ensure returns the existing room or creates an empty one.
func (d *Directory) Ensure(name string) *Room {
	if rm, ok := d.rooms[name]; ok {
		return rm
	}
	rm := newRoom(name)
	d.rooms[name] = rm
	return rm
}

// Get returns the room if it already exists.
func (d *Directory) Get(name string) (*Room, bool) {
	rm, ok := d.rooms[name]
	return rm, ok
}

// Append pushes the message onto its room's log, creating the room if
// needed and enforcing the log bound.
func (d *Directory) Append(msg domain.Message) *Room {
	rm := d.Ensure(msg.Room)
	rm.append(msg, d.historyLimit)
	return rm
}

// Names returns all room names, sorted.
func (d *Directory) Names() []string {
	out := make([]string, 0, len(d.rooms))
	for name := range d.rooms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
