package relay

import (
	"github.com/harborchat/relay/internal/domain"
	"github.com/harborchat/relay/pkg/log"
)

// handleSetTyping adds or removes the connection's username from its
// current room's typing set and broadcasts the updated set to the room's
// other members, never to the setter. There is no server-side timeout: a
// client that stops typing without saying so keeps its entry until it
// clears it, leaves the room, or disconnects.
func (r *Relay) handleSetTyping(id string, typing bool) {
	c, ok := r.registry.Lookup(id)
	if !ok || !c.Identified() {
		r.logger.Warn().Str(log.FieldConnID, id).Err(ErrUnknownSender).Msg("typing dropped")
		return
	}

	rm, ok := r.rooms.Get(c.Room)
	if !ok || !rm.hasMember(c.ID) {
		return
	}

	rm.setTyping(c.Username, typing)
	r.broadcastTyping(rm, c.ID)
}

// broadcastTyping sends the room's typing set to every member except the
// excluded connection.
func (r *Relay) broadcastTyping(rm *Room, exclude string) {
	frame := &domain.TypingUsersFrame{
		Type:      domain.FrameTypeTypingUsers,
		Room:      rm.name,
		Usernames: rm.typingUsernames(),
	}
	r.broadcastRoom(rm, exclude, frame)
}
