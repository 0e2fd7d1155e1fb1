package relay

import "github.com/harborchat/relay/internal/domain"

// snapshot projects the presence list from the registry. Entries follow
// registry insertion order; connections that never identified are not
// part of the roster yet and are skipped.
func (r *Relay) snapshot() []domain.PresenceEntry {
	out := make([]domain.PresenceEntry, 0, r.registry.Len())
	r.registry.Each(func(c *Connection) {
		if !c.Identified() {
			return
		}
		out = append(out, domain.PresenceEntry{
			ID:          c.ID,
			Username:    c.Username,
			IsOnline:    true,
			CurrentRoom: c.Room,
		})
	})
	return out
}

// broadcastPresence emits the full snapshot to every connected session.
// Invoked after every mutation that changes the roster or a connection's
// current room. Each discrete change produces one full-snapshot broadcast.
func (r *Relay) broadcastPresence() {
	frame := &domain.UserListFrame{
		Type:  domain.FrameTypeUserList,
		Users: r.snapshot(),
	}
	r.broadcastAll(frame)
}
