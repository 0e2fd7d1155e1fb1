package relay

import (
	"errors"
	"strings"

	"github.com/harborchat/relay/internal/domain"
	"github.com/harborchat/relay/pkg/log"
)

// Routing failures are local to the event being processed: they are
// logged and dropped, never acknowledged to the sender and never allowed
// to disturb unrelated state.
var (
	ErrUnknownSender    = errors.New("sender connection not registered")
	ErrEmptyContent     = errors.New("message content is empty")
	ErrRecipientOffline = errors.New("recipient connection not registered")
)

// handleSendPublic validates the message, appends it to the sender's
// current room log, and fans it out to the room. The sender's own
// connection is excluded: the originator renders the message locally on
// send, so echoing it back would only duplicate it.
func (r *Relay) handleSendPublic(id, room, content string) {
	c, ok := r.registry.Lookup(id)
	if !ok || !c.Identified() {
		r.logger.Warn().Str(log.FieldConnID, id).Err(ErrUnknownSender).Msg("send_message dropped")
		return
	}

	content = strings.TrimSpace(content)
	if content == "" {
		r.logger.Debug().Str(log.FieldConnID, id).Err(ErrEmptyContent).Msg("send_message dropped")
		return
	}

	// The registry is authoritative for routing; a stale room hint from
	// the client is ignored.
	if room != "" && room != c.Room {
		r.logger.Debug().Str(log.FieldConnID, id).Str(log.FieldRoom, room).
			Msg("send_message room hint ignored")
	}

	msg := r.newMessage(domain.MessageTypeChat, c.Room, c, content)
	rm := r.rooms.Append(msg)
	r.broadcastRoom(rm, c.ID, &domain.ReceiveMessageFrame{
		Type:    domain.FrameTypeReceiveMessage,
		Message: msg,
	})

	r.logger.Debug().Str(log.FieldConnID, id).Str(log.FieldRoom, c.Room).
		Str(log.FieldMessageID, msg.ID).Msg("message routed")
}

// handleSendPrivate bypasses rooms and delivers to exactly two
// connections. Unlike public sends, the message is echoed back to the
// sender; both ends receive the identical frame.
func (r *Relay) handleSendPrivate(id, to, content string) {
	c, ok := r.registry.Lookup(id)
	if !ok || !c.Identified() {
		r.logger.Warn().Str(log.FieldConnID, id).Err(ErrUnknownSender).Msg("private_message dropped")
		return
	}

	content = strings.TrimSpace(content)
	if content == "" {
		r.logger.Debug().Str(log.FieldConnID, id).Err(ErrEmptyContent).Msg("private_message dropped")
		return
	}

	recipient, ok := r.registry.Lookup(to)
	if !ok {
		// Dropped, not queued; the sender is not notified.
		r.logger.Debug().Str(log.FieldConnID, id).Err(ErrRecipientOffline).Msg("private_message dropped")
		return
	}

	msg := r.newMessage(domain.MessageTypePrivate, "", c, content)
	frame := &domain.ReceiveMessageFrame{
		Type:    domain.FrameTypePrivateMessage,
		Message: msg,
	}
	r.deliver(recipient, frame)
	if recipient.ID != c.ID {
		r.deliver(c, frame)
	}
}
