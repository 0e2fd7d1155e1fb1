// Package relay implements the room-partitioned messaging core: connection
// registry, room directory with bounded history, presence broadcasting,
// message routing, and typing aggregation. All shared state is owned by a
// single event-loop goroutine; transports submit events and receive
// deliveries through non-blocking per-connection queues, so every mutation
// is atomic without locking.
package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/harborchat/relay/internal/config"
	"github.com/harborchat/relay/internal/domain"
	"github.com/harborchat/relay/internal/ident"
	"github.com/harborchat/relay/pkg/log"
)

type event interface{ isEvent() }

type connectEvent struct {
	id   string
	conn Conn
}

type disconnectEvent struct{ id string }

type identifyEvent struct {
	id       string
	username string
}

type joinRoomEvent struct {
	id   string
	room string
}

type leaveRoomEvent struct {
	id   string
	room string
}

type sendPublicEvent struct {
	id      string
	room    string
	content string
}

type sendPrivateEvent struct {
	id      string
	to      string
	content string
}

type setTypingEvent struct {
	id     string
	typing bool
}

type usersQuery struct{ reply chan []domain.PresenceEntry }

type historyQuery struct {
	room  string
	limit int
	reply chan []domain.Message
}

type roomsQuery struct{ reply chan []RoomInfo }

func (connectEvent) isEvent()     {}
func (disconnectEvent) isEvent()  {}
func (identifyEvent) isEvent()    {}
func (joinRoomEvent) isEvent()    {}
func (leaveRoomEvent) isEvent()   {}
func (sendPublicEvent) isEvent()  {}
func (sendPrivateEvent) isEvent() {}
func (setTypingEvent) isEvent()   {}
func (usersQuery) isEvent()       {}
func (historyQuery) isEvent()     {}
func (roomsQuery) isEvent()       {}

// RoomInfo is the read-model row returned by the rooms query.
type RoomInfo struct {
	Name     string `json:"name"`
	Members  int    `json:"members"`
	Typing   int    `json:"typing"`
	Messages int    `json:"messages"`
}

// Relay owns all registry and room state and processes one event at a
// time. Events for any connection are handled fully, including resulting
// broadcasts, before the next event begins.
type Relay struct {
	cfg      config.RelayConfig
	logger   zerolog.Logger
	ids      ident.Generator
	registry *Registry
	rooms    *Directory
	events   chan event
	done     chan struct{}
}

func New(cfg config.RelayConfig, gen ident.Generator, logger zerolog.Logger) *Relay {
	return &Relay{
		cfg:      cfg,
		logger:   logger,
		ids:      gen,
		registry: NewRegistry(),
		rooms:    NewDirectory(cfg.HistoryLimit),
		events:   make(chan event, 256),
		done:     make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled. It must be the only
// goroutine that touches relay state.
func (r *Relay) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			r.handle(ev)
		}
	}
}

// Done is closed when the event loop has stopped.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

func (r *Relay) dispatch(ev event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

func (r *Relay) handle(ev event) {
	switch ev := ev.(type) {
	case connectEvent:
		r.handleConnect(ev.id, ev.conn)
	case disconnectEvent:
		r.handleDisconnect(ev.id)
	case identifyEvent:
		r.handleIdentify(ev.id, ev.username)
	case joinRoomEvent:
		r.handleJoinRoom(ev.id, ev.room)
	case leaveRoomEvent:
		r.handleLeaveRoom(ev.id, ev.room)
	case sendPublicEvent:
		r.handleSendPublic(ev.id, ev.room, ev.content)
	case sendPrivateEvent:
		r.handleSendPrivate(ev.id, ev.to, ev.content)
	case setTypingEvent:
		r.handleSetTyping(ev.id, ev.typing)
	case usersQuery:
		ev.reply <- r.snapshot()
	case historyQuery:
		r.handleHistoryQuery(ev)
	case roomsQuery:
		r.handleRoomsQuery(ev)
	}
}

// Connect registers a new transport session in an unjoined state.
func (r *Relay) Connect(id string, conn Conn) {
	r.dispatch(connectEvent{id: id, conn: conn})
}

// Disconnect removes the session and reconciles room membership, typing
// state, and presence.
func (r *Relay) Disconnect(id string) {
	r.dispatch(disconnectEvent{id: id})
}

// Identify binds a username to a connection and joins it to the default room.
func (r *Relay) Identify(id, username string) {
	r.dispatch(identifyEvent{id: id, username: username})
}

// JoinRoom moves the connection into the named room.
func (r *Relay) JoinRoom(id, room string) {
	r.dispatch(joinRoomEvent{id: id, room: room})
}

// LeaveRoom leaves the named room. A connection always belongs to exactly
// one room, so leaving its current room re-homes it to the default room.
func (r *Relay) LeaveRoom(id, room string) {
	r.dispatch(leaveRoomEvent{id: id, room: room})
}

// SendPublic routes a message to the sender's current room.
func (r *Relay) SendPublic(id, room, content string) {
	r.dispatch(sendPublicEvent{id: id, room: room, content: content})
}

// SendPrivate delivers a message to one recipient connection and echoes
// it back to the sender.
func (r *Relay) SendPrivate(id, to, content string) {
	r.dispatch(sendPrivateEvent{id: id, to: to, content: content})
}

// SetTyping marks the connection's username as typing (or not) in its
// current room.
func (r *Relay) SetTyping(id string, typing bool) {
	r.dispatch(setTypingEvent{id: id, typing: typing})
}

// Users returns the presence snapshot, linearized through the event loop.
func (r *Relay) Users(ctx context.Context) ([]domain.PresenceEntry, error) {
	q := usersQuery{reply: make(chan []domain.PresenceEntry, 1)}
	return await(ctx, r, q, q.reply)
}

// History returns up to limit entries from the named room's log tail.
func (r *Relay) History(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	q := historyQuery{room: room, limit: limit, reply: make(chan []domain.Message, 1)}
	return await(ctx, r, q, q.reply)
}

// Rooms returns one RoomInfo per known room, sorted by name.
func (r *Relay) Rooms(ctx context.Context) ([]RoomInfo, error) {
	q := roomsQuery{reply: make(chan []RoomInfo, 1)}
	return await(ctx, r, q, q.reply)
}

func await[T any](ctx context.Context, r *Relay, ev event, reply chan T) (T, error) {
	var zero T
	select {
	case r.events <- ev:
	case <-r.done:
		return zero, context.Canceled
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case out := <-reply:
		return out, nil
	case <-r.done:
		return zero, context.Canceled
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (r *Relay) handleConnect(id string, conn Conn) {
	r.registry.Register(id, conn)
	r.logger.Debug().Str(log.FieldConnID, id).Msg("connection registered")
}

func (r *Relay) handleIdentify(id, username string) {
	c := r.registry.Identify(id, username)
	if c == nil {
		r.logger.Warn().Str(log.FieldConnID, id).Str(log.FieldUsername, username).
			Msg("identify ignored: unknown or already identified connection")
		return
	}

	r.moveToRoom(c, r.cfg.DefaultRoom)
	r.broadcastAll(&domain.UserEventFrame{Type: domain.FrameTypeUserJoined, ID: c.ID, Username: c.Username})
	r.broadcastPresence()

	r.logger.Info().Str(log.FieldConnID, id).Str(log.FieldUsername, username).
		Str(log.FieldRoom, c.Room).Msg("user identified")
}

func (r *Relay) handleJoinRoom(id, room string) {
	c, ok := r.registry.Lookup(id)
	if !ok || !c.Identified() {
		r.logger.Warn().Str(log.FieldConnID, id).Err(ErrUnknownSender).Msg("join_room dropped")
		return
	}
	if room == "" || room == c.Room {
		return
	}

	r.moveToRoom(c, room)
	r.broadcastPresence()
}

func (r *Relay) handleLeaveRoom(id, room string) {
	c, ok := r.registry.Lookup(id)
	if !ok || !c.Identified() {
		r.logger.Warn().Str(log.FieldConnID, id).Err(ErrUnknownSender).Msg("leave_room dropped")
		return
	}
	// Leaving a room you are not in is a no-op, and a connection always
	// belongs to exactly one room, so leaving the current room re-homes
	// it to the default room.
	if room != c.Room || room == r.cfg.DefaultRoom {
		return
	}

	r.moveToRoom(c, r.cfg.DefaultRoom)
	r.broadcastPresence()
}

// moveToRoom removes the connection from its prior room (emitting a leave
// notice and clearing typing state there) and joins it to the target room,
// notifying the target room's other members and replaying the log tail to
// the joining connection alone.
func (r *Relay) moveToRoom(c *Connection, target string) {
	if prior, ok := r.rooms.Get(c.Room); ok && prior.hasMember(c.ID) {
		prior.removeMember(c)
		if prior.setTyping(c.Username, false) {
			r.broadcastTyping(prior, "")
		}
		r.broadcastRoom(prior, c.ID, &domain.ReceiveMessageFrame{
			Type:    domain.FrameTypeReceiveMessage,
			Message: r.systemNotice(prior.name, c, c.Username+" left "+prior.name),
		})
	}

	rm := r.rooms.Ensure(target)
	r.broadcastRoom(rm, c.ID, &domain.ReceiveMessageFrame{
		Type:    domain.FrameTypeReceiveMessage,
		Message: r.systemNotice(target, c, c.Username+" joined "+target),
	})
	rm.addMember(c)
	c.Room = target

	r.deliver(c, &domain.RoomHistoryFrame{
		Type:     domain.FrameTypeRoomHistory,
		Room:     target,
		Messages: rm.tail(r.cfg.HistoryReplay),
	})
}

func (r *Relay) handleDisconnect(id string) {
	c, ok := r.registry.Deregister(id)
	if !ok {
		return
	}

	if rm, ok := r.rooms.Get(c.Room); ok && rm.hasMember(c.ID) {
		rm.removeMember(c)
		if rm.setTyping(c.Username, false) {
			r.broadcastTyping(rm, "")
		}
		r.broadcastRoom(rm, c.ID, &domain.ReceiveMessageFrame{
			Type:    domain.FrameTypeReceiveMessage,
			Message: r.systemNotice(rm.name, c, c.Username+" left "+rm.name),
		})
	}

	if c.Identified() {
		r.broadcastAll(&domain.UserEventFrame{Type: domain.FrameTypeUserLeft, ID: c.ID, Username: c.Username})
		r.broadcastPresence()
	}

	r.logger.Info().Str(log.FieldConnID, id).Str(log.FieldUsername, c.Username).
		Msg("connection deregistered")
}

func (r *Relay) handleHistoryQuery(q historyQuery) {
	limit := q.limit
	if limit <= 0 || limit > r.cfg.HistoryLimit {
		limit = r.cfg.HistoryReplay
	}
	rm, ok := r.rooms.Get(q.room)
	if !ok {
		q.reply <- []domain.Message{}
		return
	}
	q.reply <- rm.tail(limit)
}

func (r *Relay) handleRoomsQuery(q roomsQuery) {
	names := r.rooms.Names()
	out := make([]RoomInfo, 0, len(names))
	for _, name := range names {
		rm, _ := r.rooms.Get(name)
		out = append(out, RoomInfo{
			Name:     name,
			Members:  rm.MemberCount(),
			Typing:   len(rm.typing),
			Messages: rm.LogLen(),
		})
	}
	q.reply <- out
}

// systemNotice builds a system-type Message about a connection. Notices
// are emitted to room members but never appended to the room log.
func (r *Relay) systemNotice(room string, c *Connection, content string) domain.Message {
	return r.newMessage(domain.MessageTypeSystem, room, c, content)
}

func (r *Relay) newMessage(kind domain.MessageType, room string, c *Connection, content string) domain.Message {
	id, err := r.ids.Generate()
	if err != nil {
		// Random-source failure; fall back to a timestamp so delivery
		// still proceeds.
		r.logger.Error().Err(err).Msg("id generation failed")
		id = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return domain.Message{
		ID:        id,
		Content:   content,
		Username:  c.Username,
		SenderID:  c.ID,
		Room:      room,
		Type:      kind,
		Timestamp: time.Now().UTC(),
	}
}

func (r *Relay) deliver(c *Connection, v any) {
	if err := c.conn.SendMessage(v); err != nil {
		r.logger.Debug().Err(err).Str(log.FieldConnID, c.ID).Msg("delivery failed")
	}
}

// broadcastRoom fans a frame out to every member of the room except the
// excluded connection.
func (r *Relay) broadcastRoom(rm *Room, exclude string, v any) {
	for id, member := range rm.members {
		if id == exclude {
			continue
		}
		r.deliver(member, v)
	}
}

// broadcastAll fans a frame out to every connected session.
func (r *Relay) broadcastAll(v any) {
	r.registry.Each(func(c *Connection) {
		r.deliver(c, v)
	})
}
