package relay

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harborchat/relay/internal/config"
	"github.com/harborchat/relay/internal/domain"
	"github.com/harborchat/relay/internal/ident"
)

type fakeConn struct {
	frames []any
}

func (f *fakeConn) SendMessage(v any) error {
	f.frames = append(f.frames, v)
	return nil
}

func (f *fakeConn) reset() {
	f.frames = nil
}

func (f *fakeConn) receiveFrames() []*domain.ReceiveMessageFrame {
	var out []*domain.ReceiveMessageFrame
	for _, v := range f.frames {
		if frame, ok := v.(*domain.ReceiveMessageFrame); ok {
			out = append(out, frame)
		}
	}
	return out
}

func (f *fakeConn) chatMessages() []domain.Message {
	var out []domain.Message
	for _, frame := range f.receiveFrames() {
		if frame.Type == domain.FrameTypeReceiveMessage && frame.Message.Type == domain.MessageTypeChat {
			out = append(out, frame.Message)
		}
	}
	return out
}

func (f *fakeConn) privateFrames() []*domain.ReceiveMessageFrame {
	var out []*domain.ReceiveMessageFrame
	for _, frame := range f.receiveFrames() {
		if frame.Type == domain.FrameTypePrivateMessage {
			out = append(out, frame)
		}
	}
	return out
}

func (f *fakeConn) typingFrames() []*domain.TypingUsersFrame {
	var out []*domain.TypingUsersFrame
	for _, v := range f.frames {
		if frame, ok := v.(*domain.TypingUsersFrame); ok {
			out = append(out, frame)
		}
	}
	return out
}

func (f *fakeConn) historyFrames() []*domain.RoomHistoryFrame {
	var out []*domain.RoomHistoryFrame
	for _, v := range f.frames {
		if frame, ok := v.(*domain.RoomHistoryFrame); ok {
			out = append(out, frame)
		}
	}
	return out
}

func (f *fakeConn) userLists() []*domain.UserListFrame {
	var out []*domain.UserListFrame
	for _, v := range f.frames {
		if frame, ok := v.(*domain.UserListFrame); ok {
			out = append(out, frame)
		}
	}
	return out
}

func newTestRelay(t *testing.T) *Relay {
	t.Helper()
	gen, err := ident.New("ksuid")
	require.NoError(t, err)
	cfg := config.RelayConfig{
		DefaultRoom:   "general",
		HistoryLimit:  100,
		HistoryReplay: 50,
	}
	return New(cfg, gen, zerolog.Nop())
}

// joinAs registers, identifies, and optionally moves a connection, then
// clears the frames accumulated during setup.
func joinAs(r *Relay, id, username, room string) *fakeConn {
	fc := &fakeConn{}
	r.handleConnect(id, fc)
	r.handleIdentify(id, username)
	if room != "" && room != r.cfg.DefaultRoom {
		r.handleJoinRoom(id, room)
	}
	fc.reset()
	return fc
}

// requireSingleRoom asserts the invariant that a connection is a member
// of exactly one room, and that room matches its current room.
func requireSingleRoom(t *testing.T, r *Relay, id string) {
	t.Helper()
	c, ok := r.registry.Lookup(id)
	require.True(t, ok)
	memberships := 0
	for name, rm := range r.rooms.rooms {
		if rm.hasMember(id) {
			memberships++
			require.Equal(t, c.Room, name)
		}
	}
	require.Equal(t, 1, memberships)
}

func TestIdentifyJoinsDefaultRoom(t *testing.T) {
	r := newTestRelay(t)

	fc := &fakeConn{}
	r.handleConnect("a", fc)
	r.handleIdentify("a", "alice")

	c, ok := r.registry.Lookup("a")
	require.True(t, ok)
	require.Equal(t, "alice", c.Username)
	require.Equal(t, "general", c.Room)
	requireSingleRoom(t, r, "a")

	// The joiner gets history for the default room plus the presence
	// broadcast triggered by its own identify.
	require.Len(t, fc.historyFrames(), 1)
	require.Equal(t, "general", fc.historyFrames()[0].Room)
	require.Len(t, fc.userLists(), 1)

	users := fc.userLists()[0].Users
	require.Len(t, users, 1)
	require.Equal(t, "alice", users[0].Username)
	require.Equal(t, "general", users[0].CurrentRoom)
	require.True(t, users[0].IsOnline)
}

func TestIdentifyUsernameImmutable(t *testing.T) {
	r := newTestRelay(t)
	joinAs(r, "a", "alice", "")

	r.handleIdentify("a", "mallory")

	c, _ := r.registry.Lookup("a")
	require.Equal(t, "alice", c.Username)
}

func TestIdentifyUnknownConnectionIsNoop(t *testing.T) {
	r := newTestRelay(t)

	r.handleIdentify("ghost", "casper")

	_, ok := r.registry.Lookup("ghost")
	require.False(t, ok)
	require.Empty(t, r.rooms.rooms)
}

func TestPublicSendNotEchoedToSender(t *testing.T) {
	r := newTestRelay(t)
	a := joinAs(r, "a", "alice", "lobby")
	b := joinAs(r, "b", "bob", "lobby")

	r.handleSendPublic("a", "", "hello")

	require.Empty(t, a.chatMessages(), "sender must not receive its own message")

	got := b.chatMessages()
	require.Len(t, got, 1)
	require.Equal(t, "hello", got[0].Content)
	require.Equal(t, "alice", got[0].Username)
	require.Equal(t, "a", got[0].SenderID)
	require.Equal(t, "lobby", got[0].Room)
	require.NotEmpty(t, got[0].ID)
	require.False(t, got[0].Timestamp.IsZero())
}

func TestPublicSendFromUnidentifiedConnectionDropped(t *testing.T) {
	r := newTestRelay(t)
	b := joinAs(r, "b", "bob", "")

	fc := &fakeConn{}
	r.handleConnect("a", fc)
	r.handleSendPublic("a", "", "hello")

	require.Empty(t, b.chatMessages())
}

func TestEmptyContentRejectedBeforeStateMutation(t *testing.T) {
	r := newTestRelay(t)
	joinAs(r, "a", "alice", "")
	b := joinAs(r, "b", "bob", "")

	r.handleSendPublic("a", "", "   ")

	require.Empty(t, b.frames)
	rm, _ := r.rooms.Get("general")
	require.Equal(t, 0, rm.LogLen())
}

func TestLogBoundStrictFIFO(t *testing.T) {
	r := newTestRelay(t)
	joinAs(r, "a", "alice", "lobby")

	for i := 1; i <= 101; i++ {
		r.handleSendPublic("a", "", fmt.Sprintf("msg-%d", i))
	}

	rm, ok := r.rooms.Get("lobby")
	require.True(t, ok)
	require.Equal(t, 100, rm.LogLen())
	require.Equal(t, "msg-2", rm.log[0].Content, "oldest entry evicted first")
	require.Equal(t, "msg-101", rm.log[99].Content)
}

func TestLateJoinerHistoryTail(t *testing.T) {
	r := newTestRelay(t)
	joinAs(r, "a", "alice", "lobby")
	joinAs(r, "b", "bob", "lobby")

	for i := 1; i <= 101; i++ {
		r.handleSendPublic("a", "", fmt.Sprintf("msg-%d", i))
	}

	c := &fakeConn{}
	r.handleConnect("c", c)
	r.handleIdentify("c", "carol")
	c.reset()
	r.handleJoinRoom("c", "lobby")

	histories := c.historyFrames()
	require.Len(t, histories, 1)
	require.Equal(t, "lobby", histories[0].Room)
	require.Len(t, histories[0].Messages, 50)
	require.Equal(t, "msg-52", histories[0].Messages[0].Content)
	require.Equal(t, "msg-101", histories[0].Messages[49].Content)
}

func TestHistoryRoundTrip(t *testing.T) {
	r := newTestRelay(t)
	joinAs(r, "a", "alice", "lobby")

	r.handleSendPublic("a", "", "for the record")
	rm, _ := r.rooms.Get("lobby")
	sent := rm.log[0]

	b := &fakeConn{}
	r.handleConnect("b", b)
	r.handleIdentify("b", "bob")
	b.reset()
	r.handleJoinRoom("b", "lobby")

	histories := b.historyFrames()
	require.Len(t, histories, 1)
	require.Len(t, histories[0].Messages, 1)
	require.Equal(t, sent, histories[0].Messages[0], "history entries are returned verbatim")
}

func TestJoinEmitsSystemNoticeToOthersOnly(t *testing.T) {
	r := newTestRelay(t)
	a := joinAs(r, "a", "alice", "lobby")

	b := &fakeConn{}
	r.handleConnect("b", b)
	r.handleIdentify("b", "bob")
	a.reset()
	b.reset()
	r.handleJoinRoom("b", "lobby")

	var notices []domain.Message
	for _, frame := range a.receiveFrames() {
		if frame.Message.Type == domain.MessageTypeSystem {
			notices = append(notices, frame.Message)
		}
	}
	require.Len(t, notices, 1)
	require.Equal(t, "bob", notices[0].Username)
	require.Equal(t, "lobby", notices[0].Room)

	for _, frame := range b.receiveFrames() {
		require.NotEqual(t, domain.MessageTypeSystem, frame.Message.Type,
			"the joiner does not receive its own join notice")
	}

	// Notices are emitted, never logged.
	rm, _ := r.rooms.Get("lobby")
	require.Equal(t, 0, rm.LogLen())
}

func TestJoinLeaveKeepsExactlyOneMembership(t *testing.T) {
	r := newTestRelay(t)
	joinAs(r, "a", "alice", "")

	for _, op := range []struct {
		join bool
		room string
	}{
		{true, "lobby"},
		{true, "random"},
		{false, "random"},
		{true, "lobby"},
		{false, "general"},
		{false, "lobby"},
		{true, "general"},
	} {
		if op.join {
			r.handleJoinRoom("a", op.room)
		} else {
			r.handleLeaveRoom("a", op.room)
		}
		requireSingleRoom(t, r, "a")
	}
}

func TestLeaveCurrentRoomRehomesToDefault(t *testing.T) {
	r := newTestRelay(t)
	joinAs(r, "a", "alice", "lobby")

	r.handleLeaveRoom("a", "lobby")

	c, _ := r.registry.Lookup("a")
	require.Equal(t, "general", c.Room)
	requireSingleRoom(t, r, "a")
}

func TestLeaveOtherRoomIsNoop(t *testing.T) {
	r := newTestRelay(t)
	a := joinAs(r, "a", "alice", "lobby")

	r.handleLeaveRoom("a", "random")

	c, _ := r.registry.Lookup("a")
	require.Equal(t, "lobby", c.Room)
	require.Empty(t, a.frames)
}

func TestTypingBroadcastExcludesSetter(t *testing.T) {
	r := newTestRelay(t)
	a := joinAs(r, "a", "alice", "lobby")
	b := joinAs(r, "b", "bob", "lobby")

	r.handleSetTyping("a", true)

	require.Empty(t, a.typingFrames(), "the setter never receives typing updates")
	frames := b.typingFrames()
	require.Len(t, frames, 1)
	require.Equal(t, "lobby", frames[0].Room)
	require.Equal(t, []string{"alice"}, frames[0].Usernames)

	r.handleSetTyping("a", false)

	frames = b.typingFrames()
	require.Len(t, frames, 2)
	require.Empty(t, frames[1].Usernames)
}

func TestTypingClearedOnRoomSwitch(t *testing.T) {
	r := newTestRelay(t)
	joinAs(r, "a", "alice", "lobby")
	b := joinAs(r, "b", "bob", "lobby")

	r.handleSetTyping("a", true)
	r.handleJoinRoom("a", "random")

	frames := b.typingFrames()
	require.NotEmpty(t, frames)
	require.Empty(t, frames[len(frames)-1].Usernames,
		"leaving the room clears the typing entry")

	rm, _ := r.rooms.Get("lobby")
	require.Empty(t, rm.typingUsernames())
}

func TestTypingClearedOnDisconnect(t *testing.T) {
	r := newTestRelay(t)
	joinAs(r, "a", "alice", "lobby")
	b := joinAs(r, "b", "bob", "lobby")

	r.handleSetTyping("a", true)
	r.handleDisconnect("a")

	frames := b.typingFrames()
	require.NotEmpty(t, frames)
	require.Empty(t, frames[len(frames)-1].Usernames)
}

func TestTypingSetNeverContainsNonMember(t *testing.T) {
	r := newTestRelay(t)
	joinAs(r, "a", "alice", "lobby")
	joinAs(r, "b", "bob", "lobby")

	r.handleSetTyping("a", true)
	r.handleLeaveRoom("a", "lobby")
	r.handleDisconnect("b")

	rm, _ := r.rooms.Get("lobby")
	for _, u := range rm.typingUsernames() {
		var member bool
		for _, mc := range rm.members {
			if mc.Username == u {
				member = true
			}
		}
		require.True(t, member, "typing set contains non-member %q", u)
	}
	require.Empty(t, rm.typingUsernames())
}

func TestPrivateMessageEchoedToBothEnds(t *testing.T) {
	r := newTestRelay(t)
	a := joinAs(r, "a", "alice", "lobby")
	b := joinAs(r, "b", "bob", "random")
	c := joinAs(r, "c", "carol", "lobby")

	r.handleSendPrivate("a", "b", "psst")

	aFrames := a.privateFrames()
	bFrames := b.privateFrames()
	require.Len(t, aFrames, 1)
	require.Len(t, bFrames, 1)
	require.Equal(t, aFrames[0].Message, bFrames[0].Message,
		"sender and recipient receive the identical message")
	require.Equal(t, "psst", aFrames[0].Message.Content)
	require.Equal(t, domain.MessageTypePrivate, aFrames[0].Message.Type)

	require.Empty(t, c.frames, "unaddressed connections receive nothing")
}

func TestPrivateMessageToOfflineRecipientDropped(t *testing.T) {
	r := newTestRelay(t)
	a := joinAs(r, "a", "alice", "")

	r.handleSendPrivate("a", "nobody", "hello?")

	require.Empty(t, a.frames, "no delivery receipt, no error frame")
}

func TestDisconnectRemovesFromPresence(t *testing.T) {
	r := newTestRelay(t)
	joinAs(r, "a", "alice", "lobby")
	b := joinAs(r, "b", "bob", "lobby")

	r.handleDisconnect("a")

	_, ok := r.registry.Lookup("a")
	require.False(t, ok)

	lists := b.userLists()
	require.NotEmpty(t, lists)
	last := lists[len(lists)-1]
	require.Len(t, last.Users, 1)
	require.Equal(t, "bob", last.Users[0].Username)

	rm, _ := r.rooms.Get("lobby")
	require.False(t, rm.hasMember("a"))
}

func TestPresenceSnapshotInsertionOrder(t *testing.T) {
	r := newTestRelay(t)
	joinAs(r, "a", "alice", "")
	joinAs(r, "b", "bob", "")
	joinAs(r, "c", "carol", "")
	r.handleDisconnect("b")

	users := r.snapshot()
	require.Len(t, users, 2)
	require.Equal(t, "alice", users[0].Username)
	require.Equal(t, "carol", users[1].Username)
}

func TestPresenceExcludesUnidentified(t *testing.T) {
	r := newTestRelay(t)
	joinAs(r, "a", "alice", "")
	r.handleConnect("pending", &fakeConn{})

	users := r.snapshot()
	require.Len(t, users, 1)
	require.Equal(t, "alice", users[0].Username)
}

func TestEventLoopLinearizesQueries(t *testing.T) {
	r := newTestRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	a := &fakeConn{}
	b := &fakeConn{}
	r.Connect("a", a)
	r.Connect("b", b)
	r.Identify("a", "alice")
	r.Identify("b", "bob")
	r.SendPublic("a", "", "one")
	r.SendPublic("a", "", "two")

	// Queries flow through the same channel as mutations, so this read
	// observes every event dispatched above.
	qctx, qcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer qcancel()

	history, err := r.History(qctx, "general", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "one", history[0].Content)
	require.Equal(t, "two", history[1].Content)

	users, err := r.Users(qctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	rooms, err := r.Rooms(qctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	require.Equal(t, "general", rooms[0].Name)
	require.Equal(t, 2, rooms[0].Members)
	require.Equal(t, 2, rooms[0].Messages)
}

func TestQueriesFailAfterShutdown(t *testing.T) {
	r := newTestRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	cancel()
	<-r.Done()

	_, err := r.Users(context.Background())
	require.Error(t, err)
}
