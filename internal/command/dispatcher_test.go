package command_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ompatelz/chattingapp/internal/command"
	"github.com/ompatelz/chattingapp/internal/domain"
	"github.com/ompatelz/chattingapp/internal/service"
)

// fakeConn is a command.Conn whose outbound frames are captured for
// inspection.
type fakeConn struct {
	id       string
	username string
	frames   [][]byte
}

func (c *fakeConn) Send(payload []byte) bool {
	c.frames = append(c.frames, payload)
	return true
}

func (c *fakeConn) ID() string                  { return c.id }
func (c *fakeConn) Username() string            { return c.username }
func (c *fakeConn) SetUsername(username string) { c.username = username }

func (c *fakeConn) last(t *testing.T) map[string]any {
	t.Helper()
	require.NotEmpty(t, c.frames, "expected at least one reply")
	var f map[string]any
	require.NoError(t, json.Unmarshal(c.frames[len(c.frames)-1], &f))
	return f
}

func (c *fakeConn) lastError(t *testing.T) (code, msg string) {
	t.Helper()
	f := c.last(t)
	require.Equal(t, "error", f["type"])
	code, _ = f["code"].(string)
	msg, _ = f["msg"].(string)
	return code, msg
}

type harness struct {
	ctx        context.Context
	roster     *memRoster
	dispatcher *command.Dispatcher
	sessions   *service.SessionService
	rooms      *service.RoomService
}

type memRoster struct {
	peers map[string]service.Peer
}

func (r *memRoster) Peer(username string) (service.Peer, bool) {
	p, ok := r.peers[username]
	return p, ok
}

func (r *memRoster) Bind(username string, peer service.Peer) { r.peers[username] = peer }
func (r *memRoster) Unbind(username string)                  { delete(r.peers, username) }

type memUserRepo struct{ saved map[string]string }

func (m *memUserRepo) Load(ctx context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func (m *memUserRepo) Save(ctx context.Context, credentials map[string]string) error {
	m.saved = credentials
	return nil
}

type memRoomRepo struct{}

func (memRoomRepo) Load(ctx context.Context) (map[string]*domain.Room, error) {
	return map[string]*domain.Room{}, nil
}
func (memRoomRepo) Save(ctx context.Context, rooms map[string]*domain.Room) error { return nil }

type memHistoryRepo struct{}

func (memHistoryRepo) Load(ctx context.Context) (map[string][]domain.Message, error) {
	return map[string][]domain.Message{}, nil
}
func (memHistoryRepo) Save(ctx context.Context, history map[string][]domain.Message) error {
	return nil
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	roster := &memRoster{peers: make(map[string]service.Peer)}
	rooms := service.NewRoomService(memRoomRepo{}, roster)
	sessions := service.NewSessionService(&memUserRepo{}, rooms, roster)
	messages := service.NewMessageService(memHistoryRepo{}, sessions, rooms, roster)
	presence := service.NewPresenceService(sessions, rooms, roster)

	require.NoError(t, sessions.Restore(ctx))
	require.NoError(t, rooms.Restore(ctx))
	require.NoError(t, messages.Restore(ctx))

	return &harness{
		ctx:        ctx,
		roster:     roster,
		dispatcher: command.NewDispatcher(sessions, rooms, messages, presence),
		sessions:   sessions,
		rooms:      rooms,
	}
}

// signup runs a registration directive through the dispatcher and returns the
// now-authenticated connection.
func (h *harness) signup(t *testing.T, username string) *fakeConn {
	t.Helper()
	conn := &fakeConn{id: "conn-" + username}
	h.dispatcher.Dispatch(h.ctx, conn, "register "+username+" pw pw")
	f := conn.last(t)
	require.Equal(t, "auth_ok", f["type"])
	require.Equal(t, username, conn.Username())
	return conn
}

func TestDispatcher_RegisterAndLogin(t *testing.T) {
	h := newHarness(t)
	conn := h.signup(t, "alice")

	// Registration joins the lobby.
	room, ok := h.rooms.Get(service.LobbyRoom)
	require.True(t, ok)
	assert.True(t, room.IsMember("alice"))

	// A second auth attempt on the same connection is rejected.
	h.dispatcher.Dispatch(h.ctx, conn, "login alice pw")
	code, _ := conn.lastError(t)
	assert.Equal(t, "conflict", code)
}

func TestDispatcher_LoginInvalidCredentials(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "alice")

	conn := &fakeConn{id: "conn-2"}
	h.dispatcher.Dispatch(h.ctx, conn, "login alice wrong")
	f := conn.last(t)
	assert.Equal(t, "auth_fail", f["type"])
	assert.Empty(t, conn.Username())
}

func TestDispatcher_LoginSecondConnectionConflicts(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "alice")

	conn := &fakeConn{id: "conn-2"}
	h.dispatcher.Dispatch(h.ctx, conn, "login alice pw")
	code, _ := conn.lastError(t)
	assert.Equal(t, "conflict", code)
	assert.Empty(t, conn.Username())
}

func TestDispatcher_RegisterSecretMismatch(t *testing.T) {
	h := newHarness(t)
	conn := &fakeConn{id: "conn-1"}

	h.dispatcher.Dispatch(h.ctx, conn, "register alice pw other")
	code, _ := conn.lastError(t)
	assert.Equal(t, "conflict", code)
	assert.Empty(t, conn.Username())
}

func TestDispatcher_RequiresAuth(t *testing.T) {
	h := newHarness(t)
	conn := &fakeConn{id: "conn-1"}

	h.dispatcher.Dispatch(h.ctx, conn, "say general hello")
	code, _ := conn.lastError(t)
	assert.Equal(t, "auth", code)
}

func TestDispatcher_HelpIsPublic(t *testing.T) {
	h := newHarness(t)
	conn := &fakeConn{id: "conn-1"}

	h.dispatcher.Dispatch(h.ctx, conn, "help")
	f := conn.last(t)
	assert.Equal(t, "info", f["type"])
}

func TestDispatcher_UnknownDirective(t *testing.T) {
	h := newHarness(t)
	conn := h.signup(t, "alice")

	h.dispatcher.Dispatch(h.ctx, conn, "frobnicate")
	code, _ := conn.lastError(t)
	assert.Equal(t, "bad_syntax", code)
}

func TestDispatcher_BadArity(t *testing.T) {
	h := newHarness(t)
	conn := h.signup(t, "alice")

	for _, line := range []string{
		"join",
		"join a b",
		"createroom only-two true",
		"approve onlyroom",
		"dm bob",
		"typing general maybe",
	} {
		h.dispatcher.Dispatch(h.ctx, conn, line)
		code, _ := conn.lastError(t)
		assert.Equal(t, "bad_syntax", code, "line %q", line)
	}
}

func TestDispatcher_CreateroomRejectsNonBooleanFlags(t *testing.T) {
	h := newHarness(t)
	conn := h.signup(t, "alice")

	h.dispatcher.Dispatch(h.ctx, conn, "createroom team yes no")
	code, _ := conn.lastError(t)
	assert.Equal(t, "bad_syntax", code)
}

func TestDispatcher_SayPreservesMessageSpacing(t *testing.T) {
	h := newHarness(t)
	conn := h.signup(t, "alice")

	h.dispatcher.Dispatch(h.ctx, conn, "say general hello   spaced world")
	f := conn.last(t)
	require.Equal(t, "message", f["type"])
	assert.Equal(t, "hello   spaced world", f["text"])
}

func TestDispatcher_LeadingSlashAccepted(t *testing.T) {
	h := newHarness(t)
	conn := h.signup(t, "alice")

	h.dispatcher.Dispatch(h.ctx, conn, "/rooms")
	f := conn.last(t)
	assert.Equal(t, "rooms_list", f["type"])
}

func TestDispatcher_ShutdownFlow(t *testing.T) {
	h := newHarness(t)
	bob := h.signup(t, "bob")
	carol := h.signup(t, "carol")

	h.dispatcher.Dispatch(h.ctx, bob, "createroom team true true")
	require.Equal(t, "room_created", bob.last(t)["type"])
	h.dispatcher.Dispatch(h.ctx, carol, "join team")
	require.Equal(t, "joined", carol.last(t)["type"])

	// A member who is not the admin cannot close the room.
	h.dispatcher.Dispatch(h.ctx, carol, "shutdown team")
	code, _ := carol.lastError(t)
	assert.Equal(t, "not_authorized", code)

	h.dispatcher.Dispatch(h.ctx, bob, "shutdown team")
	assert.Equal(t, "room_closed", carol.last(t)["type"])

	// Posting into a closed room fails on state, not membership.
	h.dispatcher.Dispatch(h.ctx, bob, "say team anyone")
	code, _ = bob.lastError(t)
	assert.Equal(t, "state", code)
}

func TestDispatcher_ApprovalFlow(t *testing.T) {
	h := newHarness(t)
	bob := h.signup(t, "bob")
	carol := h.signup(t, "carol")

	h.dispatcher.Dispatch(h.ctx, bob, "createroom team false true")
	h.dispatcher.Dispatch(h.ctx, carol, "join team")
	assert.Equal(t, "request_ack", carol.last(t)["type"])

	h.dispatcher.Dispatch(h.ctx, carol, "approve team carol")
	code, _ := carol.lastError(t)
	assert.Equal(t, "not_authorized", code)

	h.dispatcher.Dispatch(h.ctx, bob, "approve team dave")
	code, _ = bob.lastError(t)
	assert.Equal(t, "not_found", code)

	h.dispatcher.Dispatch(h.ctx, bob, "approve team carol")
	room, _ := h.rooms.Get("team")
	assert.True(t, room.IsMember("carol"))
}

func TestDispatcher_DMDeliveryAck(t *testing.T) {
	h := newHarness(t)
	alice := h.signup(t, "alice")
	bob := h.signup(t, "bob")

	h.dispatcher.Dispatch(h.ctx, alice, "dm bob hi there")
	f := alice.last(t)
	require.Equal(t, "dm_sent", f["type"])
	assert.Equal(t, true, f["delivered"])
	assert.Equal(t, "hi there", bob.last(t)["text"])

	h.dispatcher.Dispatch(h.ctx, alice, "dm ghost hi")
	code, _ := alice.lastError(t)
	assert.Equal(t, "not_found", code)
}

func TestDispatcher_WhoAndHistoryDefaultToLobby(t *testing.T) {
	h := newHarness(t)
	alice := h.signup(t, "alice")

	h.dispatcher.Dispatch(h.ctx, alice, "say general first post")
	h.dispatcher.Dispatch(h.ctx, alice, "history")
	f := alice.last(t)
	require.Equal(t, "history", f["type"])
	assert.Equal(t, service.LobbyRoom, f["room"])
	msgs, ok := f["messages"].([]any)
	require.True(t, ok, "history must always carry a messages list")
	assert.Len(t, msgs, 1)

	h.dispatcher.Dispatch(h.ctx, alice, "who")
	f = alice.last(t)
	require.Equal(t, "presence", f["type"])
	assert.Equal(t, service.LobbyRoom, f["room"])
	users, ok := f["users"].([]any)
	require.True(t, ok)
	assert.Len(t, users, 1)
}

func TestDispatcher_DisconnectedClearsSession(t *testing.T) {
	h := newHarness(t)
	alice := h.signup(t, "alice")

	h.dispatcher.Disconnected(h.ctx, alice)

	user, ok := h.sessions.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, domain.StatusOffline, user.Status)
	_, connected := h.roster.Peer("alice")
	assert.False(t, connected)

	// A connection that never authenticated is a no-op.
	h.dispatcher.Disconnected(h.ctx, &fakeConn{id: "conn-x"})
}
