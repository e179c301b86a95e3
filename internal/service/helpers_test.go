package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ompatelz/chattingapp/internal/domain"
	"github.com/ompatelz/chattingapp/internal/service"
)

// fakePeer collects everything delivered to one connection. full simulates a
// slow consumer whose queue rejects every payload.
type fakePeer struct {
	frames [][]byte
	full   bool
}

func (p *fakePeer) Send(payload []byte) bool {
	if p.full {
		return false
	}
	p.frames = append(p.frames, payload)
	return true
}

// frameTypes decodes the "type" discriminant of every received frame.
func (p *fakePeer) frameTypes(t *testing.T) []string {
	t.Helper()
	types := make([]string, 0, len(p.frames))
	for _, raw := range p.frames {
		var f struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(raw, &f))
		types = append(types, f.Type)
	}
	return types
}

func (p *fakePeer) countType(t *testing.T, want string) int {
	t.Helper()
	n := 0
	for _, typ := range p.frameTypes(t) {
		if typ == want {
			n++
		}
	}
	return n
}

// countRoomType counts frames of one type scoped to one room, so lobby
// arrival broadcasts do not leak into assertions about other rooms.
func (p *fakePeer) countRoomType(t *testing.T, want, room string) int {
	t.Helper()
	n := 0
	for _, raw := range p.frames {
		var f struct {
			Type string `json:"type"`
			Room string `json:"room"`
		}
		require.NoError(t, json.Unmarshal(raw, &f))
		if f.Type == want && f.Room == room {
			n++
		}
	}
	return n
}

func (p *fakePeer) lastFrame(t *testing.T) map[string]any {
	t.Helper()
	require.NotEmpty(t, p.frames)
	var f map[string]any
	require.NoError(t, json.Unmarshal(p.frames[len(p.frames)-1], &f))
	return f
}

type fakeRoster struct {
	peers map[string]service.Peer
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{peers: make(map[string]service.Peer)}
}

func (r *fakeRoster) Peer(username string) (service.Peer, bool) {
	peer, ok := r.peers[username]
	return peer, ok
}

func (r *fakeRoster) Bind(username string, peer service.Peer) { r.peers[username] = peer }
func (r *fakeRoster) Unbind(username string)                  { delete(r.peers, username) }

// In-memory repositories. Saves retain the last snapshot so tests can assert
// on what would have been persisted.

type memUserRepo struct {
	saved     map[string]string
	saveCount int
}

func (m *memUserRepo) Load(ctx context.Context) (map[string]string, error) {
	if m.saved == nil {
		return map[string]string{}, nil
	}
	return m.saved, nil
}

func (m *memUserRepo) Save(ctx context.Context, credentials map[string]string) error {
	m.saved = credentials
	m.saveCount++
	return nil
}

type memRoomRepo struct {
	saveCount int
}

func (m *memRoomRepo) Load(ctx context.Context) (map[string]*domain.Room, error) {
	return map[string]*domain.Room{}, nil
}

func (m *memRoomRepo) Save(ctx context.Context, rooms map[string]*domain.Room) error {
	m.saveCount++
	return nil
}

type memHistoryRepo struct {
	saveCount int
}

func (m *memHistoryRepo) Load(ctx context.Context) (map[string][]domain.Message, error) {
	return map[string][]domain.Message{}, nil
}

func (m *memHistoryRepo) Save(ctx context.Context, history map[string][]domain.Message) error {
	m.saveCount++
	return nil
}

// core is a fully wired service stack over fakes.
type core struct {
	ctx      context.Context
	roster   *fakeRoster
	userRepo *memUserRepo
	sessions *service.SessionService
	rooms    *service.RoomService
	messages *service.MessageService
	presence *service.PresenceService
}

func newCore(t *testing.T) *core {
	t.Helper()
	ctx := context.Background()
	roster := newFakeRoster()
	userRepo := &memUserRepo{}
	rooms := service.NewRoomService(&memRoomRepo{}, roster)
	sessions := service.NewSessionService(userRepo, rooms, roster)
	messages := service.NewMessageService(&memHistoryRepo{}, sessions, rooms, roster)
	presence := service.NewPresenceService(sessions, rooms, roster)

	require.NoError(t, sessions.Restore(ctx))
	require.NoError(t, rooms.Restore(ctx))
	require.NoError(t, messages.Restore(ctx))

	return &core{
		ctx:      ctx,
		roster:   roster,
		userRepo: userRepo,
		sessions: sessions,
		rooms:    rooms,
		messages: messages,
		presence: presence,
	}
}

// connect registers a user through the session service and returns their
// peer.
func (c *core) connect(t *testing.T, username string) *fakePeer {
	t.Helper()
	peer := &fakePeer{}
	_, err := c.sessions.Register(c.ctx, username, "secret-"+username, "secret-"+username, peer)
	require.NoError(t, err)
	c.rooms.AddToLobby(c.ctx, username)
	return peer
}
