package service

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ompatelz/chattingapp/internal/domain"
	"github.com/ompatelz/chattingapp/internal/protocol"
	"github.com/ompatelz/chattingapp/internal/repository"
)

// LobbyRoom always exists and every authenticated user is a member. It has no
// admin, so admin-gated operations on it never authorize.
const LobbyRoom = "general"

// RoomService owns the room table: lifecycle, membership, and the
// join-approval workflow.
type RoomService struct {
	rooms  map[string]*domain.Room
	repo   repository.RoomRepository
	roster Roster
}

func NewRoomService(repo repository.RoomRepository, roster Roster) *RoomService {
	if repo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if roster == nil {
		panic("Roster cannot be nil for RoomService")
	}
	return &RoomService{
		rooms:  make(map[string]*domain.Room),
		repo:   repo,
		roster: roster,
	}
}

// Restore loads the room collection and makes sure the lobby exists.
func (s *RoomService) Restore(ctx context.Context) error {
	rooms, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	s.rooms = rooms
	if _, ok := s.rooms[LobbyRoom]; !ok {
		lobby := domain.NewRoom(LobbyRoom, "", true, true)
		s.rooms[LobbyRoom] = lobby
		s.persist(ctx)
	}
	logrus.WithField("count", len(s.rooms)).Info("Rooms restored")
	return nil
}

// Create makes a new room with the creator as admin and sole member.
func (s *RoomService) Create(ctx context.Context, admin, name string, openJoin, visible bool) (*domain.Room, error) {
	if _, exists := s.rooms[name]; exists {
		return nil, ErrNameTaken
	}
	room := domain.NewRoom(name, admin, openJoin, visible)
	s.rooms[name] = room
	s.persist(ctx)
	logrus.WithFields(logrus.Fields{"room": name, "admin": admin}).Info("Room created")
	return room, nil
}

// List returns summaries of every room visible to the requester: all visible
// rooms plus hidden ones the requester belongs to.
func (s *RoomService) List(requester string) []domain.Summary {
	out := make([]domain.Summary, 0, len(s.rooms))
	for _, room := range s.rooms {
		if room.Visible || room.IsMember(requester) {
			out = append(out, room.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Join adds the user to an open room immediately, or files a pending request
// on a closed one. Returns whether the user is a member afterwards.
// Re-requesting a closed room is idempotent.
func (s *RoomService) Join(ctx context.Context, username, name string) (bool, error) {
	room, ok := s.rooms[name]
	if !ok {
		return false, ErrRoomNotFound
	}
	if room.Shutdown {
		return false, ErrRoomShutdown
	}
	if room.IsMember(username) {
		return true, nil
	}

	if room.OpenJoin {
		room.Members[username] = struct{}{}
		s.persist(ctx)
		deliverToRoom(s.roster, room, protocol.RoomJoin(name, username), "")
		logrus.WithFields(logrus.Fields{"room": name, "user": username}).Info("User joined room")
		return true, nil
	}

	if !room.IsPending(username) {
		room.Pending[username] = struct{}{}
		s.persist(ctx)
	}
	if adminPeer, connected := s.roster.Peer(room.Admin); connected {
		adminPeer.Send(protocol.JoinRequest(name, username))
	}
	logrus.WithFields(logrus.Fields{"room": name, "user": username}).Info("Join request filed")
	return false, nil
}

// Approve moves a pending user into members, notifies them, and broadcasts
// the membership change to the room.
func (s *RoomService) Approve(ctx context.Context, admin, name, username string) error {
	room, ok := s.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	if room.Admin != admin {
		return ErrNotAdmin
	}
	if !room.IsPending(username) {
		return ErrNoSuchRequest
	}

	delete(room.Pending, username)
	room.Members[username] = struct{}{}
	s.persist(ctx)

	if peer, connected := s.roster.Peer(username); connected {
		peer.Send(protocol.Joined(name))
	}
	deliverToRoom(s.roster, room, protocol.RoomJoin(name, username), username)
	logrus.WithFields(logrus.Fields{"room": name, "user": username, "admin": admin}).Info("Join request approved")
	return nil
}

// Deny drops a pending request and notifies the denied user. The room is not
// broadcast to.
func (s *RoomService) Deny(ctx context.Context, admin, name, username string) error {
	room, ok := s.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	if room.Admin != admin {
		return ErrNotAdmin
	}
	if !room.IsPending(username) {
		return ErrNoSuchRequest
	}

	delete(room.Pending, username)
	s.persist(ctx)

	if peer, connected := s.roster.Peer(username); connected {
		peer.Send(protocol.JoinDenied(name))
	}
	logrus.WithFields(logrus.Fields{"room": name, "user": username, "admin": admin}).Info("Join request denied")
	return nil
}

// Edit updates the join policy and visibility flags. Switching a closed room
// to open flushes pending requests into members once, so no request is left
// stuck behind a policy that no longer exists.
func (s *RoomService) Edit(ctx context.Context, admin, name string, openJoin, visible *bool) error {
	room, ok := s.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	if room.Admin != admin {
		return ErrNotAdmin
	}

	openedUp := false
	if openJoin != nil {
		openedUp = *openJoin && !room.OpenJoin
		room.OpenJoin = *openJoin
	}
	if visible != nil {
		room.Visible = *visible
	}

	if openedUp {
		for username := range room.Pending {
			delete(room.Pending, username)
			room.Members[username] = struct{}{}
			if peer, connected := s.roster.Peer(username); connected {
				peer.Send(protocol.Joined(name))
			}
			deliverToRoom(s.roster, room, protocol.RoomJoin(name, username), username)
		}
	}

	s.persist(ctx)
	logrus.WithFields(logrus.Fields{"room": name, "admin": admin}).Info("Room updated")
	return nil
}

// Close marks the room shut down, broadcasts room-closed to its members, and
// thereafter every join or send is rejected. Shutdown is monotonic.
func (s *RoomService) Close(ctx context.Context, admin, name string) error {
	room, ok := s.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	if room.Admin != admin {
		return ErrNotAdmin
	}
	if room.Shutdown {
		return nil
	}

	room.Shutdown = true
	s.persist(ctx)
	deliverToRoom(s.roster, room, protocol.RoomClosed(name), "")
	logrus.WithFields(logrus.Fields{"room": name, "admin": admin}).Info("Room shut down")
	return nil
}

// AddToLobby puts a freshly authenticated user into the lobby and announces
// the arrival to everyone else there. The arriving user already holds an auth
// acknowledgement, so they are not echoed to.
func (s *RoomService) AddToLobby(ctx context.Context, username string) {
	lobby, ok := s.rooms[LobbyRoom]
	if !ok {
		return
	}
	if !lobby.IsMember(username) {
		lobby.Members[username] = struct{}{}
		s.persist(ctx)
	}
	deliverToRoom(s.roster, lobby, protocol.RoomJoin(LobbyRoom, username), username)
}

// Get returns the room by name.
func (s *RoomService) Get(name string) (*domain.Room, bool) {
	room, ok := s.rooms[name]
	return room, ok
}

// RoomsFor returns every room the user is a member of.
func (s *RoomService) RoomsFor(username string) []*domain.Room {
	var out []*domain.Room
	for _, room := range s.rooms {
		if room.IsMember(username) {
			out = append(out, room)
		}
	}
	return out
}

func (s *RoomService) persist(ctx context.Context) {
	if err := s.repo.Save(ctx, s.rooms); err != nil {
		logrus.WithError(err).Error("Failed to persist rooms")
	}
}
