package service

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ompatelz/chattingapp/internal/domain"
	"github.com/ompatelz/chattingapp/internal/protocol"
	"github.com/ompatelz/chattingapp/internal/repository"
)

// MessageService is the fan-out engine: room broadcasts, direct messages,
// typing indicators, and the bounded per-room history.
type MessageService struct {
	history  map[string][]domain.Message
	typing   map[string]map[string]struct{}
	repo     repository.HistoryRepository
	sessions *SessionService
	rooms    *RoomService
	roster   Roster
}

func NewMessageService(repo repository.HistoryRepository, sessions *SessionService, rooms *RoomService, roster Roster) *MessageService {
	if repo == nil {
		panic("HistoryRepository cannot be nil for MessageService")
	}
	if sessions == nil {
		panic("SessionService cannot be nil for MessageService")
	}
	if rooms == nil {
		panic("RoomService cannot be nil for MessageService")
	}
	if roster == nil {
		panic("Roster cannot be nil for MessageService")
	}
	return &MessageService{
		history:  make(map[string][]domain.Message),
		typing:   make(map[string]map[string]struct{}),
		repo:     repo,
		sessions: sessions,
		rooms:    rooms,
		roster:   roster,
	}
}

// Restore loads the history collection.
func (s *MessageService) Restore(ctx context.Context) error {
	history, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	s.history = history
	logrus.WithField("rooms", len(s.history)).Info("Message history restored")
	return nil
}

// Broadcast appends a message to the room's history, persists the delta, and
// delivers it to every currently connected member. Acceptance order here is
// delivery order for the room; each recipient's delivery is independent and
// best-effort.
func (s *MessageService) Broadcast(ctx context.Context, sender, roomName, body string) (domain.Message, error) {
	room, ok := s.rooms.Get(roomName)
	if !ok {
		return domain.Message{}, ErrRoomNotFound
	}
	if room.Shutdown {
		return domain.Message{}, ErrRoomShutdown
	}
	if !room.IsMember(sender) {
		return domain.Message{}, ErrNotMember
	}

	msg := domain.Message{
		Room:      roomName,
		Sender:    sender,
		Body:      body,
		Timestamp: time.Now().Unix(),
	}
	s.append(roomName, msg)
	s.persist(ctx)

	deliverToRoom(s.roster, room, protocol.Message(msg), "")
	return msg, nil
}

// Direct sends a one-off message to a single user. Nothing is persisted; an
// offline recipient yields delivered=false and the message is gone.
func (s *MessageService) Direct(sender, recipient, body string) (bool, error) {
	if _, ok := s.sessions.Lookup(recipient); !ok {
		return false, ErrUserNotFound
	}
	peer, connected := s.roster.Peer(recipient)
	if !connected {
		return false, nil
	}
	msg := domain.Message{
		Sender:    sender,
		Recipient: recipient,
		Body:      body,
		Timestamp: time.Now().Unix(),
	}
	delivered := peer.Send(protocol.Direct(msg))
	return delivered, nil
}

// Typing toggles the sender in the room's typing set and broadcasts the
// current set to the other members. Ephemeral: never persisted.
func (s *MessageService) Typing(ctx context.Context, sender, roomName string, active bool) error {
	room, ok := s.rooms.Get(roomName)
	if !ok {
		return ErrRoomNotFound
	}
	if room.Shutdown {
		return ErrRoomShutdown
	}
	if !room.IsMember(sender) {
		return ErrNotMember
	}

	set, ok := s.typing[roomName]
	if !ok {
		set = make(map[string]struct{})
		s.typing[roomName] = set
	}
	if active {
		set[sender] = struct{}{}
	} else {
		delete(set, sender)
	}

	if user, ok := s.sessions.Lookup(sender); ok {
		if active {
			user.Activity = "typing in #" + roomName
		} else if user.Activity == "typing in #"+roomName {
			user.Activity = ""
		}
	}

	deliverToRoom(s.roster, room, protocol.Typing(roomName, s.typingUsers(roomName)), sender)
	return nil
}

// ClearTyping removes a user from every typing set, broadcasting the updated
// set to each affected room. Called on disconnect.
func (s *MessageService) ClearTyping(username string) {
	for roomName, set := range s.typing {
		if _, ok := set[username]; !ok {
			continue
		}
		delete(set, username)
		if room, ok := s.rooms.Get(roomName); ok {
			deliverToRoom(s.roster, room, protocol.Typing(roomName, s.typingUsers(roomName)), username)
		}
	}
}

// History returns the room's buffered messages, oldest first. Membership is
// required.
func (s *MessageService) History(requester, roomName string) ([]domain.Message, error) {
	room, ok := s.rooms.Get(roomName)
	if !ok {
		return nil, ErrRoomNotFound
	}
	if !room.IsMember(requester) {
		return nil, ErrNotMember
	}
	msgs := s.history[roomName]
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MessageService) append(roomName string, msg domain.Message) {
	msgs := append(s.history[roomName], msg)
	if len(msgs) > domain.HistoryLimit {
		msgs = msgs[len(msgs)-domain.HistoryLimit:]
	}
	s.history[roomName] = msgs
}

func (s *MessageService) typingUsers(roomName string) []string {
	set := s.typing[roomName]
	users := make([]string, 0, len(set))
	for u := range set {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

func (s *MessageService) persist(ctx context.Context) {
	if err := s.repo.Save(ctx, s.history); err != nil {
		logrus.WithError(err).Error("Failed to persist history")
	}
}
