package service

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ompatelz/chattingapp/internal/domain"
	"github.com/ompatelz/chattingapp/internal/protocol"
)

const (
	// IdleAfter is how long a connected user may be silent before the sweep
	// marks them idle.
	IdleAfter = 5 * time.Minute
	// SweepInterval is how often the presence sweep runs.
	SweepInterval = 5 * time.Second
)

// PresenceService drives the per-user liveness state machine:
// online -> idle on inactivity, idle -> online on any inbound activity.
// Offline transitions belong to SessionService.Disconnect.
type PresenceService struct {
	sessions *SessionService
	rooms    *RoomService
	roster   Roster
}

func NewPresenceService(sessions *SessionService, rooms *RoomService, roster Roster) *PresenceService {
	if sessions == nil {
		panic("SessionService cannot be nil for PresenceService")
	}
	if rooms == nil {
		panic("RoomService cannot be nil for PresenceService")
	}
	if roster == nil {
		panic("Roster cannot be nil for PresenceService")
	}
	return &PresenceService{sessions: sessions, rooms: rooms, roster: roster}
}

// Sweep transitions every connected online user whose last activity is older
// than the idle threshold into idle, broadcasting the change to their rooms.
// Deliveries are non-blocking, so one slow connection cannot stall the sweep.
func (s *PresenceService) Sweep(now time.Time) {
	for username, user := range s.sessions.users {
		if user.Status != domain.StatusOnline {
			continue
		}
		if _, connected := s.roster.Peer(username); !connected {
			continue
		}
		if now.Sub(user.LastActive) <= IdleAfter {
			continue
		}
		user.Status = domain.StatusIdle
		notifyPresence(s.rooms, s.roster, username, domain.StatusIdle)
		logrus.WithField("user", username).Debug("User marked idle")
	}
}

// Touch records inbound activity: refreshes the activity timestamp and, if
// the user had gone idle, flips them back online with a broadcast.
func (s *PresenceService) Touch(username string, now time.Time) {
	user, ok := s.sessions.users[username]
	if !ok {
		return
	}
	user.LastActive = now
	if user.Status == domain.StatusIdle {
		user.Status = domain.StatusOnline
		notifyPresence(s.rooms, s.roster, username, domain.StatusOnline)
	}
}

// Who reports every member of a room with status and activity label.
func (s *PresenceService) Who(requester, roomName string) ([]protocol.PresenceEntry, error) {
	room, ok := s.rooms.Get(roomName)
	if !ok {
		return nil, ErrRoomNotFound
	}
	entries := make([]protocol.PresenceEntry, 0, len(room.Members))
	for member := range room.Members {
		entry := protocol.PresenceEntry{Username: member, Status: string(domain.StatusOffline)}
		if user, ok := s.sessions.Lookup(member); ok {
			entry.Status = string(user.Status)
			entry.Activity = user.Activity
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Username < entries[j].Username })
	return entries, nil
}
