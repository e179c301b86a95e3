// Package service implements the chat core: sessions, rooms, message routing,
// and presence. The services share the in-memory tables they jointly own and
// are not safe for concurrent use; the hub's event loop is the single caller
// for every state-mutating operation, which is what makes each operation
// atomic relative to the others.
package service

import (
	"github.com/sirupsen/logrus"

	"github.com/ompatelz/chattingapp/internal/domain"
	"github.com/ompatelz/chattingapp/internal/protocol"
)

// Peer is the outbound half of a live connection. Send must never block; it
// returns false when the payload was dropped (full queue or closed
// connection). A drop affects that recipient only.
type Peer interface {
	Send(payload []byte) bool
}

// Roster tracks which usernames currently have a live connection bound. The
// hub implements it; a user absent from the roster is offline.
type Roster interface {
	Peer(username string) (Peer, bool)
	Bind(username string, peer Peer)
	Unbind(username string)
}

// deliverToRoom pushes a payload to every currently connected member of a
// room, skipping except. Failed or slow recipients are dropped independently.
func deliverToRoom(roster Roster, room *domain.Room, payload []byte, except string) {
	for member := range room.Members {
		if member == except {
			continue
		}
		peer, ok := roster.Peer(member)
		if !ok {
			continue
		}
		if !peer.Send(payload) {
			logrus.WithFields(logrus.Fields{
				"room": room.Name,
				"user": member,
			}).Warn("Send queue full, dropping delivery for recipient")
		}
	}
}

// notifyPresence broadcasts a presence change to every room the user belongs
// to. Used by the sweep, by inbound-activity refresh, and by disconnect.
func notifyPresence(rooms *RoomService, roster Roster, username string, status domain.Status) {
	payload := protocol.PresenceUpdate(username, status)
	for _, room := range rooms.RoomsFor(username) {
		deliverToRoom(roster, room, payload, "")
	}
}
