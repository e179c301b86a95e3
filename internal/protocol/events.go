// Package protocol defines the outbound wire frames. Every frame is a single
// JSON object with a "type" discriminant; the shapes match what the terminal
// client consumes.
package protocol

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/ompatelz/chattingapp/internal/domain"
)

// Error codes carried on error frames so clients can distinguish failure
// kinds without parsing prose.
const (
	CodeBadSyntax     = "bad_syntax"
	CodeAuth          = "auth"
	CodeNotAuthorized = "not_authorized"
	CodeNotFound      = "not_found"
	CodeConflict      = "conflict"
	CodeState         = "state"
)

type frame struct {
	Type string `json:"type"`

	Msg      string `json:"msg,omitempty"`
	Code     string `json:"code,omitempty"`
	Room     string `json:"room,omitempty"`
	Username string `json:"username,omitempty"`
	User     string `json:"user,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Text     string `json:"text,omitempty"`
	Status   string `json:"status,omitempty"`
	TS       int64  `json:"ts,omitempty"`

	Delivered *bool `json:"delivered,omitempty"`
}

// PresenceEntry is one member's slice of a who reply.
type PresenceEntry struct {
	Username string `json:"username"`
	Status   string `json:"status"`
	Activity string `json:"activity"`
}

func encode(f frame) []byte { return marshal(f.Type, f) }

func marshal(frameType string, v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Frames are built from plain values, so this only fires on a bug.
		logrus.WithError(err).WithField("frame_type", frameType).Error("Failed to marshal outbound frame")
		return []byte(`{"type":"error","code":"state","msg":"internal encoding error"}`)
	}
	return data
}

func Info(msg string) []byte { return encode(frame{Type: "info", Msg: msg}) }

func Error(code, msg string) []byte { return encode(frame{Type: "error", Code: code, Msg: msg}) }

func AuthOK(username string) []byte {
	return encode(frame{Type: "auth_ok", Msg: "Logged in as " + username})
}

func AuthFail(msg string) []byte { return encode(frame{Type: "auth_fail", Msg: msg}) }

func Message(msg domain.Message) []byte {
	return encode(frame{Type: "message", Room: msg.Room, Username: msg.Sender, Text: msg.Body, TS: msg.Timestamp})
}

func Direct(msg domain.Message) []byte {
	return encode(frame{Type: "dm", From: msg.Sender, Text: msg.Body, TS: msg.Timestamp})
}

func DirectSent(to string, delivered bool) []byte {
	return encode(frame{Type: "dm_sent", To: to, Delivered: &delivered})
}

func RoomCreated(room string) []byte { return encode(frame{Type: "room_created", Room: room}) }

func RoomUpdated(room string) []byte { return encode(frame{Type: "room_updated", Room: room}) }

func Joined(room string) []byte { return encode(frame{Type: "joined", Room: room}) }

// RoomJoin is the membership-changed broadcast sent to a room.
func RoomJoin(room, username string) []byte {
	return encode(frame{Type: "room_join", Room: room, Username: username})
}

func JoinRequest(room, user string) []byte {
	return encode(frame{Type: "join_request", Room: room, User: user})
}

func RequestAck(room string) []byte { return encode(frame{Type: "request_ack", Room: room}) }

func JoinDenied(room string) []byte { return encode(frame{Type: "join_denied", Room: room}) }

func RoomClosed(room string) []byte { return encode(frame{Type: "room_closed", Room: room}) }

// The list-bearing frames use dedicated shapes so an empty list still
// serializes as [] rather than being dropped.

func RoomsList(rooms []domain.Summary) []byte {
	if rooms == nil {
		rooms = []domain.Summary{}
	}
	return marshal("rooms_list", struct {
		Type  string           `json:"type"`
		Rooms []domain.Summary `json:"rooms"`
	}{"rooms_list", rooms})
}

func Presence(room string, users []PresenceEntry) []byte {
	if users == nil {
		users = []PresenceEntry{}
	}
	return marshal("presence", struct {
		Type  string          `json:"type"`
		Room  string          `json:"room"`
		Users []PresenceEntry `json:"users"`
	}{"presence", room, users})
}

func PresenceUpdate(user string, status domain.Status) []byte {
	return encode(frame{Type: "presence_update", User: user, Status: string(status)})
}

func Typing(room string, users []string) []byte {
	if users == nil {
		users = []string{}
	}
	return marshal("typing", struct {
		Type   string   `json:"type"`
		Room   string   `json:"room"`
		Typing []string `json:"typing"`
	}{"typing", room, users})
}

func History(room string, messages []domain.Message) []byte {
	if messages == nil {
		messages = []domain.Message{}
	}
	return marshal("history", struct {
		Type     string           `json:"type"`
		Room     string           `json:"room"`
		Messages []domain.Message `json:"messages"`
	}{"history", room, messages})
}
