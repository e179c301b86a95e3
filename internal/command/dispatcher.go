// Package command maps inbound textual directives onto the core services and
// renders results and failures back to the originating connection. It carries
// no state of its own, but it is the only caller of every state-mutating
// operation, so the authenticate -> authorize -> validate -> mutate ->
// persist -> broadcast order is enforced here.
package command

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ompatelz/chattingapp/internal/protocol"
	"github.com/ompatelz/chattingapp/internal/service"
)

const helpText = "help\n" +
	"login <user> <secret>\n" +
	"register <user> <secret> <secret>\n" +
	"rooms\n" +
	"who [room]\n" +
	"join <room>\n" +
	"createroom <room> <open:true|false> <visible:true|false>\n" +
	"editroom <room> [open] [visible]\n" +
	"shutdown <room>\n" +
	"approve <room> <user>\n" +
	"deny <room> <user>\n" +
	"say <room> <message>\n" +
	"dm <user> <message>\n" +
	"typing <room> <on|off>\n" +
	"history [room]\n"

// Conn is the dispatcher's view of one live connection: its identity binding
// plus the non-blocking outbound queue. The hub's client implements it.
type Conn interface {
	service.Peer
	ID() string
	Username() string
	SetUsername(username string)
}

// Dispatcher routes one directive at a time. It must only ever be invoked
// from the hub's event loop.
type Dispatcher struct {
	sessions *service.SessionService
	rooms    *service.RoomService
	messages *service.MessageService
	presence *service.PresenceService
}

func NewDispatcher(sessions *service.SessionService, rooms *service.RoomService, messages *service.MessageService, presence *service.PresenceService) *Dispatcher {
	if sessions == nil || rooms == nil || messages == nil || presence == nil {
		panic("Dispatcher requires all services")
	}
	return &Dispatcher{sessions: sessions, rooms: rooms, messages: messages, presence: presence}
}

// Dispatch handles a single inbound directive line. Every failure becomes a
// reply to conn only; nothing here ever terminates the connection.
func (d *Dispatcher) Dispatch(ctx context.Context, conn Conn, line string) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "/")
	if line == "" {
		return
	}

	verbToken, remainder := chompField(line)
	verb := strings.ToLower(verbToken)
	args := strings.Fields(remainder)

	logrus.WithFields(logrus.Fields{
		"conn_id": conn.ID(),
		"user":    conn.Username(),
		"verb":    verb,
	}).Debug("Dispatching directive")

	switch verb {
	case "help":
		conn.Send(protocol.Info(helpText))
		return
	case "login":
		d.login(ctx, conn, args)
		return
	case "register":
		d.register(ctx, conn, args)
		return
	}

	// Everything below requires an authenticated session.
	username := conn.Username()
	if username == "" {
		conn.Send(protocol.Error(protocol.CodeAuth, "please authenticate first (login or register)"))
		return
	}
	d.presence.Touch(username, time.Now())

	switch verb {
	case "rooms":
		conn.Send(protocol.RoomsList(d.rooms.List(username)))

	case "join":
		if len(args) != 1 {
			d.badSyntax(conn, "join <room>")
			return
		}
		member, err := d.rooms.Join(ctx, username, args[0])
		if err != nil {
			d.fail(conn, err)
			return
		}
		if member {
			conn.Send(protocol.Joined(args[0]))
		} else {
			conn.Send(protocol.RequestAck(args[0]))
		}

	case "createroom":
		if len(args) != 3 {
			d.badSyntax(conn, "createroom <room> <open:true|false> <visible:true|false>")
			return
		}
		openJoin, okOpen := parseBool(args[1])
		visible, okVisible := parseBool(args[2])
		if !okOpen || !okVisible {
			d.badSyntax(conn, "flags must be true or false")
			return
		}
		if _, err := d.rooms.Create(ctx, username, args[0], openJoin, visible); err != nil {
			d.fail(conn, err)
			return
		}
		conn.Send(protocol.RoomCreated(args[0]))

	case "editroom":
		if len(args) < 1 || len(args) > 3 {
			d.badSyntax(conn, "editroom <room> [open] [visible]")
			return
		}
		var openJoin, visible *bool
		if len(args) >= 2 {
			v, ok := parseBool(args[1])
			if !ok {
				d.badSyntax(conn, "flags must be true or false")
				return
			}
			openJoin = &v
		}
		if len(args) == 3 {
			v, ok := parseBool(args[2])
			if !ok {
				d.badSyntax(conn, "flags must be true or false")
				return
			}
			visible = &v
		}
		if err := d.rooms.Edit(ctx, username, args[0], openJoin, visible); err != nil {
			d.fail(conn, err)
			return
		}
		conn.Send(protocol.RoomUpdated(args[0]))

	case "shutdown":
		if len(args) != 1 {
			d.badSyntax(conn, "shutdown <room>")
			return
		}
		if err := d.rooms.Close(ctx, username, args[0]); err != nil {
			d.fail(conn, err)
			return
		}

	case "approve":
		if len(args) != 2 {
			d.badSyntax(conn, "approve <room> <user>")
			return
		}
		if err := d.rooms.Approve(ctx, username, args[0], args[1]); err != nil {
			d.fail(conn, err)
			return
		}
		conn.Send(protocol.Info("approved " + args[1] + " into " + args[0]))

	case "deny":
		if len(args) != 2 {
			d.badSyntax(conn, "deny <room> <user>")
			return
		}
		if err := d.rooms.Deny(ctx, username, args[0], args[1]); err != nil {
			d.fail(conn, err)
			return
		}
		conn.Send(protocol.Info("denied " + args[1] + " for " + args[0]))

	case "say":
		roomName, text := chompField(remainder)
		if roomName == "" || text == "" {
			d.badSyntax(conn, "say <room> <message>")
			return
		}
		if _, err := d.messages.Broadcast(ctx, username, roomName, text); err != nil {
			d.fail(conn, err)
			return
		}

	case "dm":
		recipient, text := chompField(remainder)
		if recipient == "" || text == "" {
			d.badSyntax(conn, "dm <user> <message>")
			return
		}
		delivered, err := d.messages.Direct(username, recipient, text)
		if err != nil {
			d.fail(conn, err)
			return
		}
		conn.Send(protocol.DirectSent(recipient, delivered))

	case "typing":
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			d.badSyntax(conn, "typing <room> <on|off>")
			return
		}
		if err := d.messages.Typing(ctx, username, args[0], args[1] == "on"); err != nil {
			d.fail(conn, err)
			return
		}

	case "who":
		roomName := service.LobbyRoom
		if len(args) == 1 {
			roomName = args[0]
		} else if len(args) > 1 {
			d.badSyntax(conn, "who [room]")
			return
		}
		entries, err := d.presence.Who(username, roomName)
		if err != nil {
			d.fail(conn, err)
			return
		}
		conn.Send(protocol.Presence(roomName, entries))

	case "history":
		roomName := service.LobbyRoom
		if len(args) == 1 {
			roomName = args[0]
		} else if len(args) > 1 {
			d.badSyntax(conn, "history [room]")
			return
		}
		msgs, err := d.messages.History(username, roomName)
		if err != nil {
			d.fail(conn, err)
			return
		}
		conn.Send(protocol.History(roomName, msgs))

	default:
		conn.Send(protocol.Error(protocol.CodeBadSyntax, "unknown directive; try help"))
	}
}

// Disconnected runs the disconnect path for a connection that went away.
// Idempotent: the session service ignores a second call for the same user.
func (d *Dispatcher) Disconnected(ctx context.Context, conn Conn) {
	username := conn.Username()
	if username == "" {
		return
	}
	d.messages.ClearTyping(username)
	d.sessions.Disconnect(ctx, username)
}

func (d *Dispatcher) login(ctx context.Context, conn Conn, args []string) {
	if conn.Username() != "" {
		conn.Send(protocol.Error(protocol.CodeConflict, "already authenticated"))
		return
	}
	if len(args) != 2 {
		d.badSyntax(conn, "login <user> <secret>")
		return
	}
	user, err := d.sessions.Authenticate(ctx, args[0], args[1], conn)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			conn.Send(protocol.AuthFail("invalid credentials"))
			return
		}
		d.fail(conn, err)
		return
	}
	conn.SetUsername(user.Username)
	conn.Send(protocol.AuthOK(user.Username))
	d.rooms.AddToLobby(ctx, user.Username)
}

func (d *Dispatcher) register(ctx context.Context, conn Conn, args []string) {
	if conn.Username() != "" {
		conn.Send(protocol.Error(protocol.CodeConflict, "already authenticated"))
		return
	}
	if len(args) != 3 {
		d.badSyntax(conn, "register <user> <secret> <secret>")
		return
	}
	user, err := d.sessions.Register(ctx, args[0], args[1], args[2], conn)
	if err != nil {
		d.fail(conn, err)
		return
	}
	conn.SetUsername(user.Username)
	conn.Send(protocol.AuthOK(user.Username))
	d.rooms.AddToLobby(ctx, user.Username)
}

func (d *Dispatcher) badSyntax(conn Conn, usage string) {
	conn.Send(protocol.Error(protocol.CodeBadSyntax, "usage: "+usage))
}

// fail translates a service error into a single wire reply for the
// originating connection.
func (d *Dispatcher) fail(conn Conn, err error) {
	var code string
	switch {
	case errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrSecretMismatch),
		errors.Is(err, service.ErrAlreadyConnected),
		errors.Is(err, service.ErrNameTaken):
		code = protocol.CodeConflict
	case errors.Is(err, service.ErrNotAdmin), errors.Is(err, service.ErrNotMember):
		code = protocol.CodeNotAuthorized
	case errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrNoSuchRequest):
		code = protocol.CodeNotFound
	case errors.Is(err, service.ErrRoomShutdown):
		code = protocol.CodeState
	case errors.Is(err, service.ErrInvalidCredentials):
		code = protocol.CodeAuth
	default:
		logrus.WithError(err).WithField("conn_id", conn.ID()).Error("Unexpected error dispatching directive")
		code = protocol.CodeState
	}
	conn.Send(protocol.Error(code, err.Error()))
}

// chompField splits off the first whitespace-separated field, returning it
// and the rest of the line with leading whitespace stripped.
func chompField(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeft(s[i:], " \t")
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}
