package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/ompatelz/chattingapp/internal/domain"
	"github.com/ompatelz/chattingapp/internal/repository"
)

// SessionService owns the user table and the binding between usernames and
// live connections. Exactly one live connection per username is allowed.
type SessionService struct {
	users  map[string]*domain.User
	repo   repository.UserRepository
	rooms  *RoomService
	roster Roster
}

func NewSessionService(repo repository.UserRepository, rooms *RoomService, roster Roster) *SessionService {
	if repo == nil {
		panic("UserRepository cannot be nil for SessionService")
	}
	if rooms == nil {
		panic("RoomService cannot be nil for SessionService")
	}
	if roster == nil {
		panic("Roster cannot be nil for SessionService")
	}
	return &SessionService{
		users:  make(map[string]*domain.User),
		repo:   repo,
		rooms:  rooms,
		roster: roster,
	}
}

// Restore loads the credential collection. Every restored user starts
// offline; liveness only ever comes from a bound connection.
func (s *SessionService) Restore(ctx context.Context) error {
	credentials, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	for username, secret := range credentials {
		s.users[username] = &domain.User{
			Username: username,
			Secret:   secret,
			Status:   domain.StatusOffline,
		}
	}
	logrus.WithField("count", len(s.users)).Info("User credentials restored")
	return nil
}

// Register creates a new user and binds the connection in one step. The
// credential write happens before the caller acknowledges anything
// (write-before-ack).
func (s *SessionService) Register(ctx context.Context, username, secret, confirm string, peer Peer) (*domain.User, error) {
	logCtx := logrus.WithField("user", username)

	if secret != confirm {
		return nil, ErrSecretMismatch
	}
	if _, exists := s.users[username]; exists {
		logCtx.Warn("Registration rejected: username taken")
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		logCtx.WithError(err).Error("Failed to hash credential")
		return nil, err
	}

	user := &domain.User{
		Username:   username,
		Secret:     string(hash),
		Status:     domain.StatusOnline,
		LastActive: time.Now(),
	}
	s.users[username] = user
	s.roster.Bind(username, peer)
	s.persist(ctx)

	logCtx.Info("User registered")
	return user, nil
}

// Authenticate verifies the credential and binds the connection. A username
// that is already connected is rejected without evicting the first
// connection.
func (s *SessionService) Authenticate(ctx context.Context, username, secret string, peer Peer) (*domain.User, error) {
	logCtx := logrus.WithField("user", username)

	user, ok := s.users[username]
	if !ok {
		logCtx.Warn("Login rejected: unknown username")
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Secret), []byte(secret)) != nil {
		logCtx.Warn("Login rejected: credential mismatch")
		return nil, ErrInvalidCredentials
	}
	if _, connected := s.roster.Peer(username); connected {
		logCtx.Warn("Login rejected: already connected elsewhere")
		return nil, ErrAlreadyConnected
	}

	user.Status = domain.StatusOnline
	user.LastActive = time.Now()
	s.roster.Bind(username, peer)
	s.persist(ctx)

	logCtx.Info("User logged in")
	return user, nil
}

// Disconnect unbinds the connection, marks the user offline, and broadcasts
// one presence change per room membership. Safe to call twice: the second
// call finds the user already offline and does nothing.
func (s *SessionService) Disconnect(ctx context.Context, username string) {
	user, ok := s.users[username]
	if !ok {
		return
	}
	if user.Status == domain.StatusOffline {
		return
	}

	s.roster.Unbind(username)
	user.Status = domain.StatusOffline
	user.LastActive = time.Now()
	user.Activity = ""
	s.persist(ctx)

	notifyPresence(s.rooms, s.roster, username, domain.StatusOffline)
	logrus.WithField("user", username).Info("User disconnected")
}

// Lookup returns the user record, connected or not.
func (s *SessionService) Lookup(username string) (*domain.User, bool) {
	user, ok := s.users[username]
	return user, ok
}

// persist mirrors the credential collection. A failed write is logged and the
// in-memory state stands; durability is traded for availability here.
func (s *SessionService) persist(ctx context.Context) {
	credentials := make(map[string]string, len(s.users))
	for username, user := range s.users {
		credentials[username] = user.Secret
	}
	if err := s.repo.Save(ctx, credentials); err != nil {
		logrus.WithError(err).Error("Failed to persist user credentials")
	}
}
