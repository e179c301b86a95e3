// Package repository defines the persistence seams for the chat core. The
// store is a pure sink: each collection is loaded in full once at startup and
// rewritten in full on every mutating operation. Only the core writes it.
package repository

import (
	"context"

	"github.com/ompatelz/chattingapp/internal/domain"
)

// UserRepository persists the credential collection (username -> bcrypt hash).
type UserRepository interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, credentials map[string]string) error
}

// RoomRepository persists the room collection, minus live connection state.
type RoomRepository interface {
	Load(ctx context.Context) (map[string]*domain.Room, error)
	Save(ctx context.Context, rooms map[string]*domain.Room) error
}

// HistoryRepository persists each room's bounded message history.
type HistoryRepository interface {
	Load(ctx context.Context) (map[string][]domain.Message, error)
	Save(ctx context.Context, history map[string][]domain.Message) error
}
