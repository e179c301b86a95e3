package jsonfile

import (
	"context"

	"github.com/ompatelz/chattingapp/internal/domain"
)

// HistoryRepository stores per-room message logs in history.json. Oversized
// logs are clamped to the newest HistoryLimit entries on load, so a file
// written by an older build can never exceed the cap in memory.
type HistoryRepository struct {
	store *Store
}

func NewHistoryRepository(store *Store) *HistoryRepository {
	if store == nil {
		panic("Store cannot be nil for HistoryRepository")
	}
	return &HistoryRepository{store: store}
}

func (r *HistoryRepository) Load(ctx context.Context) (map[string][]domain.Message, error) {
	history := make(map[string][]domain.Message)
	if err := r.store.read(historyFile, &history); err != nil {
		return nil, err
	}
	for room, msgs := range history {
		if len(msgs) > domain.HistoryLimit {
			history[room] = msgs[len(msgs)-domain.HistoryLimit:]
		}
	}
	return history, nil
}

func (r *HistoryRepository) Save(ctx context.Context, history map[string][]domain.Message) error {
	return r.store.write(historyFile, history)
}
