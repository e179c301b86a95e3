package jsonfile

import (
	"context"
	"sort"

	"github.com/ompatelz/chattingapp/internal/domain"
)

// RoomRepository stores the room collection in rooms.json. Member and pending
// sets are persisted as sorted lists so successive snapshots diff cleanly.
type RoomRepository struct {
	store *Store
}

func NewRoomRepository(store *Store) *RoomRepository {
	if store == nil {
		panic("Store cannot be nil for RoomRepository")
	}
	return &RoomRepository{store: store}
}

type roomRecord struct {
	Admin    string   `json:"admin"`
	OpenJoin bool     `json:"open_join"`
	Visible  bool     `json:"visible"`
	Members  []string `json:"members"`
	Pending  []string `json:"pending"`
	Shutdown bool     `json:"shutdown"`
}

func (r *RoomRepository) Load(ctx context.Context) (map[string]*domain.Room, error) {
	records := make(map[string]roomRecord)
	if err := r.store.read(roomsFile, &records); err != nil {
		return nil, err
	}
	rooms := make(map[string]*domain.Room, len(records))
	for name, rec := range records {
		room := &domain.Room{
			Name:     name,
			Admin:    rec.Admin,
			OpenJoin: rec.OpenJoin,
			Visible:  rec.Visible,
			Members:  make(map[string]struct{}, len(rec.Members)),
			Pending:  make(map[string]struct{}, len(rec.Pending)),
			Shutdown: rec.Shutdown,
		}
		for _, m := range rec.Members {
			room.Members[m] = struct{}{}
		}
		for _, p := range rec.Pending {
			room.Pending[p] = struct{}{}
		}
		rooms[name] = room
	}
	return rooms, nil
}

func (r *RoomRepository) Save(ctx context.Context, rooms map[string]*domain.Room) error {
	records := make(map[string]roomRecord, len(rooms))
	for name, room := range rooms {
		records[name] = roomRecord{
			Admin:    room.Admin,
			OpenJoin: room.OpenJoin,
			Visible:  room.Visible,
			Members:  sortedKeys(room.Members),
			Pending:  sortedKeys(room.Pending),
			Shutdown: room.Shutdown,
		}
	}
	return r.store.write(roomsFile, records)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
