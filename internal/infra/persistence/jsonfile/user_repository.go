package jsonfile

import "context"

// UserRepository stores username -> credential hash in users.json.
type UserRepository struct {
	store *Store
}

func NewUserRepository(store *Store) *UserRepository {
	if store == nil {
		panic("Store cannot be nil for UserRepository")
	}
	return &UserRepository{store: store}
}

type userRecord struct {
	Password string `json:"password"`
}

func (r *UserRepository) Load(ctx context.Context) (map[string]string, error) {
	records := make(map[string]userRecord)
	if err := r.store.read(usersFile, &records); err != nil {
		return nil, err
	}
	credentials := make(map[string]string, len(records))
	for username, rec := range records {
		credentials[username] = rec.Password
	}
	return credentials, nil
}

func (r *UserRepository) Save(ctx context.Context, credentials map[string]string) error {
	records := make(map[string]userRecord, len(credentials))
	for username, secret := range credentials {
		records[username] = userRecord{Password: secret}
	}
	return r.store.write(usersFile, records)
}
