package domain

// Room is a named, admin-owned channel. Admin is the creator and the sole
// authority for edit/shutdown/approve/deny. The built-in lobby has an empty
// Admin, so admin-gated operations on it never authorize.
type Room struct {
	Name     string
	Admin    string
	OpenJoin bool
	Visible  bool
	Members  map[string]struct{}
	Pending  map[string]struct{}
	Shutdown bool
}

// NewRoom creates a room with the admin as its sole member.
func NewRoom(name, admin string, openJoin, visible bool) *Room {
	r := &Room{
		Name:     name,
		Admin:    admin,
		OpenJoin: openJoin,
		Visible:  visible,
		Members:  make(map[string]struct{}),
		Pending:  make(map[string]struct{}),
	}
	if admin != "" {
		r.Members[admin] = struct{}{}
	}
	return r
}

func (r *Room) IsMember(username string) bool {
	_, ok := r.Members[username]
	return ok
}

func (r *Room) IsPending(username string) bool {
	_, ok := r.Pending[username]
	return ok
}

// Summary is the discovery view of a room.
type Summary struct {
	Name     string `json:"room"`
	Admin    string `json:"admin"`
	OpenJoin bool   `json:"open_join"`
	Visible  bool   `json:"visible"`
}

func (r *Room) Summary() Summary {
	return Summary{Name: r.Name, Admin: r.Admin, OpenJoin: r.OpenJoin, Visible: r.Visible}
}
