package repo

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"okeyonline/internal/domain/presence"
	"okeyonline/internal/domain/room"
	"okeyonline/internal/domain/user"
	errs "okeyonline/internal/errors"
)

// MapUserStorage keeps users in process memory. It backs
// STORAGE_DRIVER=memory and the tests.
type MapUserStorage struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]user.User
}

func NewMapUserStorage() *MapUserStorage {
	return &MapUserStorage{users: make(map[primitive.ObjectID]user.User)}
}

func (s *MapUserStorage) Create(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.users {
		if v.Username == u.Username || v.Email == u.Email {
			return errs.ErrUserExists
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	s.users[u.ID] = *u
	return nil
}

func (s *MapUserStorage) GetByID(_ context.Context, id primitive.ObjectID) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, errs.ErrUserNotFound
	}
	u.PasswordHash = ""
	return u, nil
}

func (s *MapUserStorage) GetByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.users {
		if v.Email == email {
			return v, nil
		}
	}
	return user.User{}, errs.ErrUserNotFound
}

func (s *MapUserStorage) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.users {
		if v.Username == username || v.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *MapUserStorage) ExistsByUsername(_ context.Context, username string, except primitive.ObjectID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, v := range s.users {
		if v.Username == username && id != except {
			return true, nil
		}
	}
	return false, nil
}

func (s *MapUserStorage) update(id primitive.ObjectID, fn func(u *user.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return errs.ErrUserNotFound
	}
	fn(&u)
	u.UpdatedAt = time.Now()
	s.users[id] = u
	return nil
}

func (s *MapUserStorage) UpdateLogin(_ context.Context, id primitive.ObjectID, at time.Time) error {
	return s.update(id, func(u *user.User) {
		u.LastLogin = at
		u.IsOnline = true
	})
}

func (s *MapUserStorage) SetOnline(_ context.Context, id primitive.ObjectID, online bool) error {
	return s.update(id, func(u *user.User) { u.IsOnline = online })
}

func (s *MapUserStorage) UpdateProfile(_ context.Context, id primitive.ObjectID, username, avatar string) error {
	return s.update(id, func(u *user.User) {
		u.Username = username
		u.Avatar = avatar
	})
}

func (s *MapUserStorage) RecordGame(_ context.Context, id primitive.ObjectID, won bool, score int) error {
	return s.update(id, func(u *user.User) { u.Stats.Record(won, score) })
}

// MapRoomStorage keeps rooms in process memory with the same version
// semantics as MongoRoomStorage. Rooms are copied in and out.
type MapRoomStorage struct {
	mu    sync.RWMutex
	rooms map[string]room.Room
}

func NewMapRoomStorage() *MapRoomStorage {
	return &MapRoomStorage{rooms: make(map[string]room.Room)}
}

func (s *MapRoomStorage) Create(_ context.Context, r *room.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[r.RoomID]; ok {
		return errs.ErrRoomExists
	}
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	s.rooms[r.RoomID] = r.Clone()
	return nil
}

func (s *MapRoomStorage) RoomIDExists(_ context.Context, roomID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.rooms[roomID]
	return ok, nil
}

func (s *MapRoomStorage) GetByRoomID(_ context.Context, roomID string) (room.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return room.Room{}, errs.ErrRoomNotFound
	}
	return r.Clone(), nil
}

func (s *MapRoomStorage) Update(_ context.Context, r *room.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.rooms[r.RoomID]
	if !ok {
		return errs.ErrRoomNotFound
	}
	if stored.Version != r.Version {
		return errs.ErrVersionConflict
	}
	r.Version++
	r.UpdatedAt = time.Now()
	s.rooms[r.RoomID] = r.Clone()
	return nil
}

func (s *MapRoomStorage) AppendChatMessage(_ context.Context, roomID string, msg room.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return errs.ErrRoomNotFound
	}
	r = r.Clone()
	r.AddChatMessage(msg)
	r.Version++
	r.UpdatedAt = time.Now()
	s.rooms[roomID] = r
	return nil
}

func (s *MapRoomStorage) collect(match func(r room.Room) bool) []room.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]room.Room, 0)
	for _, r := range s.rooms {
		if match(r) {
			result = append(result, r.Clone())
		}
	}
	slices.SortFunc(result, func(a, b room.Room) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.RoomID, b.RoomID)
	})
	return result
}

func (s *MapRoomStorage) FindActive(_ context.Context, f room.ListFilter) ([]room.Room, error) {
	result := s.collect(func(r room.Room) bool {
		if !r.IsActive {
			return false
		}
		if f.Status != "" {
			if r.Status != f.Status {
				return false
			}
		} else if r.Status != room.StatusWaiting && r.Status != room.StatusPlaying {
			return false
		}
		return f.GameType == "" || r.GameType == f.GameType
	})

	if f.Limit > 0 {
		page := max(f.Page, 1)
		from := min((page-1)*f.Limit, len(result))
		to := min(from+f.Limit, len(result))
		result = result[from:to]
	}
	return result, nil
}

func (s *MapRoomStorage) FindByMember(_ context.Context, userID string) ([]room.Room, error) {
	return s.collect(func(r room.Room) bool {
		return r.IsActive && (r.HasPlayer(userID) || r.HasSpectator(userID))
	}), nil
}

// MapPresenceStorage is the single-process presence store.
type MapPresenceStorage struct {
	mu       sync.Mutex
	conns    map[string]int
	names    map[string]string
	channels map[string]map[string]struct{}
}

func NewMapPresenceStorage() *MapPresenceStorage {
	return &MapPresenceStorage{
		conns:    make(map[string]int),
		names:    make(map[string]string),
		channels: make(map[string]map[string]struct{}),
	}
}

func (s *MapPresenceStorage) Connect(_ context.Context, u presence.OnlineUser) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conns[u.UserID]++
	s.names[u.UserID] = u.Username
	return s.conns[u.UserID] == 1, nil
}

func (s *MapPresenceStorage) Disconnect(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.conns[userID]
	if !ok {
		return false, nil
	}
	if n > 1 {
		s.conns[userID] = n - 1
		return false, nil
	}
	delete(s.conns, userID)
	delete(s.names, userID)
	return true, nil
}

func (s *MapPresenceStorage) Online(_ context.Context) ([]presence.OnlineUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]presence.OnlineUser, 0, len(s.names))
	for id, name := range s.names {
		result = append(result, presence.OnlineUser{UserID: id, Username: name})
	}
	sortOnline(result)
	return result, nil
}

func (s *MapPresenceStorage) JoinChannel(_ context.Context, channel string, u presence.OnlineUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.channels[channel]
	if !ok {
		members = make(map[string]struct{})
		s.channels[channel] = members
	}
	members[u.UserID] = struct{}{}
	return nil
}

func (s *MapPresenceStorage) LeaveChannel(_ context.Context, channel, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.channels[channel]
	delete(members, userID)
	if len(members) == 0 {
		delete(s.channels, channel)
	}
	return nil
}

func (s *MapPresenceStorage) ChannelMembers(_ context.Context, channel string) ([]presence.OnlineUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]presence.OnlineUser, 0, len(s.channels[channel]))
	for id := range s.channels[channel] {
		name, ok := s.names[id]
		if !ok {
			continue
		}
		result = append(result, presence.OnlineUser{UserID: id, Username: name})
	}
	sortOnline(result)
	return result, nil
}
