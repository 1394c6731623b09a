package performers

import (
	"context"
	"errors"
	"sync"
)

// ErrUserNotFound indicates a directory lookup for an unknown user id.
var ErrUserNotFound = errors.New("user not found")

// MemoryDirectory is an in-memory Directory for tests and single-process
// deployments. Group membership reads reflect the latest Put calls, which
// mirrors the live-read contract of the interface.
type MemoryDirectory struct {
	mu     sync.RWMutex
	users  map[string]User
	groups map[string][]string
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:  make(map[string]User),
		groups: make(map[string][]string),
	}
}

// PutUser registers or replaces a user.
func (d *MemoryDirectory) PutUser(user User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.users[user.ID] = user
}

// PutGroup registers or replaces a group's member list.
func (d *MemoryDirectory) PutGroup(groupID string, memberIDs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.groups[groupID] = append([]string(nil), memberIDs...)
}

func (d *MemoryDirectory) User(_ context.Context, id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}

	return user, nil
}

func (d *MemoryDirectory) GroupMembers(_ context.Context, groupID string) ([]User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	memberIDs := d.groups[groupID]
	members := make([]User, 0, len(memberIDs))

	for _, id := range memberIDs {
		if user, ok := d.users[id]; ok {
			members = append(members, user)
		}
	}

	return members, nil
}
