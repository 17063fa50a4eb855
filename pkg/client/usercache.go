package client

import (
	"context"
	"net/http"
	"strconv"
	"sync"
)

const userPageSize = 100

// UserCache holds the full user list for one screen or request. Nothing is
// shared between caches; call Invalidate after changing a user.
type UserCache struct {
	client *Client

	mu     sync.Mutex
	users  []User
	loaded bool
}

func (c *Client) NewUserCache() *UserCache {
	return &UserCache{client: c}
}

// All returns every user, loading them page by page on first use.
func (uc *UserCache) All(ctx context.Context) ([]User, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if !uc.loaded {
		users, err := uc.load(ctx)
		if err != nil {
			return nil, err
		}
		uc.users = users
		uc.loaded = true
	}

	out := make([]User, len(uc.users))
	copy(out, uc.users)

	return out, nil
}

func (uc *UserCache) Invalidate() {
	uc.mu.Lock()
	uc.users = nil
	uc.loaded = false
	uc.mu.Unlock()
}

func (uc *UserCache) load(ctx context.Context) ([]User, error) {
	var users []User
	for page := 1; ; page++ {
		path := "/users" + query(map[string]string{
			"page":  strconv.Itoa(page),
			"limit": strconv.Itoa(userPageSize),
		})

		var list listResponse[User]
		if err := uc.client.do(ctx, "load users", http.MethodGet, path, nil, &list); err != nil {
			return nil, err
		}

		users = append(users, list.Results...)
		if len(list.Results) == 0 || int64(len(users)) >= list.Count {
			return users, nil
		}
	}
}
