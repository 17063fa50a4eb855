package domain

import "time"

type Role string

const (
	RoleRegular   Role = "regular"
	RoleCashier   Role = "cashier"
	RoleManager   Role = "manager"
	RoleSuperuser Role = "superuser"
)

var roleRank = map[Role]int{
	RoleRegular:   0,
	RoleCashier:   1,
	RoleManager:   2,
	RoleSuperuser: 3,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r is min or a more privileged role.
func (r Role) AtLeast(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}

	return rank >= roleRank[min]
}

type User struct {
	ID         uint        `json:"id"`
	UTORid     string      `json:"utorid"`
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Password   string      `json:"-"`
	Role       Role        `json:"role"`
	Points     int         `json:"points"`
	Verified   bool        `json:"verified"`
	Suspicious bool        `json:"suspicious"`
	Activated  bool        `json:"activated"`
	Birthday   *string     `json:"birthday"`
	AvatarURL  string      `json:"avatarUrl"`
	CreatedAt  time.Time   `json:"createdAt"`
	LastLogin  *time.Time  `json:"lastLogin"`
	Promotions []Promotion `json:"promotions"`

	ResetToken     string     `json:"-"`
	ResetExpiresAt *time.Time `json:"-"`
}

// UserSummary is the public projection of a user used in lists of organizers,
// guests and raffle winners.
type UserSummary struct {
	ID     uint   `json:"id"`
	UTORid string `json:"utorid"`
	Name   string `json:"name"`
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, UTORid: u.UTORid, Name: u.Name}
}

type UserFilter struct {
	Name      string
	Role      Role
	Verified  *bool
	Activated *bool
	Page      int
	Limit     int
}
