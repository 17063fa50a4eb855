package client

import "time"

const (
	RoleRegular   = "regular"
	RoleCashier   = "cashier"
	RoleManager   = "manager"
	RoleSuperuser = "superuser"
)

var roleRank = map[string]int{
	RoleRegular:   0,
	RoleCashier:   1,
	RoleManager:   2,
	RoleSuperuser: 3,
}

func roleAtLeast(role, min string) bool {
	r, ok := roleRank[role]
	return ok && r >= roleRank[min]
}

type User struct {
	ID         uint        `json:"id"`
	UTORid     string      `json:"utorid"`
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Role       string      `json:"role"`
	Points     int         `json:"points"`
	Verified   bool        `json:"verified"`
	Suspicious bool        `json:"suspicious"`
	Birthday   *string     `json:"birthday"`
	AvatarURL  string      `json:"avatarUrl"`
	CreatedAt  time.Time   `json:"createdAt"`
	LastLogin  *time.Time  `json:"lastLogin"`
	Promotions []Promotion `json:"promotions"`
}

type UserSummary struct {
	ID     uint   `json:"id"`
	UTORid string `json:"utorid"`
	Name   string `json:"name"`
}

type Transaction struct {
	ID           uint      `json:"id"`
	UTORid       string    `json:"utorid"`
	Type         string    `json:"type"`
	Amount       int       `json:"amount"`
	Spent        *float64  `json:"spent,omitempty"`
	Earned       *int      `json:"earned,omitempty"`
	Redeemed     *int      `json:"redeemed,omitempty"`
	Awarded      *int      `json:"awarded,omitempty"`
	Sent         *int      `json:"sent,omitempty"`
	RelatedID    *uint     `json:"relatedId,omitempty"`
	Remark       string    `json:"remark"`
	PromotionIDs []uint    `json:"promotionIds"`
	CreatedBy    string    `json:"createdBy"`
	Processed    bool      `json:"processed"`
	ProcessedBy  string    `json:"processedBy,omitempty"`
	Suspicious   bool      `json:"suspicious"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Transfer struct {
	ID        uint   `json:"id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Type      string `json:"type"`
	Sent      int    `json:"sent"`
	Remark    string `json:"remark"`
	CreatedBy string `json:"createdBy"`
}

type Event struct {
	ID            uint          `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Location      string        `json:"location"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       time.Time     `json:"endTime"`
	Capacity      *int          `json:"capacity"`
	NumGuests     int           `json:"numGuests"`
	PointsRemain  int           `json:"pointsRemain"`
	PointsAwarded int           `json:"pointsAwarded"`
	Published     bool          `json:"published"`
	Organizers    []UserSummary `json:"organizers"`
	Guests        []UserSummary `json:"guests,omitempty"`
}

type Promotion struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	MinSpending *float64  `json:"minSpending"`
	Rate        *float64  `json:"rate"`
	Points      *int      `json:"points"`
}

type Raffle struct {
	ID          uint         `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	PointCost   int          `json:"pointCost"`
	PrizePoints int          `json:"prizePoints"`
	StartTime   time.Time    `json:"startTime"`
	EndTime     time.Time    `json:"endTime"`
	DrawTime    time.Time    `json:"drawTime"`
	Drawn       bool         `json:"drawn"`
	Winner      *UserSummary `json:"winner"`
	EntryCount  int          `json:"entryCount"`
	Entered     bool         `json:"entered"`
}

type RaffleDraw struct {
	Raffle      Raffle      `json:"raffle"`
	Transaction Transaction `json:"transaction"`
}

type listResponse[T any] struct {
	Count   int64 `json:"count"`
	Results []T   `json:"results"`
}
