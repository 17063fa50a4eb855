package response

import (
	"time"

	"github.com/campus-loyalty/points-api/internal/domain"
)

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ResetResponse struct {
	ExpiresAt  time.Time `json:"expiresAt"`
	ResetToken string    `json:"resetToken"`
}

type ListResponse struct {
	Count   int64 `json:"count"`
	Results any   `json:"results"`
}

type CreatedUserResponse struct {
	ID         uint      `json:"id"`
	UTORid     string    `json:"utorid"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Verified   bool      `json:"verified"`
	ExpiresAt  time.Time `json:"expiresAt"`
	ResetToken string    `json:"resetToken"`
}

func NewCreatedUser(u domain.User) CreatedUserResponse {
	resp := CreatedUserResponse{
		ID:         u.ID,
		UTORid:     u.UTORid,
		Name:       u.Name,
		Email:      u.Email,
		Verified:   u.Verified,
		ResetToken: u.ResetToken,
	}
	if u.ResetExpiresAt != nil {
		resp.ExpiresAt = *u.ResetExpiresAt
	}

	return resp
}

// CashierUserView is what a cashier may see of a customer.
type CashierUserView struct {
	ID         uint               `json:"id"`
	UTORid     string             `json:"utorid"`
	Name       string             `json:"name"`
	Points     int                `json:"points"`
	Verified   bool               `json:"verified"`
	Promotions []domain.Promotion `json:"promotions"`
}

func NewCashierUserView(u domain.User) CashierUserView {
	return CashierUserView{
		ID:         u.ID,
		UTORid:     u.UTORid,
		Name:       u.Name,
		Points:     u.Points,
		Verified:   u.Verified,
		Promotions: u.Promotions,
	}
}

type TransferResponse struct {
	ID        uint                   `json:"id"`
	Sender    string                 `json:"sender"`
	Recipient string                 `json:"recipient"`
	Type      domain.TransactionType `json:"type"`
	Sent      int                    `json:"sent"`
	Remark    string                 `json:"remark"`
	CreatedBy string                 `json:"createdBy"`
}

func NewTransfer(sent, received domain.Transaction) TransferResponse {
	return TransferResponse{
		ID:        sent.ID,
		Sender:    sent.UTORid,
		Recipient: received.UTORid,
		Type:      sent.Type,
		Sent:      received.Amount,
		Remark:    sent.Remark,
		CreatedBy: sent.CreatedBy,
	}
}

type GuestAddedResponse struct {
	ID         uint               `json:"id"`
	Name       string             `json:"name"`
	Location   string             `json:"location"`
	GuestAdded domain.UserSummary `json:"guestAdded"`
	NumGuests  int                `json:"numGuests"`
}

func NewGuestAdded(e domain.Event, guest domain.UserSummary) GuestAddedResponse {
	return GuestAddedResponse{
		ID:         e.ID,
		Name:       e.Name,
		Location:   e.Location,
		GuestAdded: guest,
		NumGuests:  e.NumGuests,
	}
}

type RSVPRemovedResponse struct {
	ID        uint `json:"id"`
	NumGuests int  `json:"numGuests"`
}

type RaffleDrawResponse struct {
	Raffle      domain.Raffle      `json:"raffle"`
	Transaction domain.Transaction `json:"transaction"`
}

type HealthcheckResponse struct {
	Status string `json:"status"`
}
