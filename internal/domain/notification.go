package domain

type NotificationType string

const (
	NotifyPointsChanged       NotificationType = "points_changed"
	NotifyRedemptionProcessed NotificationType = "redemption_processed"
	NotifyRaffleDrawn         NotificationType = "raffle_drawn"
)

type Notification struct {
	Type    NotificationType `json:"type"`
	UserID  uint             `json:"userId"`
	Payload any              `json:"payload"`
}
