package service

import (
	"time"

	"github.com/campus-loyalty/points-api/internal/domain"
)

// Notifier pushes best-effort messages to connected users.
type Notifier interface {
	Notify(n domain.Notification)
}

type nopNotifier struct{}

func (nopNotifier) Notify(domain.Notification) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}

	return n
}

type clock func() time.Time

func pointsChanged(tx domain.Transaction) domain.Notification {
	return domain.Notification{
		Type:   domain.NotifyPointsChanged,
		UserID: tx.UserID,
		Payload: map[string]any{
			"transactionId": tx.ID,
			"type":          tx.Type,
			"amount":        tx.Amount,
			"utorid":        tx.UTORid,
		},
	}
}
