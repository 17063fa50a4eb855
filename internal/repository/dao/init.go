package dao

import (
	"fmt"

	"gorm.io/gorm"
)

func InitTables(db *gorm.DB) error {
	if err := db.SetupJoinTable(&Event{}, "Organizers", &EventOrganizer{}); err != nil {
		return fmt.Errorf("db.SetupJoinTable organizers -> %w", err)
	}
	if err := db.SetupJoinTable(&Event{}, "Guests", &EventGuest{}); err != nil {
		return fmt.Errorf("db.SetupJoinTable guests -> %w", err)
	}

	return db.AutoMigrate(
		&User{},
		&Promotion{},
		&UsedPromotion{},
		&Transaction{},
		&TransactionPromotion{},
		&Event{},
		&EventOrganizer{},
		&EventGuest{},
		&Raffle{},
		&RaffleEntry{},
	)
}
