package data

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// PlayerRecord is one saved character: an account/slot pair plus the
// serialized player blob. The blob format belongs to the character
// package; this layer treats it as opaque.
type PlayerRecord struct {
	ID        uint64 `gorm:"primaryKey"`
	Account   string `gorm:"index:idx_account_slot,unique; not null"`
	Slot      int    `gorm:"index:idx_account_slot,unique"`
	Name      string
	Contents  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LoadPlayer fetches the saved blob for an account slot, returning nil
// (not an error) when the slot has never been saved.
func LoadPlayer(db *gorm.DB, account string, slot int) (*PlayerRecord, error) {
	var record PlayerRecord
	err := db.Where("account = ? AND slot = ?", account, slot).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// SavePlayer upserts the blob for an account slot.
func SavePlayer(db *gorm.DB, account string, slot int, name string, contents []byte) error {
	existing, err := LoadPlayer(db, account, slot)
	if err != nil {
		return err
	}
	if existing == nil {
		return db.Create(&PlayerRecord{
			Account:  account,
			Slot:     slot,
			Name:     name,
			Contents: contents,
		}).Error
	}
	existing.Name = name
	existing.Contents = contents
	return db.Save(existing).Error
}

// DeletePlayer removes a saved character.
func DeletePlayer(db *gorm.DB, account string, slot int) error {
	return db.Where("account = ? AND slot = ?", account, slot).Delete(&PlayerRecord{}).Error
}
