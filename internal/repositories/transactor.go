package repositories

import "gorm.io/gorm"

// Transactor runs fn inside one database transaction. fn's error rolls it back.
type Transactor interface {
	WithinTransaction(db *gorm.DB, fn func(tx *gorm.DB) error) error
}

type GormTransactor struct{}

func NewTransactor() Transactor {
	return &GormTransactor{}
}

func (t *GormTransactor) WithinTransaction(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit().Error
}
