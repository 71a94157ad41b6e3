package models

import "gorm.io/gorm"

// Migrate 创建或更新所有表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Session{},
		&Message{},
		&DangerKeyword{},
		&TranslationCacheEntry{},
		&EpidemicAlert{},
	)
}
