package database

import (
	"fmt"

	"shadowtips-backend/models"

	"gorm.io/gorm"
)

// Migrate applies (idempotent) schema migrations:
// - AutoMigrate (tables/columns/index tags)
// - helper indexes
// - CHECK constraints on postgres
func Migrate(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&models.User{},
			&models.Message{},
			&models.IdempotencyKey{},
		); err != nil {
			return fmt.Errorf("automigrate failed: %w", err)
		}

		indexes := []string{
			`CREATE INDEX IF NOT EXISTS idx_users_verified_username ON users (is_verified, username)`,
			`CREATE INDEX IF NOT EXISTS idx_idempotency_keys_created_at ON idempotency_keys (created_at)`,
		}
		if tx.Dialector.Name() == "mysql" {
			// MySQL has no CREATE INDEX IF NOT EXISTS; the gorm tags cover the essentials there.
			indexes = nil
		}
		for _, stmt := range indexes {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("index migration failed on: %s - %w", stmt, err)
			}
		}

		if tx.Dialector.Name() != "postgres" {
			return nil
		}

		checks := []string{
			`DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM pg_constraint
					WHERE conrelid = 'messages'::regclass
					  AND conname  = 'chk_messages_content_len'
				) THEN
					ALTER TABLE messages
					ADD CONSTRAINT chk_messages_content_len
					CHECK (char_length(content) BETWEEN 1 AND 300);
				END IF;
			END $$;`,
			`DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM pg_constraint
					WHERE conrelid = 'users'::regclass
					  AND conname  = 'chk_users_verify_code_digits'
				) THEN
					ALTER TABLE users
					ADD CONSTRAINT chk_users_verify_code_digits
					CHECK (verify_code ~ '^[0-9]{6}$');
				END IF;
			END $$;`,
		}
		for _, stmt := range checks {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("check constraint migration failed: %w", err)
			}
		}
		return nil
	})
}

// AutoMigrate migrates the package-level DB.
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	return Migrate(DB)
}
