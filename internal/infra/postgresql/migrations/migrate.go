package migrations

import (
	"github.com/dpin8449/KOMBUCHAS/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_batch",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.BatchModel{}); err != nil {
					return err
				}
				indexes := []string{
					// origin_batch_id is a soft reference, no foreign key.
					`CREATE INDEX IF NOT EXISTS idx_batch_origin_batch_id ON batch (origin_batch_id) WHERE origin_batch_id IS NOT NULL`,
					`CREATE INDEX IF NOT EXISTS idx_batch_type ON batch (type)`,
					`CREATE INDEX IF NOT EXISTS idx_batch_end_date ON batch (end_date)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.BatchModel{})
			},
		},
	})

	return m.Migrate()
}
