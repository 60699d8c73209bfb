package repository

import (
	"time"

	"github.com/dpin8449/KOMBUCHAS/internal/domain"
)

// BatchModel is the persistence model for the batch table.
type BatchModel struct {
	ID            string              `gorm:"type:varchar(64);primaryKey"`
	Type          domain.BatchType    `gorm:"type:varchar(10);not null"`
	StartDate     *time.Time          `gorm:"type:date"`
	EndDate       *time.Time          `gorm:"type:date"`
	Days          *int                `gorm:"type:int"`
	OriginBatchID *string             `gorm:"type:varchar(64)"`
	Temperature   *int                `gorm:"type:int"`
	Comment       *string             `gorm:"type:text"`
	Result        *string             `gorm:"type:text"`
	Production    *string             `gorm:"type:text"`
	TotalTime     *int                `gorm:"type:int"`
	FinalStatus   *domain.FinalStatus `gorm:"type:varchar(10)"`
}

func (BatchModel) TableName() string {
	return "batch"
}

func batchModelFromDomain(b *domain.Batch) *BatchModel {
	if b == nil {
		return nil
	}

	return &BatchModel{
		ID:            b.ID,
		Type:          b.Type,
		StartDate:     b.StartDate,
		EndDate:       b.EndDate,
		Days:          b.Days,
		OriginBatchID: b.OriginBatchID,
		Temperature:   b.Temperature,
		Comment:       b.Comment,
		Result:        b.Result,
		Production:    b.Production,
		TotalTime:     b.TotalTime,
		FinalStatus:   b.FinalStatus,
	}
}

func batchModelToDomain(m *BatchModel) *domain.Batch {
	if m == nil {
		return nil
	}

	return &domain.Batch{
		ID:            m.ID,
		Type:          m.Type,
		StartDate:     m.StartDate,
		EndDate:       m.EndDate,
		Days:          m.Days,
		OriginBatchID: m.OriginBatchID,
		Temperature:   m.Temperature,
		Comment:       m.Comment,
		Result:        m.Result,
		Production:    m.Production,
		TotalTime:     m.TotalTime,
		FinalStatus:   m.FinalStatus,
	}
}
