package models

import "time"

// CsvBatch is an uploaded CSV already parsed into normalized rows
type CsvBatch struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	BusinessID uint      `gorm:"not null;index:idx_csv_batches_business_id" json:"business_id"`
	FileName   string    `gorm:"size:255" json:"file_name"`
	RowCount   int       `gorm:"not null;default:0" json:"row_count"`
	CreatedAt  time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
}

func (CsvBatch) TableName() string { return "csv_batches" }

// CsvBatchRow is one header->value row; RowNumber keeps upload order
type CsvBatchRow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CsvBatchID uint      `gorm:"not null;uniqueIndex:uk_csv_batch_rows_batch_row,priority:1" json:"csv_batch_id"`
	RowNumber  int       `gorm:"not null;uniqueIndex:uk_csv_batch_rows_batch_row,priority:2" json:"row_number"`
	Values     StringMap `gorm:"column:row_values;type:jsonb;not null" json:"values"`
}

func (CsvBatchRow) TableName() string { return "csv_batch_rows" }
