// Package pay holds the typed components of the tutorial's pay export: a paging reader
// over the pay table, a processor turning rows into Parquet records and the Parquet
// writer itself.
package pay

import (
	"context"
	"time"
)

// Pay is a row of the pay table.
type Pay struct {
	ID         int64     `gorm:"column:id;primaryKey"`
	Amount     int64     `gorm:"column:amount"`
	TxName     string    `gorm:"column:tx_name"`
	TxDateTime time.Time `gorm:"column:tx_date_time"`
}

// TableName implements gorm's tabler.
func (Pay) TableName() string { return "pay" }

// Record is the exported form of a Pay row.
type Record struct {
	ID         int64  `parquet:"name=id, type=INT64"`
	Amount     int64  `parquet:"name=amount, type=INT64"`
	TxName     string `parquet:"name=tx_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	TxDateTime int64  `parquet:"name=tx_date_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	TxDate     string `parquet:"name=tx_date, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// RecordProcessor converts Pay rows into Records, dating them in Location.
type RecordProcessor struct {
	Location *time.Location
}

// Process converts p.
func (rp RecordProcessor) Process(_ context.Context, p Pay) (Record, error) {
	loc := rp.Location
	if loc == nil {
		loc = time.UTC
	}
	at := p.TxDateTime.In(loc)
	return Record{
		ID:         p.ID,
		Amount:     p.Amount,
		TxName:     p.TxName,
		TxDateTime: at.UnixMilli(),
		TxDate:     at.Format(time.DateOnly),
	}, nil
}

// PartitionByDate places a record in the dt=YYYY-MM-DD partition of its transaction day.
func PartitionByDate(r Record) (string, error) {
	return "dt=" + r.TxDate, nil
}

// MarkPaid flags a payment row as successfully settled.
type MarkPaid struct{}

// Process sets success_status on a copy of row.
func (MarkPaid) Process(_ context.Context, row map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	out["success_status"] = true
	return out, nil
}

// payKey is the keyset cursor of the pay reader.
func payKey(p Pay) any { return p.ID }
