// Package query runs translated SQL over a dataset's parquet files.
package query

import (
	"context"
	"time"
)

// TableFile names one parquet object backing a dataset table.
type TableFile struct {
	TableName     string
	ObjectPath    string
	FileSizeBytes int64
}

// Request carries the SQL for one chat query plus every table file of the
// active dataset, so multi-table questions resolve in a single execution.
type Request struct {
	SQL      string
	RowLimit int
	Files    []TableFile
}

type Result struct {
	Columns      []string
	Rows         [][]any
	ScannedFiles int
	ScannedBytes int64
	Duration     time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
