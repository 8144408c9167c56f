package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/tablechat/tablechat/internal/i18n"
)

var ErrNotFound = errors.New("catalog: not found")

// Repository is the persistence interface for per-user preferences and the
// list of user-owned datasets. Writes for a single user are serialized by the
// session layer; the repository itself only needs to be safe for concurrent
// readers.
type Repository interface {
	HealthCheck(ctx context.Context) error
	GetLanguage(ctx context.Context, userID string) (i18n.Language, error)
	SetLanguage(ctx context.Context, userID string, lang i18n.Language) error
	ListDatasets(ctx context.Context, userID string) ([]DatasetRef, error)
	AddDataset(ctx context.Context, userID string, in AddDatasetInput) (DatasetRef, error)
	GetDataset(ctx context.Context, userID, name string) (DatasetRef, error)
}

// DatasetRef is the authoritative catalog entry for one user-owned dataset.
// Sessions hold only the locator and table name.
type DatasetRef struct {
	Name      string
	Locator   string
	TableName string
	Columns   []ColumnDefinition
	CreatedAt time.Time
}

// ColumnDefinition is a column name plus its declared type/constraint text,
// e.g. "id INTEGER PRIMARY KEY".
type ColumnDefinition struct {
	Name       string
	Definition string
}

type AddDatasetInput struct {
	Name      string
	Locator   string
	TableName string
	Columns   []ColumnDefinition
}
