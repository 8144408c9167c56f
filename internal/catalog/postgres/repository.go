package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tablechat/tablechat/internal/catalog"
	"github.com/tablechat/tablechat/internal/i18n"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

func (r *Repository) GetLanguage(ctx context.Context, userID string) (i18n.Language, error) {
	query := `
SELECT language
FROM user_settings
WHERE user_id = $1`

	var lang string
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&lang); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", catalog.ErrNotFound
		}
		return "", fmt.Errorf("get language: %w", err)
	}
	return i18n.Language(lang), nil
}

func (r *Repository) SetLanguage(ctx context.Context, userID string, lang i18n.Language) error {
	query := `
INSERT INTO user_settings (user_id, language)
VALUES ($1, $2)
ON CONFLICT (user_id)
DO UPDATE SET language = EXCLUDED.language`

	if _, err := r.db.ExecContext(ctx, query, userID, string(lang)); err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	return nil
}

func (r *Repository) ListDatasets(ctx context.Context, userID string) ([]catalog.DatasetRef, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT name, locator, table_name, columns_json, created_at
FROM user_dataset
WHERE user_id = $1
ORDER BY created_at DESC, name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	refs := make([]catalog.DatasetRef, 0)
	for rows.Next() {
		ref, err := scanDatasetRow(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset rows: %w", err)
	}
	return refs, nil
}

func (r *Repository) AddDataset(ctx context.Context, userID string, in catalog.AddDatasetInput) (catalog.DatasetRef, error) {
	columnsJSON, err := json.Marshal(in.Columns)
	if err != nil {
		return catalog.DatasetRef{}, fmt.Errorf("marshal columns: %w", err)
	}

	query := `
INSERT INTO user_dataset (user_id, name, locator, table_name, columns_json)
VALUES ($1, $2, $3, $4, $5::jsonb)
RETURNING created_at`

	var createdAt time.Time
	if err := r.db.QueryRowContext(ctx, query, userID, in.Name, in.Locator, in.TableName, string(columnsJSON)).Scan(&createdAt); err != nil {
		return catalog.DatasetRef{}, fmt.Errorf("add dataset: %w", err)
	}
	return catalog.DatasetRef{
		Name:      in.Name,
		Locator:   in.Locator,
		TableName: in.TableName,
		Columns:   in.Columns,
		CreatedAt: createdAt,
	}, nil
}

func (r *Repository) GetDataset(ctx context.Context, userID, name string) (catalog.DatasetRef, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT name, locator, table_name, columns_json, created_at
FROM user_dataset
WHERE user_id = $1 AND name = $2`, userID, name)

	ref, err := scanDatasetRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.DatasetRef{}, catalog.ErrNotFound
		}
		return catalog.DatasetRef{}, err
	}
	return ref, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDatasetRow(row rowScanner) (catalog.DatasetRef, error) {
	var ref catalog.DatasetRef
	var columnsJSON []byte
	if err := row.Scan(&ref.Name, &ref.Locator, &ref.TableName, &columnsJSON, &ref.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.DatasetRef{}, err
		}
		return catalog.DatasetRef{}, fmt.Errorf("scan dataset row: %w", err)
	}
	if len(columnsJSON) > 0 {
		if err := json.Unmarshal(columnsJSON, &ref.Columns); err != nil {
			return catalog.DatasetRef{}, fmt.Errorf("decode dataset columns: %w", err)
		}
	}
	return ref, nil
}
