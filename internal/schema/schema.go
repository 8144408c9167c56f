package schema

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/tablechat/tablechat/internal/storage"
	"github.com/tablechat/tablechat/internal/tabular"
)

// ErrStoreUnreadable signals that a dataset locator could not be listed or
// held no readable tables.
var ErrStoreUnreadable = errors.New("dataset store unreadable")

type TableInfo struct {
	Name       string
	Columns    []tabular.Column
	RowCount   int64
	SizeBytes  int64
	ObjectPath string
}

// DatasetInfo holds the per-table schemas of a dataset plus the stable
// enumeration order used for main-table selection.
type DatasetInfo struct {
	Tables     map[string]TableInfo
	TableNames []string
}

type Inspector struct {
	Store storage.ObjectStore
}

func NewInspector(store storage.ObjectStore) *Inspector {
	return &Inspector{Store: store}
}

// Inspect lists the parquet objects under a dataset locator and reads each
// footer for column layout and row count. A table whose footer cannot be
// read is skipped.
func (ins *Inspector) Inspect(ctx context.Context, locator string) (DatasetInfo, error) {
	if ins.Store == nil {
		return DatasetInfo{}, fmt.Errorf("object store is required")
	}
	objects, err := ins.Store.List(ctx, locator)
	if err != nil {
		return DatasetInfo{}, fmt.Errorf("%w: list %q: %v", ErrStoreUnreadable, locator, err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })

	info := DatasetInfo{Tables: map[string]TableInfo{}}
	for _, object := range objects {
		tableName, ok := storage.TableNameFromKey(object.Key)
		if !ok {
			continue
		}
		columns, rowCount, err := ins.readFooter(ctx, object.Key)
		if err != nil {
			continue
		}
		info.Tables[tableName] = TableInfo{
			Name:       tableName,
			Columns:    columns,
			RowCount:   rowCount,
			SizeBytes:  object.Size,
			ObjectPath: object.Key,
		}
		info.TableNames = append(info.TableNames, tableName)
	}
	if len(info.Tables) == 0 {
		return DatasetInfo{}, fmt.Errorf("%w: no readable tables under %q", ErrStoreUnreadable, locator)
	}
	return info, nil
}

func (ins *Inspector) readFooter(ctx context.Context, key string) ([]tabular.Column, int64, error) {
	reader, err := ins.Store.Get(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	data, err := io.ReadAll(reader)
	closeErr := reader.Close()
	if err != nil {
		return nil, 0, err
	}
	if closeErr != nil {
		return nil, 0, closeErr
	}
	return tabular.ReadParquetInfo(data)
}

// PickMainTable chooses the table a free-text query targets: among
// non-system tables, the one with the most rows, ties broken by enumeration
// order. When only system tables exist the first table wins; an empty
// dataset yields "".
func PickMainTable(info DatasetInfo) string {
	best := ""
	var bestRows int64 = -1
	for _, name := range info.TableNames {
		if isSystemTable(name) {
			continue
		}
		if table, ok := info.Tables[name]; ok && table.RowCount > bestRows {
			best = name
			bestRows = table.RowCount
		}
	}
	if best != "" {
		return best
	}
	if len(info.TableNames) > 0 {
		return info.TableNames[0]
	}
	return ""
}

func isSystemTable(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, "sqlite_")
}

// Describe renders a compact one-line-per-table schema description for
// completion prompts.
func Describe(info DatasetInfo) string {
	var b strings.Builder
	for _, name := range info.TableNames {
		table, ok := info.Tables[name]
		if !ok {
			continue
		}
		names := make([]string, len(table.Columns))
		for i, column := range table.Columns {
			names[i] = column.Name
		}
		fmt.Fprintf(&b, "table %s(%s), %d rows\n", name, strings.Join(names, ", "), table.RowCount)
	}
	return strings.TrimSpace(b.String())
}
