package session

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tablechat/tablechat/internal/catalog"
	"github.com/tablechat/tablechat/internal/chat"
	"github.com/tablechat/tablechat/internal/i18n"
	"github.com/tablechat/tablechat/internal/query"
	"github.com/tablechat/tablechat/internal/render"
	"github.com/tablechat/tablechat/internal/schema"
	"github.com/tablechat/tablechat/internal/storage"
	"github.com/tablechat/tablechat/internal/tabular"
	"github.com/tablechat/tablechat/internal/translate"
)

func (e *Engine) handleExplore(ctx context.Context, sess *Session, event chat.Event, text string) ([]chat.Reply, error) {
	msgs := i18n.For(sess.Language)

	if event.Type == chat.EventFile {
		return e.ingestUpload(ctx, sess, event)
	}
	if strings.TrimSpace(text) == "" {
		return []chat.Reply{{Text: msgs.QueryPrompt}}, nil
	}
	return e.runQuery(ctx, sess, text)
}

// ingestUpload decodes an uploaded data file, stores each table as one
// parquet object under a fresh dataset locator and registers the dataset.
func (e *Engine) ingestUpload(ctx context.Context, sess *Session, event chat.Event) ([]chat.Reply, error) {
	msgs := i18n.For(sess.Language)

	tables, err := decodeUpload(ctx, event.FileName, event.FileData)
	if err != nil {
		e.deps.Logger.Warn("upload rejected", "user_id", sess.UserID, "file", event.FileName, "error", err)
		return []chat.Reply{{Text: msgs.UploadPrompt}}, nil
	}

	datasetID := uuid.NewString()
	locator, err := storage.BuildDatasetPrefix(sess.UserID, datasetID)
	if err != nil {
		return nil, fmt.Errorf("build dataset locator: %w", err)
	}

	for _, table := range tables {
		if err := e.putTable(ctx, locator, table); err != nil {
			return nil, err
		}
	}

	info, err := e.deps.Inspector.Inspect(ctx, locator)
	if err != nil {
		return nil, fmt.Errorf("inspect uploaded dataset: %w", err)
	}
	mainTable := schema.PickMainTable(info)

	name := datasetNameFromFile(event.FileName)
	ref, err := e.deps.Catalog.AddDataset(ctx, sess.UserID, catalog.AddDatasetInput{
		Name:      name,
		Locator:   locator,
		TableName: mainTable,
		Columns:   columnDefinitions(info.Tables[mainTable].Columns),
	})
	if err != nil {
		return nil, fmt.Errorf("register dataset: %w", err)
	}
	sess.ActiveDataset = &ref

	replies := []chat.Reply{{Text: fmt.Sprintf(msgs.DatasetUploaded, name, event.FileName)}}
	for _, tableName := range info.TableNames {
		table := info.Tables[tableName]
		replies = append(replies, chat.Reply{
			Text: fmt.Sprintf(msgs.TableInfo, tableName, len(table.Columns), table.RowCount),
		})
	}
	replies = append(replies, chat.Reply{Text: msgs.QueryPrompt})
	return replies, nil
}

// runQuery executes the translate/execute/render pipeline for one free-text
// query against the active dataset.
func (e *Engine) runQuery(ctx context.Context, sess *Session, text string) ([]chat.Reply, error) {
	msgs := i18n.For(sess.Language)
	ref := sess.ActiveDataset
	if ref == nil {
		return []chat.Reply{{Text: msgs.NoDatasetSelected}}, nil
	}

	info, err := e.deps.Inspector.Inspect(ctx, ref.Locator)
	if err != nil {
		e.deps.Logger.Warn("dataset unreadable", "user_id", sess.UserID, "locator", ref.Locator, "error", err)
		return []chat.Reply{{Text: msgs.ErrorQuery}}, nil
	}
	tableName := ref.TableName
	if _, ok := info.Tables[tableName]; !ok {
		tableName = schema.PickMainTable(info)
	}
	if tableName == "" {
		return []chat.Reply{{Text: msgs.ErrorQuery}}, nil
	}

	callCtx, done := sess.beginCancelable(ctx)
	defer done()

	plan := e.deps.Translator.Translate(callCtx, translate.Request{
		Query:     text,
		TableName: tableName,
		Schema:    schema.Describe(info),
		Language:  string(sess.Language),
	})
	if callCtx.Err() != nil {
		// Cancelled mid-call: the cancel handler owns the next reply.
		return nil, nil
	}

	files := make([]query.TableFile, 0, len(info.TableNames))
	for _, name := range info.TableNames {
		table := info.Tables[name]
		files = append(files, query.TableFile{
			TableName:     name,
			ObjectPath:    table.ObjectPath,
			FileSizeBytes: table.SizeBytes,
		})
	}

	execCtx, cancel := context.WithTimeout(callCtx, e.deps.QueryTimeout)
	defer cancel()
	result, err := e.deps.Executor.Execute(execCtx, query.Request{
		SQL:      plan.SQL,
		RowLimit: e.deps.MaxRows,
		Files:    files,
	})
	if callCtx.Err() != nil {
		return nil, nil
	}
	if err != nil {
		e.deps.Logger.Warn("query execution failed",
			"user_id", sess.UserID, "sql", plan.SQL, "error", err)
		return []chat.Reply{{Text: msgs.ErrorQuery}}, nil
	}

	payload := e.deps.Renderer.Render(result, plan.Shape, tableName, sess.Language)
	return payloadReplies(payload, msgs), nil
}

func payloadReplies(payload render.Payload, msgs i18n.Messages) []chat.Reply {
	switch payload.Kind {
	case render.KindChart:
		return []chat.Reply{{Text: payload.Text, Image: payload.Image}}
	case render.KindTableWithExport:
		return []chat.Reply{
			{Text: payload.Text},
			{Text: msgs.FullDatasetCaption, FileName: payload.ExportName, FileData: payload.Export},
		}
	default:
		return []chat.Reply{{Text: payload.Text}}
	}
}

func (e *Engine) putTable(ctx context.Context, locator string, table *tabular.Table) error {
	data, err := tabular.EncodeParquet(table)
	if err != nil {
		return fmt.Errorf("encode table %q: %w", table.Name, err)
	}
	key := path.Join(locator, table.Name+".parquet")
	if _, err := e.deps.Store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: "application/octet-stream",
	}); err != nil {
		return fmt.Errorf("store table %q: %w", table.Name, err)
	}
	return nil
}

// decodeUpload turns an uploaded file into one or more tables based on its
// extension.
func decodeUpload(ctx context.Context, fileName string, data []byte) ([]*tabular.Table, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("uploaded file is empty")
	}
	base := datasetNameFromFile(fileName)

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		table, err := tabular.DecodeCSV(bytes.NewReader(data), base)
		if err != nil {
			return nil, err
		}
		return []*tabular.Table{table}, nil
	case ".parquet":
		table, err := tabular.DecodeParquet(data)
		if err != nil {
			return nil, err
		}
		table.Name = base
		return []*tabular.Table{table}, nil
	case ".xlsx":
		table, err := tabular.DecodeXLSX(data, base)
		if err != nil {
			return nil, err
		}
		return []*tabular.Table{table}, nil
	case ".db", ".sqlite", ".sqlite3":
		return extractSQLiteUpload(ctx, data)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(fileName))
	}
}

func extractSQLiteUpload(ctx context.Context, data []byte) ([]*tabular.Table, error) {
	tmp, err := os.CreateTemp("", "tablechat-upload-*.db")
	if err != nil {
		return nil, fmt.Errorf("create temp sqlite file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("write temp sqlite file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp sqlite file: %w", err)
	}
	return tabular.ExtractSQLite(ctx, tmp.Name())
}

func datasetNameFromFile(fileName string) string {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	return tabular.SanitizeIdentifier(base)
}

func columnDefinitions(columns []tabular.Column) []catalog.ColumnDefinition {
	defs := make([]catalog.ColumnDefinition, len(columns))
	for i, column := range columns {
		defs[i] = catalog.ColumnDefinition{
			Name:       column.Name,
			Definition: fmt.Sprintf("%s %s", column.Name, column.Type),
		}
	}
	return defs
}
