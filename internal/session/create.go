package session

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/tablechat/tablechat/internal/catalog"
	"github.com/tablechat/tablechat/internal/chat"
	"github.com/tablechat/tablechat/internal/i18n"
	"github.com/tablechat/tablechat/internal/storage"
	"github.com/tablechat/tablechat/internal/tabular"
)

func (e *Engine) handleCreate(ctx context.Context, sess *Session, text string) ([]chat.Reply, error) {
	msgs := i18n.For(sess.Language)
	normalized := strings.ToLower(strings.TrimSpace(text))

	switch sess.Sub {
	case SubAwaitingColumns:
		return e.createDataset(ctx, sess, text)
	case SubAwaitingRow:
		return e.addRow(ctx, sess, text)
	}

	switch {
	case strings.Contains(normalized, "create") || strings.Contains(normalized, "созда"):
		sess.Sub = SubAwaitingColumns
		// A message that already carries the column list skips the prompt.
		if strings.Contains(normalized, "column") || strings.Contains(normalized, "столбц") {
			return e.createDataset(ctx, sess, text)
		}
		return []chat.Reply{{Text: msgs.CreatingDataset}}, nil
	case strings.Contains(normalized, "add") || strings.Contains(normalized, "добав"):
		if sess.ActiveDataset == nil {
			return e.presentDatasetChoice(ctx, sess)
		}
		sess.Sub = SubAwaitingRow
		return []chat.Reply{{Text: msgs.AddRowPrompt}}, nil
	default:
		return []chat.Reply{{Text: msgs.CreateSelected, Keyboard: []string{msgs.BackLabel}}}, nil
	}
}

func (e *Engine) presentDatasetChoice(ctx context.Context, sess *Session) ([]chat.Reply, error) {
	msgs := i18n.For(sess.Language)
	datasets, err := e.deps.Catalog.ListDatasets(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	if len(datasets) == 0 {
		return []chat.Reply{{Text: msgs.NoDatasets}}, nil
	}
	keyboard := make([]string, len(datasets))
	for i, ref := range datasets {
		keyboard[i] = ref.Name
	}
	return []chat.Reply{{Text: msgs.SelectDataset, Keyboard: keyboard}}, nil
}

// createDataset parses a free-text dataset description, materializes an
// empty table and registers it. Parsing always yields something: the LLM
// result, a heuristic extraction, or generic defaults.
func (e *Engine) createDataset(ctx context.Context, sess *Session, text string) ([]chat.Reply, error) {
	msgs := i18n.For(sess.Language)

	callCtx, done := sess.beginCancelable(ctx)
	name, definitions := e.parseDatasetSpec(callCtx, text)
	cancelled := callCtx.Err() != nil
	done()
	if cancelled {
		return nil, nil
	}

	columns := make([]tabular.Column, 0, len(definitions))
	defs := make([]catalog.ColumnDefinition, 0, len(definitions))
	for _, definition := range definitions {
		column, err := tabular.ParseColumnDefinition(definition)
		if err != nil {
			continue
		}
		columns = append(columns, column)
		defs = append(defs, catalog.ColumnDefinition{Name: column.Name, Definition: strings.TrimSpace(definition)})
	}
	table, err := tabular.NewEmptyTable(name, columns)
	if err != nil {
		e.deps.Logger.Warn("dataset definition rejected", "user_id", sess.UserID, "error", err)
		return []chat.Reply{{Text: msgs.ErrorCreateDataset}}, nil
	}

	locator, err := storage.BuildDatasetPrefix(sess.UserID, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("build dataset locator: %w", err)
	}
	if err := e.putTable(ctx, locator, table); err != nil {
		return nil, err
	}

	ref, err := e.deps.Catalog.AddDataset(ctx, sess.UserID, catalog.AddDatasetInput{
		Name:      table.Name,
		Locator:   locator,
		TableName: table.Name,
		Columns:   defs,
	})
	if err != nil {
		return nil, fmt.Errorf("register dataset: %w", err)
	}
	sess.ActiveDataset = &ref
	sess.Sub = SubNone

	lines := make([]string, len(defs))
	for i, def := range defs {
		lines[i] = "- " + def.Definition
	}
	return []chat.Reply{{Text: fmt.Sprintf(msgs.DatasetCreated, table.Name, strings.Join(lines, "\n"))}}, nil
}

var (
	quotedNamePattern = regexp.MustCompile(`['"«]([^'"«»]+)['"»]`)
	columnListPattern = regexp.MustCompile(`(?i)(?:columns?|столбцами|столбцы|столбцов)\s*:?\s*(.+)$`)
)

// parseDatasetSpec extracts a dataset name and column definition list from
// free text. LLM first, regex heuristics second, generic defaults last.
func (e *Engine) parseDatasetSpec(ctx context.Context, text string) (string, []string) {
	if e.deps.Completer != nil {
		prompt := "Extract the dataset name and column definitions from the request below. " +
			"Respond with ONLY a JSON object shaped {\"name\": \"...\", \"columns\": [\"id INTEGER\", \"name TEXT\"]}. " +
			"No markdown, no explanation.\n\nRequest:\n" + strings.TrimSpace(text)
		raw, err := e.deps.Completer.Complete(ctx, prompt, 500, 0)
		if err == nil {
			var parsed struct {
				Name    string   `json:"name"`
				Columns []string `json:"columns"`
			}
			cleaned := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), "`"))
			cleaned = strings.TrimPrefix(cleaned, "json")
			if jsonErr := json.Unmarshal([]byte(cleaned), &parsed); jsonErr == nil &&
				parsed.Name != "" && len(parsed.Columns) > 0 {
				return tabular.SanitizeIdentifier(parsed.Name), parsed.Columns
			}
		} else {
			e.deps.Logger.Warn("dataset spec completion failed", "error", err)
		}
	}

	name := "dataset"
	if match := quotedNamePattern.FindStringSubmatch(text); match != nil {
		name = tabular.SanitizeIdentifier(match[1])
	}
	if match := columnListPattern.FindStringSubmatch(text); match != nil {
		parts := strings.Split(match[1], ",")
		definitions := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				definitions = append(definitions, trimmed)
			}
		}
		if len(definitions) > 0 {
			return name, definitions
		}
	}
	return name, []string{"id INTEGER", "name TEXT", "value REAL"}
}

// addRow parses a free-text row, appends it to the active table's parquet
// object and rewrites the object. Parse failures keep the sub-dialogue so
// the user can retry immediately.
func (e *Engine) addRow(ctx context.Context, sess *Session, text string) ([]chat.Reply, error) {
	msgs := i18n.For(sess.Language)
	ref := sess.ActiveDataset
	if ref == nil {
		sess.Sub = SubNone
		return []chat.Reply{{Text: msgs.NoDatasetSelected}}, nil
	}

	key := path.Join(ref.Locator, ref.TableName+".parquet")
	reader, err := e.deps.Store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load table object %q: %w", key, err)
	}
	data, err := io.ReadAll(reader)
	closeErr := reader.Close()
	if err != nil {
		return nil, fmt.Errorf("read table object %q: %w", key, err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close table object %q: %w", key, closeErr)
	}
	table, err := tabular.DecodeParquet(data)
	if err != nil {
		return nil, fmt.Errorf("decode table %q: %w", ref.TableName, err)
	}
	table.Name = ref.TableName

	callCtx, done := sess.beginCancelable(ctx)
	values, parseErr := e.parseRowValues(callCtx, table.Columns, text)
	cancelled := callCtx.Err() != nil
	done()
	if cancelled {
		return nil, nil
	}
	if parseErr == nil {
		parseErr = table.AppendRow(values)
	}
	if parseErr != nil {
		e.deps.Logger.Warn("row rejected", "user_id", sess.UserID, "table", ref.TableName, "error", parseErr)
		return []chat.Reply{{Text: msgs.ErrorAddRow}}, nil
	}

	if err := e.putTable(ctx, ref.Locator, table); err != nil {
		return nil, err
	}
	return []chat.Reply{{Text: msgs.RowAdded}}, nil
}

// parseRowValues turns free text into one positional value per column,
// consulting the completion service first and splitting on commas as a
// fallback.
func (e *Engine) parseRowValues(ctx context.Context, columns []tabular.Column, text string) ([]string, error) {
	names := make([]string, len(columns))
	for i, column := range columns {
		names[i] = fmt.Sprintf("%s %s", column.Name, column.Type)
	}

	if e.deps.Completer != nil {
		prompt := fmt.Sprintf(
			"Convert the text below into exactly one CSV line with %d values, one per column, in this order: %s. "+
				"Respond with ONLY the CSV line.\n\nText:\n%s",
			len(columns), strings.Join(names, ", "), strings.TrimSpace(text))
		raw, err := e.deps.Completer.Complete(ctx, prompt, 300, 0)
		if err == nil {
			record, csvErr := csv.NewReader(strings.NewReader(strings.TrimSpace(raw))).Read()
			if csvErr == nil && len(record) == len(columns) {
				return record, nil
			}
		} else {
			e.deps.Logger.Warn("row parse completion failed", "error", err)
		}
	}

	parts := strings.Split(text, ",")
	if len(parts) != len(columns) {
		return nil, fmt.Errorf("expected %d values, got %d", len(columns), len(parts))
	}
	values := make([]string, len(parts))
	for i, part := range parts {
		values[i] = strings.TrimSpace(part)
	}
	return values, nil
}
