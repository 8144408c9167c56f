package translate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tablechat/tablechat/internal/observability"
)

// Shape classifies the expected result of a query plan and selects the
// rendering strategy downstream.
type Shape string

const (
	ShapeFullTable    Shape = "full_table"
	ShapeLimitedTable Shape = "limited_table"
	ShapeAIGenerated  Shape = "ai_generated"
	ShapeFallback     Shape = "fallback"
)

type Plan struct {
	SQL   string
	Shape Shape
}

type Request struct {
	Query     string
	TableName string
	Schema    string
	Language  string
}

// Completer is the external completion service. Failures are advisory:
// the translator degrades instead of propagating them.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

type Translator struct {
	Completer   Completer
	Logger      *slog.Logger
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

func NewTranslator(completer Completer, logger *slog.Logger, timeout time.Duration, maxTokens int, temperature float64) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return &Translator{
		Completer:   completer,
		Logger:      logger,
		Timeout:     timeout,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// Markers are matched on the lowercased request. The two deterministic
// rules cover the highest-frequency intents without an external round trip.
var fullTableMarkers = []string{
	"show all",
	"display all",
	"entire table",
	"whole table",
	"показать всю",
	"отобразить все",
	"вся таблица",
	"полная таблица",
}

var limitPattern = regexp.MustCompile(`(?i)(?:first|top|первые|топ)\s+(\d+)`)

var placeholderPattern = regexp.MustCompile(`\bdata\b`)

// Translate turns a free-text request into a query plan. It never returns
// an error: a broken completion service degrades to a bounded fallback plan.
func (t *Translator) Translate(ctx context.Context, req Request) Plan {
	plan := t.translate(ctx, req)
	observability.ObserveTranslation(string(plan.Shape))
	return plan
}

func (t *Translator) translate(ctx context.Context, req Request) Plan {
	lowered := strings.ToLower(req.Query)
	table := quoteIdent(req.TableName)

	for _, marker := range fullTableMarkers {
		if strings.Contains(lowered, marker) {
			return Plan{SQL: fmt.Sprintf("SELECT * FROM %s", table), Shape: ShapeFullTable}
		}
	}

	if match := limitPattern.FindStringSubmatch(req.Query); match != nil {
		if n, err := strconv.Atoi(match[1]); err == nil && n > 0 {
			return Plan{SQL: fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, n), Shape: ShapeLimitedTable}
		}
	}

	if sql, ok := t.complete(ctx, req); ok {
		return Plan{SQL: sql, Shape: ShapeAIGenerated}
	}
	return Plan{SQL: fmt.Sprintf("SELECT * FROM %s LIMIT 10", table), Shape: ShapeFallback}
}

func (t *Translator) complete(ctx context.Context, req Request) (string, bool) {
	if t.Completer == nil {
		return "", false
	}

	callCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := t.Completer.Complete(callCtx, buildPrompt(req), t.MaxTokens, t.Temperature)
	observability.ObserveCompletion(time.Since(start), err != nil)
	if err != nil {
		t.Logger.Warn("completion service failed, degrading to fallback plan", "error", err)
		return "", false
	}

	sql := stripCodeFences(raw)
	if req.TableName != "data" {
		sql = placeholderPattern.ReplaceAllString(sql, req.TableName)
	}
	sql = strings.TrimSpace(sql)
	if sql == "" {
		t.Logger.Warn("completion service returned empty statement")
		return "", false
	}
	if err := checkStatementShape(sql, req.TableName); err != nil {
		t.Logger.Warn("model statement rejected", "error", err, "sql", sql)
		return "", false
	}
	return sql, true
}

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You convert natural language requests into a single DuckDB SQL query. ")
	b.WriteString("DuckDB uses PostgreSQL-like SQL syntax. Return ONLY SQL, no markdown, no explanation.\n\n")
	fmt.Fprintf(&b, "Schema:\n%s\n\n", req.Schema)
	fmt.Fprintf(&b, "Target table: %s\n", req.TableName)
	if req.Language != "" {
		fmt.Fprintf(&b, "Request language: %s\n", req.Language)
	}
	fmt.Fprintf(&b, "\nUser request:\n%s\n\n", strings.TrimSpace(req.Query))
	fmt.Fprintf(&b, "Rules:\n- Query the table %s only.\n- Output a single SELECT statement only.\n", req.TableName)
	return b.String()
}

// checkStatementShape validates the minimal structure of a model-produced
// statement before it reaches the engine: one statement, read-only verb,
// and a reference to the target table.
func checkStatementShape(sql, tableName string) error {
	trimmed := strings.TrimSpace(sql)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("multiple statements")
	}
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("statement is not a query")
	}
	if !strings.Contains(strings.ToLower(trimmed), strings.ToLower(tableName)) {
		return fmt.Errorf("statement does not reference table %q", tableName)
	}
	return nil
}

func stripCodeFences(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
