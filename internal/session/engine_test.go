package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tablechat/tablechat/internal/catalog"
	"github.com/tablechat/tablechat/internal/chat"
	"github.com/tablechat/tablechat/internal/i18n"
	"github.com/tablechat/tablechat/internal/query"
	"github.com/tablechat/tablechat/internal/storage"
	"github.com/tablechat/tablechat/internal/tabular"
	"github.com/tablechat/tablechat/internal/translate"
)

type fakeCatalog struct {
	mu        sync.Mutex
	languages map[string]i18n.Language
	datasets  map[string][]catalog.DatasetRef
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		languages: map[string]i18n.Language{},
		datasets:  map[string][]catalog.DatasetRef{},
	}
}

func (f *fakeCatalog) HealthCheck(context.Context) error { return nil }

func (f *fakeCatalog) GetLanguage(_ context.Context, userID string) (i18n.Language, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lang, ok := f.languages[userID]
	if !ok {
		return "", catalog.ErrNotFound
	}
	return lang, nil
}

func (f *fakeCatalog) SetLanguage(_ context.Context, userID string, lang i18n.Language) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.languages[userID] = lang
	return nil
}

func (f *fakeCatalog) ListDatasets(_ context.Context, userID string) ([]catalog.DatasetRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]catalog.DatasetRef(nil), f.datasets[userID]...), nil
}

func (f *fakeCatalog) AddDataset(_ context.Context, userID string, in catalog.AddDatasetInput) (catalog.DatasetRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := catalog.DatasetRef{
		Name:      in.Name,
		Locator:   in.Locator,
		TableName: in.TableName,
		Columns:   in.Columns,
		CreatedAt: time.Now().UTC(),
	}
	f.datasets[userID] = append(f.datasets[userID], ref)
	return ref, nil
}

func (f *fakeCatalog) GetDataset(_ context.Context, userID, name string) (catalog.DatasetRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ref := range f.datasets[userID] {
		if ref.Name == name {
			return ref, nil
		}
	}
	return catalog.DatasetRef{}, catalog.ErrNotFound
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var infos []storage.ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return infos, nil
}

// fakeExecutor serves every statement as a full scan of the first table
// file, which is enough for the deterministic plans under test.
type fakeExecutor struct {
	store   storage.ObjectStore
	entered chan struct{}
	release chan struct{}
}

func (f *fakeExecutor) Execute(ctx context.Context, req query.Request) (query.Result, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return query.Result{}, ctx.Err()
		}
	}
	if len(req.Files) == 0 {
		return query.Result{}, fmt.Errorf("no files")
	}
	reader, err := f.store.Get(ctx, req.Files[0].ObjectPath)
	if err != nil {
		return query.Result{}, err
	}
	data, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		return query.Result{}, err
	}
	table, err := tabular.DecodeParquet(data)
	if err != nil {
		return query.Result{}, err
	}
	columns := make([]string, len(table.Columns))
	for i, column := range table.Columns {
		columns[i] = column.Name
	}
	return query.Result{Columns: columns, Rows: table.Rows}, nil
}

type collectSink struct {
	mu      sync.Mutex
	replies []chat.Reply
}

func (c *collectSink) Send(_ context.Context, _ string, reply chat.Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, reply)
	return nil
}

func (c *collectSink) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	texts := make([]string, len(c.replies))
	for i, reply := range c.replies {
		texts[i] = reply.Text
	}
	return texts
}

type erroringCompleter struct{}

func (erroringCompleter) Complete(context.Context, string, int, float64) (string, error) {
	return "", fmt.Errorf("completion unavailable")
}

type blockingCompleter struct {
	entered chan struct{}
}

func (b *blockingCompleter) Complete(ctx context.Context, _ string, _ int, _ float64) (string, error) {
	if b.entered != nil {
		b.entered <- struct{}{}
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func newTestEngine(t *testing.T, repo catalog.Repository, store storage.ObjectStore, executor query.Engine, completer translate.Completer) *Engine {
	t.Helper()
	engine, err := NewEngine(Deps{
		Catalog:    repo,
		Store:      store,
		Translator: translate.NewTranslator(completer, nil, time.Second, 100, 0),
		Completer:  completer,
		Executor:   executor,
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func handle(t *testing.T, engine *Engine, sink chat.Sink, event chat.Event) {
	t.Helper()
	if err := engine.Handle(context.Background(), event, sink); err != nil {
		t.Fatalf("Handle(%+v) error = %v", event, err)
	}
}

func containsText(texts []string, fragment string) bool {
	for _, text := range texts {
		if strings.Contains(text, fragment) {
			return true
		}
	}
	return false
}

func TestLanguageDialogue(t *testing.T) {
	repo := newFakeCatalog()
	store := newMemoryStore()
	engine := newTestEngine(t, repo, store, &fakeExecutor{store: store}, nil)
	sink := &collectSink{}

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "hi"})
	if !containsText(sink.texts(), "choose your preferred language") {
		t.Fatalf("expected language prompt, got %v", sink.texts())
	}

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "English"})
	if !containsText(sink.texts(), "English language selected") {
		t.Fatalf("expected language confirmation, got %v", sink.texts())
	}
	if lang, err := repo.GetLanguage(context.Background(), "user-1"); err != nil || lang != i18n.English {
		t.Fatalf("stored language = %q, %v", lang, err)
	}
}

func TestEndToEndUploadAndShowAll(t *testing.T) {
	repo := newFakeCatalog()
	store := newMemoryStore()
	engine := newTestEngine(t, repo, store, &fakeExecutor{store: store}, nil)
	sink := &collectSink{}
	_ = repo.SetLanguage(context.Background(), "user-1", i18n.English)

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "explore"})
	if !containsText(sink.texts(), "Explore mode") {
		t.Fatalf("expected explore confirmation, got %v", sink.texts())
	}

	csvData := "name,age\nrex,4\nmuffin,2\ntweety,1\n"
	handle(t, engine, sink, chat.Event{
		UserID:   "user-1",
		Type:     chat.EventFile,
		FileName: "pets.csv",
		FileData: []byte(csvData),
	})
	texts := sink.texts()
	if !containsText(texts, `Dataset "pets" uploaded successfully`) {
		t.Fatalf("expected upload confirmation, got %v", texts)
	}
	if !containsText(texts, "Table pets: 2 columns, 3 rows.") {
		t.Fatalf("expected table info, got %v", texts)
	}

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "show all"})
	texts = sink.texts()
	if !containsText(texts, "Showing all data (3 records):") {
		t.Fatalf("expected full-table rendering, got %v", texts)
	}
	final := texts[len(texts)-1]
	for _, name := range []string{"rex", "muffin", "tweety"} {
		if !strings.Contains(final, name) {
			t.Fatalf("row %q missing from %q", name, final)
		}
	}
}

func TestSameUserEventsAreSerialized(t *testing.T) {
	repo := newFakeCatalog()
	store := newMemoryStore()
	executor := &fakeExecutor{store: store, entered: make(chan struct{}, 1), release: make(chan struct{})}
	engine := newTestEngine(t, repo, store, executor, nil)
	sink := &collectSink{}
	_ = repo.SetLanguage(context.Background(), "user-1", i18n.English)

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "explore"})
	handle(t, engine, sink, chat.Event{
		UserID:   "user-1",
		Type:     chat.EventFile,
		FileName: "pets.csv",
		FileData: []byte("name,age\nrex,4\n"),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Handle(context.Background(), chat.Event{UserID: "user-1", Type: chat.EventText, Text: "show all"}, sink); err != nil {
			t.Errorf("first event: %v", err)
		}
	}()
	<-executor.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Handle(context.Background(), chat.Event{UserID: "user-1", Type: chat.EventText, Text: "back"}, sink); err != nil {
			t.Errorf("second event: %v", err)
		}
	}()

	// The second event must queue behind the blocked first one.
	time.Sleep(50 * time.Millisecond)
	if containsText(sink.texts(), "Main menu") {
		t.Fatal("second event ran before the first completed")
	}

	close(executor.release)
	wg.Wait()

	texts := sink.texts()
	resultIndex, menuIndex := -1, -1
	for i, text := range texts {
		if strings.Contains(text, "Showing all data") {
			resultIndex = i
		}
		if strings.Contains(text, "Main menu") && menuIndex == -1 {
			menuIndex = i
		}
	}
	if resultIndex == -1 || menuIndex == -1 || menuIndex < resultIndex {
		t.Fatalf("events applied out of order: %v", texts)
	}
}

func TestCancelAbortsOutstandingCompletion(t *testing.T) {
	repo := newFakeCatalog()
	store := newMemoryStore()
	completer := &blockingCompleter{entered: make(chan struct{}, 1)}
	engine := newTestEngine(t, repo, store, &fakeExecutor{store: store}, completer)
	sink := &collectSink{}
	_ = repo.SetLanguage(context.Background(), "user-1", i18n.English)

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "explore"})
	handle(t, engine, sink, chat.Event{
		UserID:   "user-1",
		Type:     chat.EventFile,
		FileName: "pets.csv",
		FileData: []byte("name,age\nrex,4\n"),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Needs the completion service, so it blocks until cancelled.
		if err := engine.Handle(context.Background(), chat.Event{UserID: "user-1", Type: chat.EventText, Text: "average age"}, sink); err != nil {
			t.Errorf("query event: %v", err)
		}
	}()
	<-completer.entered

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventCancel})
	wg.Wait()

	texts := sink.texts()
	if !containsText(texts, "Operation cancelled.") {
		t.Fatalf("expected cancellation notice, got %v", texts)
	}
	if containsText(texts, "Showing all data") || containsText(texts, "No results") {
		t.Fatalf("aborted query leaked output: %v", texts)
	}
}

func TestCreateDatasetAndAddRow(t *testing.T) {
	repo := newFakeCatalog()
	store := newMemoryStore()
	engine := newTestEngine(t, repo, store, &fakeExecutor{store: store}, erroringCompleter{})
	sink := &collectSink{}
	_ = repo.SetLanguage(context.Background(), "user-1", i18n.English)

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "create dataset"})
	handle(t, engine, sink, chat.Event{
		UserID: "user-1",
		Type:   chat.EventText,
		Text:   "create dataset 'pets' with columns: name text, age integer",
	})
	if !containsText(sink.texts(), `Dataset "pets" created`) {
		t.Fatalf("expected creation confirmation, got %v", sink.texts())
	}

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "add"})
	if !containsText(sink.texts(), "Send a row to add") {
		t.Fatalf("expected row prompt, got %v", sink.texts())
	}

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "rex, 4"})
	if !containsText(sink.texts(), "Row added successfully.") {
		t.Fatalf("expected row confirmation, got %v", sink.texts())
	}

	refs, err := repo.ListDatasets(context.Background(), "user-1")
	if err != nil || len(refs) != 1 {
		t.Fatalf("datasets = %v, %v", refs, err)
	}
	reader, err := store.Get(context.Background(), refs[0].Locator+"/pets.parquet")
	if err != nil {
		t.Fatalf("stored table missing: %v", err)
	}
	data, _ := io.ReadAll(reader)
	_ = reader.Close()
	table, err := tabular.DecodeParquet(data)
	if err != nil {
		t.Fatalf("DecodeParquet() error = %v", err)
	}
	if len(table.Rows) != 1 || table.Rows[0][0] != "rex" || table.Rows[0][1] != int64(4) {
		t.Fatalf("stored rows = %#v", table.Rows)
	}
}

func TestAddRowParseFailureKeepsSubDialogue(t *testing.T) {
	repo := newFakeCatalog()
	store := newMemoryStore()
	engine := newTestEngine(t, repo, store, &fakeExecutor{store: store}, erroringCompleter{})
	sink := &collectSink{}
	_ = repo.SetLanguage(context.Background(), "user-1", i18n.English)

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "create"})
	handle(t, engine, sink, chat.Event{
		UserID: "user-1",
		Type:   chat.EventText,
		Text:   "create dataset 'pets' with columns: name text, age integer",
	})
	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "add"})

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "way, too, many, values"})
	if !containsText(sink.texts(), "Couldn't parse that row.") {
		t.Fatalf("expected parse error, got %v", sink.texts())
	}

	// The sub-dialogue survives, so an immediate retry works.
	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "muffin, 2"})
	if !containsText(sink.texts(), "Row added successfully.") {
		t.Fatalf("expected retry to succeed, got %v", sink.texts())
	}
}

func TestChangeLanguageResetsCreateSubDialogue(t *testing.T) {
	repo := newFakeCatalog()
	store := newMemoryStore()
	engine := newTestEngine(t, repo, store, &fakeExecutor{store: store}, erroringCompleter{})
	sink := &collectSink{}
	_ = repo.SetLanguage(context.Background(), "user-1", i18n.English)

	// Enter create mode and start the column-definition sub-dialogue.
	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "create"})
	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "create"})
	if !containsText(sink.texts(), "Send the dataset name and columns.") {
		t.Fatalf("expected column prompt, got %v", sink.texts())
	}

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "change language"})
	if !containsText(sink.texts(), "choose your preferred language") {
		t.Fatalf("expected language prompt, got %v", sink.texts())
	}
	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "English"})
	if !containsText(sink.texts(), "Language changed to English.") {
		t.Fatalf("expected change confirmation, got %v", sink.texts())
	}

	// Back in create mode, "add" must start the add-row flow instead of
	// being swallowed by the stale column-definition sub-dialogue.
	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "create"})
	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "add"})
	if !containsText(sink.texts(), "You don't have any datasets yet.") {
		t.Fatalf("expected dataset choice, got %v", sink.texts())
	}
	if containsText(sink.texts(), "created with columns") {
		t.Fatalf("stale sub-dialogue created a dataset: %v", sink.texts())
	}
}

func TestVoiceFallsBackToCannedQuery(t *testing.T) {
	repo := newFakeCatalog()
	store := newMemoryStore()
	engine := newTestEngine(t, repo, store, &fakeExecutor{store: store}, nil)
	sink := &collectSink{}
	_ = repo.SetLanguage(context.Background(), "user-1", i18n.English)

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "explore"})
	handle(t, engine, sink, chat.Event{
		UserID:   "user-1",
		Type:     chat.EventFile,
		FileName: "pets.csv",
		FileData: []byte("name,age\nrex,4\n"),
	})

	// No transcriber is wired, so the canned "show all data" query runs.
	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventVoice, Audio: []byte("ogg")})
	if !containsText(sink.texts(), "Showing all data (1 records):") {
		t.Fatalf("expected canned full-table query, got %v", sink.texts())
	}
}

func TestListDatasetsAndSelection(t *testing.T) {
	repo := newFakeCatalog()
	store := newMemoryStore()
	engine := newTestEngine(t, repo, store, &fakeExecutor{store: store}, erroringCompleter{})
	sink := &collectSink{}
	_ = repo.SetLanguage(context.Background(), "user-1", i18n.English)

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "list"})
	if !containsText(sink.texts(), "don't have any datasets") {
		t.Fatalf("expected empty list, got %v", sink.texts())
	}

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "create"})
	handle(t, engine, sink, chat.Event{
		UserID: "user-1",
		Type:   chat.EventText,
		Text:   "create dataset 'pets' with columns: name text, age integer",
	})
	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventText, Text: "list"})
	if !containsText(sink.texts(), "- pets (pets)") {
		t.Fatalf("expected dataset listing, got %v", sink.texts())
	}

	handle(t, engine, sink, chat.Event{UserID: "user-1", Type: chat.EventSelect, Text: "pets"})
	if !containsText(sink.texts(), "Send a row to add") {
		t.Fatalf("expected selection to start the row dialogue, got %v", sink.texts())
	}
}
