package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tablechat/tablechat/internal/catalog"
	"github.com/tablechat/tablechat/internal/chat"
	"github.com/tablechat/tablechat/internal/i18n"
	"github.com/tablechat/tablechat/internal/observability"
	"github.com/tablechat/tablechat/internal/query"
	"github.com/tablechat/tablechat/internal/render"
	"github.com/tablechat/tablechat/internal/schema"
	"github.com/tablechat/tablechat/internal/storage"
	"github.com/tablechat/tablechat/internal/transcribe"
	"github.com/tablechat/tablechat/internal/translate"
)

// Deps bundles the collaborators the session engine drives.
type Deps struct {
	Catalog      catalog.Repository
	Store        storage.ObjectStore
	Inspector    *schema.Inspector
	Translator   *translate.Translator
	Completer    translate.Completer
	Transcriber  transcribe.Transcriber
	Executor     query.Engine
	Renderer     *render.Renderer
	Logger       *slog.Logger
	QueryTimeout time.Duration
	MaxRows      int
}

// Engine dispatches chat events through the per-user session state machine.
type Engine struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewEngine(deps Deps) (*Engine, error) {
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog repository is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if deps.Inspector == nil {
		deps.Inspector = schema.NewInspector(deps.Store)
	}
	if deps.Renderer == nil {
		deps.Renderer = render.NewRenderer(deps.Logger)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.QueryTimeout <= 0 {
		deps.QueryTimeout = 30 * time.Second
	}
	if deps.MaxRows <= 0 {
		deps.MaxRows = 10000
	}
	return &Engine{deps: deps, sessions: map[string]*Session{}}, nil
}

// Handle runs one inbound event through the state machine and delivers the
// resulting replies. Events for the same user serialize on the session
// mutex in arrival order; events for different users run concurrently.
func (e *Engine) Handle(ctx context.Context, event chat.Event, sink chat.Sink) error {
	if strings.TrimSpace(event.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if sink == nil {
		return fmt.Errorf("reply sink is required")
	}
	observability.ObserveChatEvent(string(event.Type))

	sess := e.session(event.UserID)

	// A cancel aborts the outstanding external call before queueing behind
	// the handler that issued it.
	if event.Type == chat.EventCancel {
		sess.fireCancel()
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	replies, err := e.dispatch(ctx, sess, event)
	if err != nil {
		e.deps.Logger.Error("event handling failed",
			"user_id", event.UserID, "event_type", string(event.Type), "error", err)
		replies = []chat.Reply{{Text: i18n.For(sess.Language).ErrorGeneral}}
	}
	for _, reply := range replies {
		if err := sink.Send(ctx, event.UserID, reply); err != nil {
			return fmt.Errorf("deliver reply: %w", err)
		}
	}
	return nil
}

func (e *Engine) session(userID string) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.sessions[userID]
	if !ok {
		sess = &Session{UserID: userID, State: StateAwaitingLanguage}
		e.sessions[userID] = sess
		observability.SetActiveSessions(len(e.sessions))
	}
	return sess
}

// dispatch is the single failure boundary: no handler error or panic may
// terminate the session machine.
func (e *Engine) dispatch(ctx context.Context, sess *Session, event chat.Event) (replies []chat.Reply, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("handler panic: %v", recovered)
		}
	}()

	// An unset language forces the language dialogue regardless of the
	// nominal state. A deliberate language change must not be undone by
	// restoring the stored choice.
	if sess.Language == "" && !sess.changingLanguage {
		e.restoreLanguage(ctx, sess)
	}
	if sess.Language == "" || sess.State == StateAwaitingLanguage {
		return e.handleLanguageChoice(ctx, sess, event)
	}

	msgs := i18n.For(sess.Language)

	if event.Type == chat.EventCancel {
		sess.Sub = SubNone
		sess.State = StateMainMenu
		return []chat.Reply{
			{Text: msgs.Cancelled},
			{Text: msgs.MainMenu, Keyboard: mainMenuKeyboard(msgs)},
		}, nil
	}
	if event.Type == chat.EventSelect {
		return e.handleDatasetSelection(ctx, sess, event.Text)
	}

	text := event.Text
	if event.Type == chat.EventVoice {
		transcribed, reply := e.transcribeVoice(ctx, sess, event.Audio)
		if reply != nil {
			replies = append(replies, *reply)
		}
		text = transcribed
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	switch {
	case matchesAny(normalized, "back", "назад") || normalized == strings.ToLower(msgs.BackLabel):
		sess.Sub = SubNone
		sess.State = StateMainMenu
		return append(replies, chat.Reply{Text: msgs.MainMenu, Keyboard: mainMenuKeyboard(msgs)}), nil
	case matchesAny(normalized, "help", "/help", "помощь") || normalized == strings.ToLower(msgs.HelpLabel):
		return append(replies, chat.Reply{Text: msgs.HelpText}), nil
	case matchesAny(normalized, "settings", "/settings", "настройки") || normalized == strings.ToLower(msgs.SettingsLabel):
		return append(replies, chat.Reply{
			Text:     msgs.SettingsText,
			Keyboard: []string{msgs.ChangeLanguage, msgs.BackLabel},
		}), nil
	case matchesAny(normalized, "change language", "сменить язык") || normalized == strings.ToLower(msgs.ChangeLanguage):
		sess.Language = ""
		sess.Sub = SubNone
		sess.State = StateAwaitingLanguage
		sess.changingLanguage = true
		return append(replies, chat.Reply{Text: msgs.ChooseLanguage, Keyboard: languageKeyboard()}), nil
	case matchesAny(normalized, "list", "/list", "список"):
		listReplies, err := e.listDatasets(ctx, sess)
		return append(replies, listReplies...), err
	}

	switch sess.State {
	case StateMainMenu:
		return append(replies, e.handleMainMenu(sess, normalized, msgs)...), nil
	case StateExplore:
		exploreReplies, err := e.handleExplore(ctx, sess, event, text)
		return append(replies, exploreReplies...), err
	case StateCreate:
		createReplies, err := e.handleCreate(ctx, sess, text)
		return append(replies, createReplies...), err
	default:
		return nil, fmt.Errorf("unknown session state %q", sess.State)
	}
}

func (e *Engine) restoreLanguage(ctx context.Context, sess *Session) {
	lang, err := e.deps.Catalog.GetLanguage(ctx, sess.UserID)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			e.deps.Logger.Warn("language lookup failed", "user_id", sess.UserID, "error", err)
		}
		return
	}
	if i18n.Valid(lang) {
		sess.Language = lang
		if sess.State == StateAwaitingLanguage {
			sess.State = StateMainMenu
		}
	}
}

func (e *Engine) handleLanguageChoice(ctx context.Context, sess *Session, event chat.Event) ([]chat.Reply, error) {
	sess.State = StateAwaitingLanguage

	lang, ok := i18n.MatchChoice(event.Text)
	if !ok {
		msgs := i18n.For(sess.Language)
		return []chat.Reply{
			{Text: msgs.Welcome},
			{Text: msgs.ChooseLanguage, Keyboard: languageKeyboard()},
		}, nil
	}

	if err := e.deps.Catalog.SetLanguage(ctx, sess.UserID, lang); err != nil {
		return nil, fmt.Errorf("persist language: %w", err)
	}
	sess.Language = lang
	sess.State = StateMainMenu
	msgs := i18n.For(lang)
	confirmation := msgs.LanguageSelected
	if sess.changingLanguage {
		confirmation = msgs.LanguageChanged
		sess.changingLanguage = false
	}
	return []chat.Reply{
		{Text: confirmation},
		{Text: msgs.MainMenu, Keyboard: mainMenuKeyboard(msgs)},
	}, nil
}

func (e *Engine) handleMainMenu(sess *Session, normalized string, msgs i18n.Messages) []chat.Reply {
	switch {
	case strings.Contains(normalized, "explore") || strings.Contains(normalized, "исследовать") ||
		normalized == strings.ToLower(msgs.ExploreModeLabel):
		sess.State = StateExplore
		return []chat.Reply{
			{Text: msgs.ExploreSelected},
			{Text: msgs.UploadPrompt, Keyboard: []string{msgs.BackLabel}},
		}
	case strings.Contains(normalized, "create") || strings.Contains(normalized, "созда") ||
		normalized == strings.ToLower(msgs.CreateModeLabel):
		sess.State = StateCreate
		return []chat.Reply{
			{Text: msgs.CreateSelected, Keyboard: []string{msgs.BackLabel}},
		}
	default:
		return []chat.Reply{{Text: msgs.MainMenu, Keyboard: mainMenuKeyboard(msgs)}}
	}
}

func (e *Engine) listDatasets(ctx context.Context, sess *Session) ([]chat.Reply, error) {
	msgs := i18n.For(sess.Language)
	datasets, err := e.deps.Catalog.ListDatasets(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	if len(datasets) == 0 {
		return []chat.Reply{{Text: msgs.NoDatasets}}, nil
	}
	lines := make([]string, len(datasets))
	for i, ref := range datasets {
		lines[i] = fmt.Sprintf("- %s (%s)", ref.Name, ref.TableName)
	}
	return []chat.Reply{{Text: fmt.Sprintf(msgs.DatasetList, strings.Join(lines, "\n"))}}, nil
}

func (e *Engine) handleDatasetSelection(ctx context.Context, sess *Session, name string) ([]chat.Reply, error) {
	msgs := i18n.For(sess.Language)
	ref, err := e.deps.Catalog.GetDataset(ctx, sess.UserID, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return []chat.Reply{{Text: msgs.NoDatasetSelected}}, nil
		}
		return nil, fmt.Errorf("load dataset %q: %w", name, err)
	}
	sess.ActiveDataset = &ref

	if sess.State == StateCreate {
		sess.Sub = SubAwaitingRow
		return []chat.Reply{{Text: msgs.AddRowPrompt}}, nil
	}
	return []chat.Reply{{Text: msgs.QueryPrompt}}, nil
}

// transcribeVoice converts a voice event to text. Transcription failure is
// not fatal: the canned default query keeps the conversation moving.
func (e *Engine) transcribeVoice(ctx context.Context, sess *Session, audio []byte) (string, *chat.Reply) {
	msgs := i18n.For(sess.Language)
	fallback := "show all data"
	if sess.Language == i18n.Russian {
		fallback = "показать всю таблицу"
	}
	if e.deps.Transcriber == nil {
		return fallback, nil
	}

	callCtx, done := sess.beginCancelable(ctx)
	defer done()
	text, err := e.deps.Transcriber.Transcribe(callCtx, audio, string(sess.Language))
	if err != nil {
		observability.IncrementTranscribeFailure()
		e.deps.Logger.Warn("transcription failed, using canned query",
			"user_id", sess.UserID, "error", err)
		return fallback, nil
	}
	reply := chat.Reply{Text: fmt.Sprintf(msgs.VoiceTranscribed, text)}
	return text, &reply
}

func mainMenuKeyboard(msgs i18n.Messages) []string {
	return []string{msgs.ExploreModeLabel, msgs.CreateModeLabel, msgs.HelpLabel, msgs.SettingsLabel}
}

func languageKeyboard() []string {
	return []string{"English", "Русский"}
}

func matchesAny(value string, options ...string) bool {
	for _, option := range options {
		if value == option {
			return true
		}
	}
	return false
}
