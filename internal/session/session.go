package session

import (
	"context"
	"sync"

	"github.com/tablechat/tablechat/internal/catalog"
	"github.com/tablechat/tablechat/internal/i18n"
)

type State string

const (
	StateAwaitingLanguage State = "awaiting_language"
	StateMainMenu         State = "main_menu"
	StateExplore          State = "explore"
	StateCreate           State = "create"
)

// SubState tracks the dataset-creation sub-dialogue nested under
// StateCreate.
type SubState string

const (
	SubNone            SubState = ""
	SubAwaitingColumns SubState = "awaiting_column_definition"
	SubAwaitingRow     SubState = "awaiting_data_row"
)

// Session is the per-user conversation state. mu serializes event handling
// for the user; cancelMu guards the cancel hook for the one external call
// that may be outstanding while mu is held.
type Session struct {
	UserID        string
	State         State
	Sub           SubState
	Language      i18n.Language
	ActiveDataset *catalog.DatasetRef

	// set while the user is re-choosing a language from settings, so the
	// confirmation can say "changed" rather than "selected"
	changingLanguage bool

	mu sync.Mutex

	cancelMu       sync.Mutex
	cancelInFlight context.CancelFunc
}

// beginCancelable derives a context whose cancel func a concurrent cancel
// event can fire while this session's handler is blocked on an external
// call.
func (s *Session) beginCancelable(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithCancel(ctx)
	s.cancelMu.Lock()
	s.cancelInFlight = cancel
	s.cancelMu.Unlock()
	return callCtx, func() {
		s.cancelMu.Lock()
		s.cancelInFlight = nil
		s.cancelMu.Unlock()
		cancel()
	}
}

// fireCancel aborts the outstanding external call, if any. Called without
// holding mu so a queued cancel event can reach a blocked handler.
func (s *Session) fireCancel() {
	s.cancelMu.Lock()
	cancel := s.cancelInFlight
	s.cancelInFlight = nil
	s.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}
