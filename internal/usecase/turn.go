package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"sales-agent/internal/agent"
	"sales-agent/internal/domain"
)

const (
	defaultMaxMessageLen = 10000
	maxRenderedVehicles  = 5
	maxLoggedRunes       = 100

	unexpectedErrorMessage = "Lo siento, ocurrió un error inesperado. Por favor, intenta más tarde."
)

// Backend is the reasoning backend: it chooses an action for a message and
// writes prose around the facts the router produced.
type Backend interface {
	Decide(ctx context.Context, text string, c *domain.ConversationContext) (domain.Decision, error)
	Render(ctx context.Context, text string, action domain.Action, base string, vehicles []domain.Vehicle) (string, error)
	FinancingProse(ctx context.Context, text string, price float64) (string, error)
	InfoProse(ctx context.Context, text, info, query string) (string, error)
}

// Router executes a decision.
type Router interface {
	Route(ctx context.Context, d domain.Decision) (agent.Result, error)
}

// SessionStore holds conversation contexts between turns.
type SessionStore interface {
	Get(ctx context.Context, id string) (*domain.ConversationContext, error)
	GetOrCreate(ctx context.Context, id string) (*domain.ConversationContext, error)
	Save(ctx context.Context, c *domain.ConversationContext) error
	Delete(ctx context.Context, id string) (bool, error)
}

// Enqueuer accepts a finished turn for background archiving.
type Enqueuer interface {
	Enqueue(snapshot *domain.ConversationContext, rec domain.TurnRecord)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// TurnService runs one conversational turn per call. It is safe for
// concurrent use.
type TurnService struct {
	store     SessionStore
	router    Router
	backend   Backend
	persister Enqueuer
	presenter *agent.Presenter
	logger    *slog.Logger
	now       func() time.Time

	humanize      bool
	maxMessageLen int
}

type TurnInput struct {
	Text      string
	SessionID string
}

type TurnOutput struct {
	Reply     domain.UserReply
	SessionID string
	Action    domain.Action
}

type Option func(*TurnService)

// WithHumanize toggles backend rewriting of replies other than financing
// and company info, which are always written by the backend.
func WithHumanize(on bool) Option {
	return func(s *TurnService) { s.humanize = on }
}

func WithMaxMessageLength(n int) Option {
	return func(s *TurnService) {
		if n > 0 {
			s.maxMessageLen = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *TurnService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *TurnService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewTurnService(store SessionStore, router Router, backend Backend, persister Enqueuer, opts ...Option) (*TurnService, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if router == nil {
		return nil, errors.New("usecase: router must not be nil")
	}
	if backend == nil {
		return nil, errors.New("usecase: backend must not be nil")
	}
	if persister == nil {
		return nil, errors.New("usecase: persister must not be nil")
	}
	s := &TurnService{
		store:         store,
		router:        router,
		backend:       backend,
		persister:     persister,
		logger:        slog.Default(),
		now:           time.Now,
		humanize:      true,
		maxMessageLen: defaultMaxMessageLen,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.presenter = agent.NewPresenter(s.logger)
	return s, nil
}

// Process runs a turn. The only errors it returns are *Error values for
// input it refuses; everything that goes wrong later is logged and turned
// into an unsuccessful reply.
func (s *TurnService) Process(ctx context.Context, in TurnInput) (TurnOutput, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return TurnOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(text) > s.maxMessageLen {
		return TurnOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = newUUID()
	}
	log := s.logger.With("session_id", sessionID)
	log.Info("processing message", "text", truncate(text, maxLoggedRunes))

	c, err := s.store.GetOrCreate(ctx, sessionID)
	if err != nil {
		log.Error("load context failed", "err", err)
		return failed(sessionID), nil
	}
	c.AddUserMessage(text)

	decision, err := s.backend.Decide(ctx, text, c)
	if err != nil {
		args := []any{"err", err}
		if status, ok := upstreamStatusCode(err); ok {
			args = append(args, "upstream_status", status)
		}
		log.Error("decision failed", args...)
		return failed(sessionID), nil
	}
	decision = agent.ApplyGuards(text, decision, c)

	result, err := s.router.Route(ctx, decision)
	if err != nil {
		log.Error("route failed", "action", decision.Action, "err", err)
		return failed(sessionID), nil
	}
	reply := s.presenter.Render(result)
	reply = s.enrich(ctx, log, text, result, reply)

	s.commit(c, result, reply)
	if err := s.store.Save(ctx, c); err != nil {
		log.Error("save context failed", "err", err)
	}
	s.persister.Enqueue(c, domain.TurnRecord{
		SessionID: sessionID,
		At:        s.now().UTC(),
		Question:  text,
		Answer:    reply.Message,
		Action:    string(decision.Action),
		Success:   reply.Success,
		Vehicles:  len(reply.Vehicles),
	})

	log.Info("reply generated",
		"action", decision.Action,
		"success", reply.Success,
		"vehicles", len(reply.Vehicles),
	)
	return TurnOutput{Reply: reply, SessionID: sessionID, Action: decision.Action}, nil
}

// enrich asks the backend for prose. Financing and info replies are always
// rewritten since the router only supplies facts; other replies only when
// humanize is on. Any backend failure keeps the plain reply.
func (s *TurnService) enrich(ctx context.Context, log *slog.Logger, text string, res agent.Result, reply domain.UserReply) domain.UserReply {
	if !reply.Success {
		return reply
	}

	var (
		prose string
		err   error
	)
	switch r := res.(type) {
	case agent.FinancingResult:
		prose, err = s.backend.FinancingProse(ctx, text, r.Price)
	case agent.InfoResult:
		prose, err = s.backend.InfoProse(ctx, text, r.Content, r.Query)
	default:
		if !s.humanize {
			return reply
		}
		vehicles := reply.Vehicles
		if len(vehicles) > maxRenderedVehicles {
			vehicles = vehicles[:maxRenderedVehicles]
		}
		prose, err = s.backend.Render(ctx, text, res.Decision().Action, reply.Message, vehicles)
	}
	if err != nil {
		log.Warn("enrich failed, keeping plain reply", "kind", res.Kind(), "err", err)
		return reply
	}
	if strings.TrimSpace(prose) == "" {
		return reply
	}
	reply.Message = strings.TrimSpace(prose)
	return reply
}

// commit records the turn's outcome on c. Process saves c to the store
// before replying so the next turn on the session starts from it.
func (s *TurnService) commit(c *domain.ConversationContext, res agent.Result, reply domain.UserReply) {
	if vehicles := agent.Vehicles(res); len(vehicles) > 0 {
		summaries := make([]domain.VehicleSummary, len(vehicles))
		for i, v := range vehicles {
			summaries[i] = v.Summary()
		}
		c.SetSearchResults(summaries)
	}
	switch r := res.(type) {
	case agent.CarDetailsResult:
		c.SelectVehicleByStockID(r.Vehicle.StockID)
	case agent.FinancingResult:
		c.SelectVehicleByStockID(r.StockID)
	}
	c.LastAction = string(res.Decision().Action)
	c.AddAssistantMessage(reply.Message)
}

// SelectVehicle marks one of the session's last results as selected. It
// reports false when the session or the vehicle is not found.
func (s *TurnService) SelectVehicle(ctx context.Context, sessionID string, stockID int) (bool, error) {
	c, err := s.context(ctx, sessionID)
	if err != nil || c == nil {
		return false, err
	}
	if !c.SelectVehicleByStockID(stockID) {
		return false, nil
	}
	if err := s.store.Save(ctx, c); err != nil {
		return false, newError(ErrorInternal, "save_context_error", err)
	}
	return true, nil
}

// SelectedVehicle returns the session's selected vehicle, or nil.
func (s *TurnService) SelectedVehicle(ctx context.Context, sessionID string) (*domain.VehicleSummary, error) {
	c, err := s.context(ctx, sessionID)
	if err != nil || c == nil {
		return nil, err
	}
	return c.SelectedVehicle, nil
}

// ClearSession forgets a session and reports whether it existed.
func (s *TurnService) ClearSession(ctx context.Context, sessionID string) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, newError(ErrorInvalidInput, "empty_session_id", nil)
	}
	ok, err := s.store.Delete(ctx, sessionID)
	if err != nil {
		return false, newError(ErrorInternal, "delete_context_error", err)
	}
	return ok, nil
}

// Context returns a copy of the session's live context, or nil.
func (s *TurnService) Context(ctx context.Context, sessionID string) (*domain.ConversationContext, error) {
	return s.context(ctx, sessionID)
}

func (s *TurnService) context(ctx context.Context, sessionID string) (*domain.ConversationContext, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, newError(ErrorInvalidInput, "empty_session_id", nil)
	}
	c, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, newError(ErrorInternal, "load_context_error", err)
	}
	return c, nil
}

func failed(sessionID string) TurnOutput {
	return TurnOutput{
		Reply:     domain.UserReply{Message: unexpectedErrorMessage, Vehicles: []domain.Vehicle{}, Success: false},
		SessionID: sessionID,
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}
