package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"sales-agent/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

var newUUID = uuid.NewString

// TurnProcessor runs one conversational turn.
type TurnProcessor interface {
	Process(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
}

// Transport adapts one wire format to a turn. The first transport whose
// CanHandle accepts a request serves it.
type Transport interface {
	Name() string
	CanHandle(req events.APIGatewayProxyRequest) bool
	Parse(req events.APIGatewayProxyRequest) (usecase.TurnInput, error)
	FormatReply(out usecase.TurnOutput) (events.APIGatewayProxyResponse, error)
	FormatError(status int, code usecase.ErrorCode, reason string) events.APIGatewayProxyResponse
}

type Handler struct {
	turns      TurnProcessor
	transports []Transport
	logger     *slog.Logger
}

type Option func(*Handler)

// WithTransports replaces the default transports. Order matters.
func WithTransports(ts ...Transport) Option {
	return func(h *Handler) {
		if len(ts) > 0 {
			h.transports = ts
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler serves the Twilio WhatsApp webhook and the JSON API. JSON is
// the fallback for anything that is not a form-encoded webhook.
func NewHandler(turns TurnProcessor, opts ...Option) (*Handler, error) {
	if turns == nil {
		return nil, errors.New("handler: turn processor must not be nil")
	}
	h := &Handler{
		turns:      turns,
		transports: []Transport{NewTwilioTransport(), NewJSONTransport()},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = newUUID()
	}
	t := h.transportFor(req)
	log := h.logger.With("correlation_id", correlationID, "transport", t.Name())

	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodPost {
		return withCorrelation(t.FormatError(http.StatusMethodNotAllowed, usecase.ErrorInvalidInput, "method_not_allowed"), correlationID), nil
	}

	in, err := t.Parse(req)
	if err != nil {
		log.Warn("request rejected", "err", err)
		return withCorrelation(t.FormatError(http.StatusBadRequest, usecase.ErrorInvalidInput, "invalid_body"), correlationID), nil
	}

	out, err := h.turns.Process(ctx, in)
	if err != nil {
		status, code, reason := mapError(err)
		if status >= http.StatusInternalServerError {
			log.Error("turn failed", "err", err)
		} else {
			log.Warn("turn rejected", "reason", reason)
		}
		return withCorrelation(t.FormatError(status, code, reason), correlationID), nil
	}

	resp, err := t.FormatReply(out)
	if err != nil {
		log.Error("format reply failed", "err", err)
		return withCorrelation(t.FormatError(http.StatusInternalServerError, usecase.ErrorInternal, "format_error"), correlationID), nil
	}
	return withCorrelation(resp, correlationID), nil
}

func (h *Handler) transportFor(req events.APIGatewayProxyRequest) Transport {
	for _, t := range h.transports {
		if t.CanHandle(req) {
			return t
		}
	}
	return h.transports[len(h.transports)-1]
}

func mapError(err error) (int, usecase.ErrorCode, string) {
	var ue *usecase.Error
	if errors.As(err, &ue) {
		switch ue.Code {
		case usecase.ErrorInvalidInput:
			return http.StatusBadRequest, ue.Code, ue.Reason
		default:
			return http.StatusInternalServerError, ue.Code, ue.Reason
		}
	}
	return http.StatusInternalServerError, usecase.ErrorInternal, "unexpected_error"
}

func withCorrelation(resp events.APIGatewayProxyResponse, id string) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers[correlationHeader] = id
	return resp
}

// header looks a header up case-insensitively.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func body(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	raw, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, errors.New("handler: body is not valid base64")
	}
	return raw, nil
}
