package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"

	"sales-agent/internal/domain"
	"sales-agent/internal/usecase"
)

type chatRequest struct {
	Message   string `json:"message" validate:"required_without=UserText"`
	UserText  string `json:"user_text"`
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
}

type chatResponse struct {
	Message   string           `json:"message"`
	Vehicles  []domain.Vehicle `json:"vehicles"`
	Success   bool             `json:"success"`
	SessionID string           `json:"session_id"`
	Action    string           `json:"action,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// JSONTransport serves {"message" | "user_text", "session_id"} requests.
type JSONTransport struct {
	validate *validator.Validate
}

func NewJSONTransport() *JSONTransport {
	return &JSONTransport{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (*JSONTransport) Name() string { return "json" }

func (*JSONTransport) CanHandle(req events.APIGatewayProxyRequest) bool {
	ct := strings.ToLower(header(req.Headers, "Content-Type"))
	return ct == "" || strings.HasPrefix(ct, "application/json")
}

func (t *JSONTransport) Parse(req events.APIGatewayProxyRequest) (usecase.TurnInput, error) {
	raw, err := body(req)
	if err != nil {
		return usecase.TurnInput{}, err
	}
	var cr chatRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cr); err != nil {
		return usecase.TurnInput{}, fmt.Errorf("handler: decode request: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return usecase.TurnInput{}, errors.New("handler: request has trailing data")
	}
	if err := t.validate.Struct(cr); err != nil {
		return usecase.TurnInput{}, fmt.Errorf("handler: invalid request: %w", err)
	}
	text := cr.Message
	if text == "" {
		text = cr.UserText
	}
	return usecase.TurnInput{Text: text, SessionID: strings.TrimSpace(cr.SessionID)}, nil
}

func (*JSONTransport) FormatReply(out usecase.TurnOutput) (events.APIGatewayProxyResponse, error) {
	vehicles := out.Reply.Vehicles
	if vehicles == nil {
		vehicles = []domain.Vehicle{}
	}
	return jsonResponse(http.StatusOK, chatResponse{
		Message:   out.Reply.Message,
		Vehicles:  vehicles,
		Success:   out.Reply.Success,
		SessionID: out.SessionID,
		Action:    string(out.Action),
	})
}

func (*JSONTransport) FormatError(status int, code usecase.ErrorCode, reason string) events.APIGatewayProxyResponse {
	resp, err := jsonResponse(status, errorResponse{Error: string(code), Reason: reason})
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}
	}
	return resp
}

func jsonResponse(status int, v any) (events.APIGatewayProxyResponse, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("handler: encode response: %w", err)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(raw),
	}, nil
}
