package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"sales-agent/internal/agent"
	"sales-agent/internal/domain"
	"sales-agent/internal/usecase"
)

type stubTurns struct {
	out   usecase.TurnOutput
	err   error
	in    usecase.TurnInput
	calls int
}

func (s *stubTurns) Process(_ context.Context, in usecase.TurnInput) (usecase.TurnOutput, error) {
	s.in = in
	s.calls++
	return s.out, s.err
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/chat",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func makeWebhook(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/whatsapp",
		Headers:    map[string]string{"content-type": "application/x-www-form-urlencoded"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, turns *stubTurns) *Handler {
	t.Helper()
	h, err := NewHandler(turns)
	require.NoError(t, err)
	return h
}

var corolla = domain.Vehicle{StockID: 1001, Make: "Toyota", Model: "Corolla", Year: 2018, Km: 45000, Price: 250000}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_JSONHappyPath(t *testing.T) {
	turns := &stubTurns{out: usecase.TurnOutput{
		Reply:     domain.UserReply{Message: "¡Encontré 1 vehículo que coincide con tu búsqueda!", Vehicles: []domain.Vehicle{corolla}, Success: true},
		SessionID: "s-1",
		Action:    domain.ActionSearchCars,
	}}
	h := newTestHandler(t, turns)

	resp, err := h.Handle(context.Background(), makeEvent(`{"message":"Busco un Corolla","session_id":"s-1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.TurnInput{Text: "Busco un Corolla", SessionID: "s-1"}, turns.in)

	out := parseBody[chatResponse](t, resp.Body)
	require.True(t, out.Success)
	require.Equal(t, "s-1", out.SessionID)
	require.Equal(t, "search_cars", out.Action)
	require.Equal(t, []domain.Vehicle{corolla}, out.Vehicles)
	require.NotEmpty(t, resp.Headers[correlationHeader])
	require.Equal(t, "application/json", resp.Headers["Content-Type"])
}

func TestHandle_JSONUserTextAlias(t *testing.T) {
	turns := &stubTurns{out: usecase.TurnOutput{Reply: domain.UserReply{Message: "hola", Success: true}, SessionID: "generated"}}
	h := newTestHandler(t, turns)

	resp, err := h.Handle(context.Background(), makeEvent(`{"user_text":"hola"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.TurnInput{Text: "hola"}, turns.in)

	out := parseBody[chatResponse](t, resp.Body)
	require.Equal(t, "generated", out.SessionID)
	require.NotNil(t, out.Vehicles)
	require.Empty(t, out.Vehicles)
}

func TestHandle_JSONBase64Body(t *testing.T) {
	turns := &stubTurns{out: usecase.TurnOutput{Reply: domain.UserReply{Message: "ok", Success: true}}}
	h := newTestHandler(t, turns)

	event := makeEvent(base64.StdEncoding.EncodeToString([]byte(`{"message":"¿Qué autos tienen?"}`)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "¿Qué autos tienen?", turns.in.Text)
}

func TestHandle_InvalidBody(t *testing.T) {
	cases := map[string]string{
		"not json":      `not-json`,
		"no message":    `{"session_id":"s-1"}`,
		"unknown field": `{"message":"hola","color":"rojo"}`,
		"trailing data": `{"message":"hola"} {}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			turns := &stubTurns{}
			h := newTestHandler(t, turns)

			resp, err := h.Handle(context.Background(), makeEvent(body))
			require.NoError(t, err)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Zero(t, turns.calls)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
		})
	}
}

func TestHandle_MethodNotAllowed(t *testing.T) {
	turns := &stubTurns{}
	h := newTestHandler(t, turns)
	event := makeEvent("")
	event.HTTPMethod = http.MethodGet

	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Zero(t, turns.calls)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		reason string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_message"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput), reason: "empty_message"},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "session_store_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal), reason: "session_store_error"},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal), reason: "unexpected_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, &stubTurns{err: tc.err})

			resp, err := h.Handle(context.Background(), makeEvent(`{"message":"hola"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			require.Equal(t, tc.reason, out.Reason)
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := newTestHandler(t, &stubTurns{out: usecase.TurnOutput{Reply: domain.UserReply{Message: "ok", Success: true}}})

	event := makeEvent(`{"message":"hola"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers[correlationHeader])
}

func TestHandle_GeneratesCorrelationID(t *testing.T) {
	prev := newUUID
	newUUID = func() string { return "generated-id" }
	t.Cleanup(func() { newUUID = prev })

	h := newTestHandler(t, &stubTurns{})
	resp, err := h.Handle(context.Background(), makeEvent(`{"message":"hola"}`))
	require.NoError(t, err)
	require.Equal(t, "generated-id", resp.Headers[correlationHeader])
}

func TestHandle_TwilioWebhook(t *testing.T) {
	turns := &stubTurns{out: usecase.TurnOutput{Reply: domain.UserReply{Message: "Tenemos 3 Corolla <disponibles> & más", Success: true}}}
	h := newTestHandler(t, turns)

	resp, err := h.Handle(context.Background(), makeWebhook("Body=Hola%2C+busco+un+Corolla&From=whatsapp%3A%2B5215512345678"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.TurnInput{Text: "Hola, busco un Corolla", SessionID: "+5215512345678"}, turns.in)
	require.Equal(t, "text/xml", resp.Headers["Content-Type"])
	require.Equal(t,
		`<?xml version="1.0" encoding="UTF-8"?>`+"\n"+`<Response><Message>Tenemos 3 Corolla &lt;disponibles&gt; &amp; más</Message></Response>`,
		resp.Body)
}

func TestHandle_TwilioBase64(t *testing.T) {
	turns := &stubTurns{out: usecase.TurnOutput{Reply: domain.UserReply{Message: "ok", Success: true}}}
	h := newTestHandler(t, turns)

	event := makeWebhook(base64.StdEncoding.EncodeToString([]byte("Body=hola&From=whatsapp%3A%2B52155")))
	event.IsBase64Encoded = true
	_, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, usecase.TurnInput{Text: "hola", SessionID: "+52155"}, turns.in)
}

func TestHandle_TwilioErrorsStillOK(t *testing.T) {
	cases := map[string]struct {
		body string
		err  error
	}{
		"empty body":    {body: "From=whatsapp%3A%2B52155"},
		"turn rejected": {body: "Body=hola&From=x", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "message_too_long"}},
		"turn failed":   {body: "Body=hola&From=x", err: errors.New("boom")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newTestHandler(t, &stubTurns{err: tc.err})
			resp, err := h.Handle(context.Background(), makeWebhook(tc.body))
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Contains(t, resp.Body, agent.GenericErrorMessage)
		})
	}
}

func TestHandle_CustomTransports(t *testing.T) {
	turns := &stubTurns{out: usecase.TurnOutput{Reply: domain.UserReply{Message: "ok", Success: true}}}
	h, err := NewHandler(turns, WithTransports(NewJSONTransport()))
	require.NoError(t, err)

	// Without the Twilio transport a form post falls back to JSON and fails to decode.
	resp, err := h.Handle(context.Background(), makeWebhook("Body=hola"))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
