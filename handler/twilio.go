package handler

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"sales-agent/internal/agent"
	"sales-agent/internal/usecase"
)

const whatsappPrefix = "whatsapp:"

type twiml struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// TwilioTransport serves the Twilio WhatsApp webhook. Errors are still
// answered with 200 and a TwiML message so Twilio does not retry the
// delivery.
type TwilioTransport struct{}

func NewTwilioTransport() *TwilioTransport {
	return &TwilioTransport{}
}

func (*TwilioTransport) Name() string { return "twilio" }

func (*TwilioTransport) CanHandle(req events.APIGatewayProxyRequest) bool {
	ct := strings.ToLower(header(req.Headers, "Content-Type"))
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded")
}

func (*TwilioTransport) Parse(req events.APIGatewayProxyRequest) (usecase.TurnInput, error) {
	raw, err := body(req)
	if err != nil {
		return usecase.TurnInput{}, err
	}
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return usecase.TurnInput{}, fmt.Errorf("handler: parse form: %w", err)
	}
	text := strings.TrimSpace(form.Get("Body"))
	if text == "" {
		return usecase.TurnInput{}, errors.New("handler: webhook has no Body")
	}
	from := strings.TrimSpace(form.Get("From"))
	from = strings.TrimPrefix(from, whatsappPrefix)
	return usecase.TurnInput{Text: text, SessionID: from}, nil
}

func (*TwilioTransport) FormatReply(out usecase.TurnOutput) (events.APIGatewayProxyResponse, error) {
	return twimlResponse(out.Reply.Message)
}

func (*TwilioTransport) FormatError(_ int, _ usecase.ErrorCode, _ string) events.APIGatewayProxyResponse {
	resp, err := twimlResponse(agent.GenericErrorMessage)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}
	}
	return resp
}

func twimlResponse(message string) (events.APIGatewayProxyResponse, error) {
	raw, err := xml.Marshal(twiml{Message: message})
	if err != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("handler: encode twiml: %w", err)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "text/xml"},
		Body:       xml.Header + string(raw),
	}, nil
}
