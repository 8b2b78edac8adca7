// Package subscribe implements the newsletter subscription endpoint: it
// validates a POST carrying {"email": "..."} and appends the address to the
// registration ledger.
package subscribe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"s3-csv-email-writer/internal/ledger"
	"s3-csv-email-writer/internal/notify"
)

const (
	msgSubscribed       = "Successfully subscribed to newsletter"
	errMethodNotAllowed = "Method not allowed"
	errInvalidBody      = "Invalid request body"
)

// Recorder appends entries to the ledger. *ledger.Ledger implements it.
type Recorder interface {
	Append(ctx context.Context, e ledger.Entry) error
}

// Publisher announces a recorded subscription.
type Publisher interface {
	Publish(ctx context.Context, sub notify.Subscription) error
}

// Request is the trigger-agnostic view of an incoming call.
type Request struct {
	ID              string
	Method          string
	Body            string
	IsBase64Encoded bool
}

// Response is always a JSON document.
type Response struct {
	StatusCode int
	Body       string
}

type Handler struct {
	ledger    Recorder
	publisher Publisher
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Handler)

// WithPublisher enables SubscriptionRecorded events.
func WithPublisher(p Publisher) Option {
	return func(h *Handler) { h.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

func New(r Recorder, opts ...Option) *Handler {
	h := &Handler{
		ledger: r,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type subscribeRequest struct {
	Email string `json:"email"`
}

func (h *Handler) Handle(ctx context.Context, req Request) Response {
	log := h.logger.With("request_id", req.ID)

	if req.Method != http.MethodPost {
		return errorResponse(http.StatusMethodNotAllowed, errMethodNotAllowed)
	}

	body := req.Body
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			log.Info("rejected request body", "reason", "invalid base64")
			return errorResponse(http.StatusBadRequest, errInvalidBody)
		}
		body = string(decoded)
	}

	var payload subscribeRequest
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		log.Info("rejected request body", "reason", err.Error())
		return errorResponse(http.StatusBadRequest, errInvalidBody)
	}
	email := strings.TrimSpace(payload.Email)
	if email == "" {
		log.Info("rejected request body", "reason", "email is required")
		return errorResponse(http.StatusBadRequest, errInvalidBody)
	}

	entry := ledger.Entry{SubscribedAt: h.now(), Email: email}
	if err := h.ledger.Append(ctx, entry); err != nil {
		log.Error("failed to append to ledger", "error", err)
		return errorResponse(http.StatusInternalServerError, err.Error())
	}

	log.Info("subscription recorded", "email_domain", EmailDomain(email))

	if h.publisher != nil {
		sub := notify.Subscription{ID: uuid.NewString(), Email: email, SubscribedAt: entry.SubscribedAt}
		if err := h.publisher.Publish(ctx, sub); err != nil {
			log.Warn("failed to publish subscription event", "subscription_id", sub.ID, "error", err)
		}
	}

	return messageResponse(http.StatusOK, msgSubscribed)
}

// HandleAPIGateway adapts an API Gateway proxy event.
func (h *Handler) HandleAPIGateway(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	id := request.RequestContext.RequestID
	if id == "" {
		id = uuid.NewString()
	}

	resp := h.Handle(ctx, Request{
		ID:              id,
		Method:          request.HTTPMethod,
		Body:            request.Body,
		IsBase64Encoded: request.IsBase64Encoded,
	})

	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       resp.Body,
	}, nil
}

// EmailDomain returns the part after the last "@", or "" when there is none.
func EmailDomain(email string) string {
	i := strings.LastIndexByte(email, '@')
	if i < 0 {
		return ""
	}
	return email[i+1:]
}

func errorResponse(status int, msg string) Response {
	return jsonResponse(status, map[string]string{"error": msg})
}

func messageResponse(status int, msg string) Response {
	return jsonResponse(status, map[string]string{"message": msg})
}

func jsonResponse(status int, v map[string]string) Response {
	body, err := json.Marshal(v)
	if err != nil {
		return Response{StatusCode: http.StatusInternalServerError, Body: `{"error":"Error generating response"}`}
	}
	return Response{StatusCode: status, Body: string(body)}
}
