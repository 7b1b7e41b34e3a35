package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"chat-relay/internal/domain"
	"chat-relay/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// UseCase is the chat relay as seen by the transport.
type UseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	Business() domain.BusinessConfig
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Company   string `json:"company"`
	Timestamp string `json:"timestamp"`
}

// configResponse exposes the public part of the business profile.
type configResponse struct {
	CompanyName  string `json:"company_name"`
	BusinessType string `json:"business_type"`
	WorkHours    string `json:"work_hours"`
	ContactPhone string `json:"contact_phone"`
}

// Handler serves the relay's API over API Gateway proxy events. The local
// server reuses it through the same event shape.
type Handler struct {
	uc     UseCase
	logger *slog.Logger
	now    func() time.Time
}

func NewHandler(uc UseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc, logger: slog.Default(), now: time.Now}, nil
}

type route struct {
	method string
	serve  func(h *Handler, ctx context.Context, event events.APIGatewayProxyRequest) (int, any)
}

var routes = map[string]route{
	"/api/chat":   {method: http.MethodPost, serve: (*Handler).chat},
	"/api/health": {method: http.MethodGet, serve: (*Handler).health},
	"/api/config": {method: http.MethodGet, serve: (*Handler).config},
}

func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	path := normalizePath(event.Path)
	logger := h.logger.With("correlation_id", correlationID, "method", event.HTTPMethod, "path", path)

	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorContext(ctx, "panic recovered", "panic", fmt.Sprintf("%v", rec), "stack", string(debug.Stack()))
			resp = jsonResponse(http.StatusInternalServerError, chatResponse{Response: usecase.InternalErrorReply}, correlationID)
			err = nil
		}
	}()

	r, ok := routes[path]
	if !ok {
		return jsonResponse(http.StatusNotFound, errorResponse{Error: "not found"}, correlationID), nil
	}
	if !strings.EqualFold(event.HTTPMethod, r.method) {
		resp = jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"}, correlationID)
		resp.Headers["Allow"] = r.method
		return resp, nil
	}

	status, body := r.serve(h, ctx, event)
	logger.InfoContext(ctx, "request completed", "status", status)
	return jsonResponse(status, body, correlationID), nil
}

func (h *Handler) chat(ctx context.Context, event events.APIGatewayProxyRequest) (int, any) {
	raw, err := requestBody(event)
	if err != nil {
		return http.StatusBadRequest, errorResponse{Error: "JSON inválido"}
	}
	var req chatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return http.StatusBadRequest, errorResponse{Error: "JSON inválido"}
	}

	out, err := h.uc.Chat(ctx, usecase.ChatInput{Message: req.Message})
	if err != nil {
		return mapError(err)
	}
	return http.StatusOK, chatResponse{Response: out.Reply}
}

func (h *Handler) health(_ context.Context, _ events.APIGatewayProxyRequest) (int, any) {
	return http.StatusOK, healthResponse{
		Status:    "ok",
		Company:   h.uc.Business().CompanyName,
		Timestamp: h.now().Format(time.RFC3339),
	}
}

func (h *Handler) config(_ context.Context, _ events.APIGatewayProxyRequest) (int, any) {
	b := h.uc.Business()
	return http.StatusOK, configResponse{
		CompanyName:  b.CompanyName,
		BusinessType: b.BusinessType,
		WorkHours:    b.WorkHours,
		ContactPhone: b.ContactPhone,
	}
}

// mapError turns a relay failure into a status and body. Only Reply texts
// reach the caller.
func mapError(err error) (int, any) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, chatResponse{Response: usecase.InternalErrorReply}
	}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, errorResponse{Error: ucErr.Reply}
	case usecase.ErrorUpstreamTimeout, usecase.ErrorUpstreamTransport:
		return http.StatusInternalServerError, chatResponse{Response: ucErr.Reply}
	default:
		return http.StatusInternalServerError, chatResponse{Response: usecase.InternalErrorReply}
	}
}

func requestBody(event events.APIGatewayProxyRequest) ([]byte, error) {
	if !event.IsBase64Encoded {
		return []byte(event.Body), nil
	}
	return base64.StdEncoding.DecodeString(event.Body)
}

func jsonResponse(status int, body any, correlationID string) events.APIGatewayProxyResponse {
	buf, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		buf = []byte(`{"response":"` + usecase.InternalErrorReply + `"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(buf),
	}
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func normalizePath(p string) string {
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}
