package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"chat-relay/internal/domain"
	"chat-relay/internal/metrics"
)

const (
	defaultUpstreamTimeout = 30 * time.Second
	logReplyRunes          = 100
)

// Fixed customer-facing replies.
const (
	EmptyMessageReply  = "Mensagem vazia"
	TimeoutReply       = "Desculpe, o tempo de resposta excedeu o limite. Tente novamente."
	InternalErrorReply = "Erro interno do servidor. Tente novamente mais tarde."
)

// LLMClient generates text for a fully rendered prompt. Failures are
// classified by wrapping domain.ErrUpstreamTimeout, domain.ErrUpstreamTransport
// or domain.ErrMalformedResponse; anything else is unexpected.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type ChatService struct {
	llm      LLMClient
	business domain.BusinessConfig
	timeout  time.Duration
	logger   *slog.Logger
}

type ChatInput struct {
	Message string
}

// ChatOutput is the reply for a handled message. Degraded marks a canned
// fallback returned because the upstream answer had no usable text.
type ChatOutput struct {
	Reply    string
	Degraded bool
}

func NewChatService(llm LLMClient, business domain.BusinessConfig, timeout time.Duration, logger *slog.Logger) (*ChatService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if err := business.Validate(); err != nil {
		return nil, fmt.Errorf("usecase: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		llm:      llm,
		business: business,
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// Business returns the profile the service answers for.
func (s *ChatService) Business() domain.BusinessConfig {
	return s.business
}

func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		metrics.ChatRequests.WithLabelValues(metrics.OutcomeRejected).Inc()
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", EmptyMessageReply, nil)
	}

	prompt := buildUserTurn(BuildPrompt(s.business, message), message)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.llm.Generate(callCtx, prompt)
	if err == nil {
		s.logExchange(ctx, message, text, metrics.OutcomeSucceeded)
		return ChatOutput{Reply: text}, nil
	}

	switch {
	case errors.Is(err, domain.ErrMalformedResponse):
		reply := s.degradedReply()
		s.logger.WarnContext(ctx, "upstream reply missing text, using fallback", "err", err)
		s.logExchange(ctx, message, reply, metrics.OutcomeDegraded)
		return ChatOutput{Reply: reply, Degraded: true}, nil

	case errors.Is(err, domain.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		s.logger.WarnContext(ctx, "upstream timed out", "timeout", s.timeout, "err", err)
		s.logExchange(ctx, message, TimeoutReply, metrics.OutcomeTimedOut)
		return ChatOutput{}, newError(ErrorUpstreamTimeout, "upstream_timeout", TimeoutReply, err)

	case errors.Is(err, domain.ErrUpstreamTransport), hasUpstreamStatus(err):
		reply := s.transportReply()
		s.logger.WarnContext(ctx, "upstream request failed", "err", err)
		s.logExchange(ctx, message, reply, metrics.OutcomeTransportFailed)
		return ChatOutput{}, newError(ErrorUpstreamTransport, "upstream_transport", reply, err)

	default:
		s.logger.ErrorContext(ctx, "unexpected chat failure", "err", err)
		s.logExchange(ctx, message, InternalErrorReply, metrics.OutcomeUnexpectedFailed)
		return ChatOutput{}, newError(ErrorInternal, "unexpected", InternalErrorReply, err)
	}
}

func (s *ChatService) degradedReply() string {
	var b strings.Builder
	b.WriteString("Desculpe, não consegui processar sua solicitação no momento. ")
	b.WriteString("Para atendimento imediato, entre em contato pelo telefone ")
	b.WriteString(s.business.ContactPhone)
	if email := strings.TrimSpace(s.business.ContactEmail); email != "" {
		b.WriteString(" ou pelo email ")
		b.WriteString(email)
	}
	b.WriteString(". Nosso horário de atendimento é ")
	b.WriteString(s.business.WorkHours)
	b.WriteString(".")
	return b.String()
}

func (s *ChatService) transportReply() string {
	return "Estou com dificuldades técnicas no momento. " +
		"Por favor, entre em contato pelo telefone " + s.business.ContactPhone +
		" para atendimento imediato."
}

func (s *ChatService) logExchange(ctx context.Context, message, reply, outcome string) {
	metrics.ChatRequests.WithLabelValues(outcome).Inc()
	s.logger.InfoContext(ctx, "chat exchange",
		"message", message,
		"reply", truncate(reply, logReplyRunes),
		"outcome", outcome,
	)
}

func hasUpstreamStatus(err error) bool {
	var statusErr httpStatusCoder
	return errors.As(err, &statusErr)
}

// truncate cuts s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
