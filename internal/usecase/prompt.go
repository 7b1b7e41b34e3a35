package usecase

import (
	"strings"

	"chat-relay/internal/domain"
)

const (
	defaultSpecialty = "atendimento geral"
	notAvailable     = "N/A"
)

// BuildPrompt renders the business instructions sent ahead of every customer
// question. The output depends only on cfg: message is accepted for callers
// that may want per-message templates but is not rendered.
func BuildPrompt(cfg domain.BusinessConfig, message string) string {
	focus, specialty, topics := specialtyFor(cfg.BusinessType)

	return strings.Join([]string{
		"Você é o assistente virtual da empresa \"" + cfg.CompanyName + "\"",
		"especializada em " + focus + ".",
		"",
		"INFORMAÇÕES DA EMPRESA:",
		"- Nome: " + cfg.CompanyName,
		"- Especialidade: " + specialty,
		"- Telefone: " + cfg.ContactPhone,
		"- Email: " + orDefault(cfg.ContactEmail, notAvailable),
		"- Site: " + orDefault(cfg.Website, notAvailable),
		"- Horário: " + cfg.WorkHours,
		"",
		"INSTRUÇÕES ESPECÍFICAS:",
		trimBlankLines(cfg.CustomInstructions),
		"",
		"TÓPICOS COMUNS QUE VOCÊ DOMINA:",
		strings.Join(topics, ", "),
		"",
		"DIRETRIZES DE COMPORTAMENTO:",
		behaviorGuidelines(),
		"",
		"Se o cliente perguntar sobre algo que você não tem informação específica",
		"da empresa, seja transparente e ofereça os canais de contato:",
		cfg.ContactPhone + " ou " + orDefault(cfg.ContactEmail, "nosso email") + ".",
	}, "\n")
}

// buildUserTurn appends the customer's question to the rendered template.
func buildUserTurn(prompt, message string) string {
	return prompt + "\n\nPergunta do cliente: " + message
}

func behaviorGuidelines() string {
	return strings.Join([]string{
		"- Seja sempre educado, prestativo e profissional",
		"- Responda em português brasileiro",
		"- Use o nome da empresa quando apropriado",
		"- Se não souber algo específico, seja honesto e ofereça alternativas",
		"- Forneça informações de contato quando necessário",
		"- Mantenha respostas concisas mas completas",
		"- Use emojis moderadamente para deixar a conversa amigável",
		"- Sempre tente resolver o problema do cliente da melhor forma",
	}, "\n")
}

// specialtyFor resolves a business-type key to its canned description and
// topics. A free-text type only shows up in the identity line; the specialty
// line and topics fall back to general service.
func specialtyFor(businessType string) (focus, specialty string, topics []string) {
	if s, ok := domain.LookupSpecialty(businessType); ok {
		return s.Description, s.Description, s.CommonTopics
	}
	return orDefault(strings.TrimSpace(businessType), defaultSpecialty), defaultSpecialty, []string{defaultSpecialty}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// trimBlankLines drops whitespace-only lines around s, keeping the
// indentation of the lines in between.
func trimBlankLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
