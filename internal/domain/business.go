package domain

import (
	"errors"
	"strings"
)

// BusinessConfig describes the company the relay answers for. It is loaded once
// at startup and passed by value; nothing mutates it afterwards.
type BusinessConfig struct {
	CompanyName        string `json:"company_name"`
	BusinessType       string `json:"business_type"`
	CustomInstructions string `json:"custom_instructions"`
	WorkHours          string `json:"work_hours"`
	ContactPhone       string `json:"contact_phone"`
	ContactEmail       string `json:"contact_email"`
	Website            string `json:"website"`
}

// Validate checks the fields every fallback reply depends on.
func (c BusinessConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.CompanyName) == "" {
		missing = append(missing, "company_name")
	}
	if strings.TrimSpace(c.ContactPhone) == "" {
		missing = append(missing, "contact_phone")
	}
	if strings.TrimSpace(c.WorkHours) == "" {
		missing = append(missing, "work_hours")
	}
	if len(missing) > 0 {
		return errors.New("domain: business config missing " + strings.Join(missing, ", "))
	}
	return nil
}

// DefaultBusinessConfig is the built-in profile used when no external profile
// source is configured.
func DefaultBusinessConfig() BusinessConfig {
	return BusinessConfig{
		CompanyName:  "Tochique",
		BusinessType: "Cordões de alta qualidade banhados em ouro com garantia de 30 dias",
		CustomInstructions: strings.Join([]string{
			"- Sempre seja educado e prestativo",
			"- Mencione nossa garantia de 30 dias cobre os seguintes casos:",
			"  descoloração, manchas, perda de banho, defeitos de fabricação",
			"  caso seja relevante",
			"- Ofereça suporte técnico especializado",
			"- Se não souber algo, encaminhe para nossa equipe técnica",
			"- Use emojis moderadamente para deixar a conversa amigável",
			"- Mencione o agendamento pessoal caso a pessoa solicite, envie como",
			"  um link clicável mais chamativo:",
			`  <a href="https://calendar.app.google/qNYjwZzu5iewu6Cs6">`,
			"  -> clicar aqui <- </a> e nosso telefone (32) 98881-1234",
		}, "\n"),
		WorkHours:    "Segunda a Sexta, 8h às 18h",
		ContactPhone: "(32) 98881-1234",
		ContactEmail: "acessoria@tochique.com.br",
		Website:      "www.tochique.com.br",
	}
}
