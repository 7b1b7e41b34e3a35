package domain

// Specialty is the canned knowledge attached to a well-known business type.
type Specialty struct {
	Description  string
	CommonTopics []string
}

var specialties = map[string]Specialty{
	"ecommerce": {
		Description:  "vendas online, pedidos, entregas e produtos",
		CommonTopics: []string{"pedido", "entrega", "produto", "pagamento", "devolução", "troca", "desconto", "frete"},
	},
	"tech": {
		Description:  "tecnologia, software, suporte técnico e implementações",
		CommonTopics: []string{"instalação", "licença", "erro", "suporte", "atualização", "configuração", "bug", "integração"},
	},
	"finance": {
		Description:  "serviços financeiros, conta, investimentos e transações",
		CommonTopics: []string{"conta", "saldo", "cartão", "empréstimo", "investimento", "transferência", "taxa", "financiamento"},
	},
	"health": {
		Description:  "saúde, consultas, exames e agendamentos médicos",
		CommonTopics: []string{"consulta", "exame", "agendamento", "médico", "resultado", "convênio", "especialista", "receita"},
	},
	"education": {
		Description:  "educação, cursos, matrículas e ensino",
		CommonTopics: []string{"curso", "matrícula", "aula", "certificado", "professor", "prova", "diploma", "mensalidade"},
	},
	"retail": {
		Description:  "varejo, produtos, vendas e atendimento em loja",
		CommonTopics: []string{"produto", "preço", "promoção", "estoque", "loja", "horário", "desconto", "garantia"},
	},
	"services": {
		Description:  "prestação de serviços, agendamentos e orçamentos",
		CommonTopics: []string{"serviço", "agendamento", "orçamento", "técnico", "visita", "contrato", "garantia", "prazo"},
	},
	"restaurant": {
		Description:  "restaurante, alimentação, pedidos e reservas",
		CommonTopics: []string{"cardápio", "pedido", "delivery", "reserva", "ingredientes", "promoção", "horário", "mesa"},
	},
}

// LookupSpecialty returns the knowledge entry for a business-type key. Free-text
// business types have no entry.
func LookupSpecialty(businessType string) (Specialty, bool) {
	s, ok := specialties[businessType]
	if !ok {
		return Specialty{}, false
	}
	s.CommonTopics = append([]string(nil), s.CommonTopics...)
	return s, true
}
