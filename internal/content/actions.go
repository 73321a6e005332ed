package content

var dailyActions = [30]string{
	"Enviar uma mensagem de encorajamento para alguém",
	"Dedicar 5 minutos de oração pela manhã",
	"Ler um capítulo adicional da Bíblia hoje",
	"Praticar gratidão: escrever 3 coisas pelas quais você é grato",
	"Ajudar alguém sem esperar nada em troca",
	"Compartilhar um versículo bíblico nas redes sociais",
	"Ligar para um amigo ou familiar que você não fala há tempo",
	"Fazer um ato de bondade anônimo",
	"Perdoar alguém que te magoou",
	"Dedicar 10 minutos para meditar em silêncio",
	"Doar algo que você não usa mais",
	"Escrever uma carta de gratidão para Deus",
	"Jejuar de redes sociais por algumas horas",
	"Orar por alguém que você considera um inimigo",
	"Ler um salmo em voz alta",
	"Praticar paciência em uma situação desafiadora",
	"Compartilhar sua fé com alguém próximo",
	"Fazer uma boa ação em segredo",
	"Assistir a um culto ou pregação online",
	"Escrever suas orações em um diário",
	"Agradecer a Deus antes de cada refeição hoje",
	"Memorizar um versículo bíblico",
	"Fazer uma lista de bênçãos recebidas",
	"Ouvir música cristã durante o dia",
	"Refletir sobre como você pode servir melhor aos outros",
	"Pedir perdão a alguém que você magoou",
	"Dedicar tempo para orar por sua família",
	"Praticar humildade em suas ações hoje",
	"Compartilhar uma experiência de fé com alguém",
	"Louvar a Deus mesmo nas dificuldades do dia",
}

// ActionSuggestion picks the action of the day on a 30 day cycle.
func ActionSuggestion(day int) string {
	if day < 1 {
		day = 1
	}
	return dailyActions[(day-1)%len(dailyActions)]
}
