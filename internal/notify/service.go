package notify

import (
	"context"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

// Messenger é o canal de chat onde o resumo é entregue.
type Messenger interface {
	Notify(ctx context.Context, text string) error
	UploadReport(ctx context.Context, path, comment string) error
}

// TicketCreator abre tickets para os repositórios com achados.
type TicketCreator interface {
	CreateTickets(ctx context.Context, r models.ConsolidatedReport) []Ticket
}

type Service struct {
	Messenger    Messenger
	Tickets      TicketCreator
	AttachReport bool
	TopFindings  int
}

// Delivery descreve o que chegou ao canal.
type Delivery struct {
	Text     string
	Tickets  []Ticket
	Uploaded bool
}

// Deliver publica o resumo do relatório. Só a mensagem principal é
// obrigatória: falhas de tickets e do anexo ficam no log.
func (s *Service) Deliver(ctx context.Context, r models.ConsolidatedReport, reportPath string) (Delivery, error) {
	defer logger.TraceAuto()()

	d := Delivery{Text: FormatMessage(r, s.TopFindings)}

	if s.Tickets != nil && r.TotalFindings > 0 {
		d.Tickets = s.Tickets.CreateTickets(ctx, r)
		d.Text = AppendTickets(d.Text, d.Tickets)
	}

	if err := s.Messenger.Notify(ctx, d.Text); err != nil {
		return d, err
	}

	if s.AttachReport && reportPath != "" {
		if err := s.Messenger.UploadReport(ctx, reportPath, Headline(r)); err != nil {
			logger.Log.Warnw("Falha ao anexar relatório no Slack", "erro", err)
		} else {
			d.Uploaded = true
		}
	}
	return d, nil
}
