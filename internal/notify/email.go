package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"minuto/pkg/logger"
)

// emailAPI is the SES call the sender makes.
type emailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailSender sends account emails through Amazon SES. Without a sender
// address it logs and skips every message.
type EmailSender struct {
	client     emailAPI
	from       string
	appBaseURL string
	logger     *logger.Logger
}

func NewEmailSender(ctx context.Context, region, from, appBaseURL string, l *logger.Logger) (*EmailSender, error) {
	l = l.Named("email")
	if from == "" {
		l.Infow("Email sender disabled: no sender address configured")
		return &EmailSender{logger: l}, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	l.Infow("Email sender enabled", "from", from, "region", region)
	return &EmailSender{
		client:     sesv2.NewFromConfig(cfg),
		from:       from,
		appBaseURL: appBaseURL,
		logger:     l,
	}, nil
}

func (s *EmailSender) Enabled() bool {
	return s.client != nil
}

func (s *EmailSender) SendPaymentFailed(ctx context.Context, to string) error {
	subject := "Não conseguimos renovar sua assinatura"
	text := fmt.Sprintf(`Olá,

Tivemos um problema ao processar o pagamento da sua assinatura Pro do Minuto com Deus.
Atualize sua forma de pagamento para continuar com acesso ilimitado ao chat teológico:
%s/planos

Se você já resolveu, pode ignorar este email.
`, s.appBaseURL)
	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<p>Olá,</p>
	<p>Tivemos um problema ao processar o pagamento da sua assinatura Pro do Minuto com Deus.</p>
	<p><a href="%s/planos">Atualize sua forma de pagamento</a> para continuar com acesso ilimitado ao chat teológico.</p>
	<p>Se você já resolveu, pode ignorar este email.</p>
</body>
</html>
`, s.appBaseURL)

	return s.send(ctx, to, subject, html, text)
}

func (s *EmailSender) send(ctx context.Context, to, subject, html, text string) error {
	if !s.Enabled() {
		s.logger.Infow("Skipping email send (sender disabled)", "subject", subject)
		return nil
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(html), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(text), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	s.logger.Infow("Email sent", "subject", subject)
	return nil
}
