// Package services publica eventos do pipeline para consumidores externos.
package services

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsSQS "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/report"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

// SQSAPI é o subconjunto do cliente SQS usado pelo producer.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *awsSQS.SendMessageInput, optFns ...func(*awsSQS.Options)) (*awsSQS.SendMessageOutput, error)
}

// ArchiveLocator informa onde o relatório de um run foi arquivado.
type ArchiveLocator interface {
	Location(runID string) (string, bool)
}

// DefaultSQSProducer publica um ReportReady por relatório gerado.
type DefaultSQSProducer struct {
	Client   SQSAPI
	QueueURL string
	Archive  ArchiveLocator
}

func NewSQSProducer(ctx context.Context, queueURL string, archive ArchiveLocator) (*DefaultSQSProducer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "carregar configurações AWS")
	}
	return &DefaultSQSProducer{
		Client:   awsSQS.NewFromConfig(awsCfg),
		QueueURL: queueURL,
		Archive:  archive,
	}, nil
}

func (p *DefaultSQSProducer) Name() string { return "sqs" }

func (p *DefaultSQSProducer) Publish(ctx context.Context, r models.ConsolidatedReport, reportPath string) error {
	event := models.ReportReady{
		RunID:               r.RunID,
		ReportPath:          reportPath,
		RepositoriesScanned: len(report.ByStatus(r, models.StatusScanned)),
		TotalFindings:       r.TotalFindings,
		GeneratedAt:         r.GeneratedAt,
	}
	if p.Archive != nil {
		if url, ok := p.Archive.Location(r.RunID); ok {
			event.ArchiveURL = url
		}
	}

	body, err := json.Marshal(event)
	if err != nil {
		return errs.Wrap(errs.ErrConfiguration, err, "serializar evento")
	}

	out, err := p.Client.SendMessage(ctx, &awsSQS.SendMessageInput{
		QueueUrl:    aws.String(p.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {DataType: aws.String("String"), StringValue: aws.String("report_ready")},
		},
	})
	if err != nil {
		return errs.Wrap(errs.ErrTransient, err, "publicar ReportReady")
	}
	logger.Log.Infow("ReportReady publicado", "run_id", r.RunID, "message_id", aws.ToString(out.MessageId))
	return nil
}
