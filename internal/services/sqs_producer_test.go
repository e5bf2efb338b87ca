package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsSQS "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

type MockSQSClient struct {
	mock.Mock
}

func (m *MockSQSClient) SendMessage(ctx context.Context, params *awsSQS.SendMessageInput, optFns ...func(*awsSQS.Options)) (*awsSQS.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*awsSQS.SendMessageOutput)
	return out, args.Error(1)
}

type staticArchive map[string]string

func (a staticArchive) Location(runID string) (string, bool) {
	url, ok := a[runID]
	return url, ok
}

func sampleReport() models.ConsolidatedReport {
	return models.ConsolidatedReport{
		RunID:       "run-7",
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Repositories: []models.RepositoryResult{
			{Name: "alpha", Status: models.StatusScanned},
			{Name: "beta", Status: models.StatusCloneFailed},
			{Name: "gamma", Status: models.StatusScanned, FindingCount: 2},
		},
		TotalFindings: 2,
	}
}

func TestDefaultSQSProducer_Publish(t *testing.T) {
	client := new(MockSQSClient)
	var sent models.ReportReady
	client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *awsSQS.SendMessageInput) bool {
		if aws.ToString(in.QueueUrl) != "https://sqs.test/queue" {
			return false
		}
		return json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &sent) == nil
	})).Return(&awsSQS.SendMessageOutput{MessageId: aws.String("m-1")}, nil)

	p := &DefaultSQSProducer{
		Client:   client,
		QueueURL: "https://sqs.test/queue",
		Archive:  staticArchive{"run-7": "http://minio/reports/run-7/r.json"},
	}
	require.NoError(t, p.Publish(context.Background(), sampleReport(), "reports/r.json"))

	assert.Equal(t, "run-7", sent.RunID)
	assert.Equal(t, "reports/r.json", sent.ReportPath)
	assert.Equal(t, "http://minio/reports/run-7/r.json", sent.ArchiveURL)
	assert.Equal(t, 2, sent.RepositoriesScanned)
	assert.Equal(t, 2, sent.TotalFindings)
	client.AssertExpectations(t)
}

func TestDefaultSQSProducer_WithoutArchive(t *testing.T) {
	client := new(MockSQSClient)
	client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *awsSQS.SendMessageInput) bool {
		var ev models.ReportReady
		return json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &ev) == nil && ev.ArchiveURL == ""
	})).Return(&awsSQS.SendMessageOutput{MessageId: aws.String("m-2")}, nil)

	p := &DefaultSQSProducer{Client: client, QueueURL: "q", Archive: staticArchive{}}
	assert.NoError(t, p.Publish(context.Background(), sampleReport(), "r.json"))
	assert.Equal(t, "sqs", p.Name())
}

func TestDefaultSQSProducer_SendFailure(t *testing.T) {
	client := new(MockSQSClient)
	client.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	p := &DefaultSQSProducer{Client: client, QueueURL: "q"}
	err := p.Publish(context.Background(), sampleReport(), "r.json")
	assert.ErrorIs(t, err, errs.ErrTransient)
}
