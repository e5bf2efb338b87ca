package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) Notify(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockMessenger) UploadReport(ctx context.Context, path, comment string) error {
	return m.Called(ctx, path, comment).Error(0)
}

type stubTickets []Ticket

func (s stubTickets) CreateTickets(context.Context, models.ConsolidatedReport) []Ticket { return s }

var withFindings = models.ConsolidatedReport{
	RepositoriesTotal: 1,
	Repositories:      []models.RepositoryResult{{Name: "alpha", Status: models.StatusScanned, FindingCount: 1}},
	Findings:          []models.Finding{{Repository: "alpha", File: "a.env", Line: 1, RuleID: "aws"}},
	TotalFindings:     1,
}

func TestService_DeliversWithTicketsAndAttachment(t *testing.T) {
	m := new(MockMessenger)
	m.On("Notify", mock.Anything, mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "<u|SEC-1> alpha")
	})).Return(nil)
	m.On("UploadReport", mock.Anything, "reports/r.json", "1/1 repositories scanned, 1 finding").Return(nil)

	s := &Service{Messenger: m, Tickets: stubTickets{{Repository: "alpha", Key: "SEC-1", URL: "u"}}, AttachReport: true}
	d, err := s.Deliver(context.Background(), withFindings, "reports/r.json")

	require.NoError(t, err)
	assert.True(t, d.Uploaded)
	assert.Len(t, d.Tickets, 1)
	m.AssertExpectations(t)
}

func TestService_UploadFailureIsNotFatal(t *testing.T) {
	m := new(MockMessenger)
	m.On("Notify", mock.Anything, mock.Anything).Return(nil)
	m.On("UploadReport", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("upload falhou"))

	d, err := (&Service{Messenger: m, AttachReport: true}).Deliver(context.Background(), withFindings, "r.json")

	require.NoError(t, err)
	assert.False(t, d.Uploaded)
}

func TestService_NotifyFailureIsReturned(t *testing.T) {
	m := new(MockMessenger)
	m.On("Notify", mock.Anything, mock.Anything).Return(ErrDeliveryFailed)

	_, err := (&Service{Messenger: m, AttachReport: true}).Deliver(context.Background(), withFindings, "r.json")

	assert.ErrorIs(t, err, ErrDeliveryFailed)
	m.AssertNotCalled(t, "UploadReport", mock.Anything, mock.Anything, mock.Anything)
}
