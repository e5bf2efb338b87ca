package notify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

func result(name string, status models.RepositoryStatus, n int) models.RepositoryResult {
	return models.RepositoryResult{Name: name, Status: status, FindingCount: n}
}

func TestHeadline(t *testing.T) {
	tests := []struct {
		name   string
		report models.ConsolidatedReport
		want   string
	}{
		{
			name: "uma falha de clone",
			report: models.ConsolidatedReport{
				RepositoriesTotal: 3,
				Repositories: []models.RepositoryResult{
					result("A", models.StatusScanned, 0),
					result("B", models.StatusCloneFailed, 0),
					result("C", models.StatusScanned, 0),
				},
			},
			want: "2/3 repositories scanned, 0 findings, 1 clone failure (B)",
		},
		{
			name: "falhas de clone e de scan",
			report: models.ConsolidatedReport{
				RepositoriesTotal: 4,
				TotalFindings:     1,
				Repositories: []models.RepositoryResult{
					result("A", models.StatusScanned, 1),
					result("D", models.StatusCloneFailed, 0),
					result("B", models.StatusCloneFailed, 0),
					result("C", models.StatusScanFailed, 0),
				},
			},
			want: "1/4 repositories scanned, 1 finding, 2 clone failures (B, D), 1 scan failure (C)",
		},
		{
			name: "tudo limpo",
			report: models.ConsolidatedReport{
				RepositoriesTotal: 1,
				Repositories:      []models.RepositoryResult{result("A", models.StatusScanned, 0)},
			},
			want: "1/1 repositories scanned, 0 findings",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Headline(tt.report))
		})
	}
}

func TestFormatMessage_NoFindings(t *testing.T) {
	r := models.ConsolidatedReport{
		Workspace:         "acme",
		RepositoriesTotal: 1,
		Repositories:      []models.RepositoryResult{result("A", models.StatusScanned, 0)},
	}

	msg := FormatMessage(r, 10)

	assert.Contains(t, msg, "*Secret scan report for workspace acme*")
	assert.Contains(t, msg, "1/1 repositories scanned, 0 findings")
	assert.Contains(t, msg, "No secrets found")
}

func TestFormatMessage_TopFindings(t *testing.T) {
	r := models.ConsolidatedReport{RepositoriesTotal: 2}
	for i := 0; i < 12; i++ {
		repo := "alpha"
		if i%3 == 0 {
			repo = "beta"
		}
		r.Findings = append(r.Findings, models.Finding{
			Repository: repo, File: fmt.Sprintf("f%02d.env", i), Line: i + 1, RuleID: "generic-api-key", Commit: "0123456789abcdef",
		})
	}
	r.TotalFindings = len(r.Findings)

	msg := FormatMessage(r, 10)

	assert.Contains(t, msg, "• alpha: 8")
	assert.Contains(t, msg, "• beta: 4")
	assert.Contains(t, msg, "*Findings by rule*\n• generic-api-key: 12")
	assert.Contains(t, msg, "*Top 10 findings*")
	assert.Contains(t, msg, "(commit 01234567)")
	assert.Contains(t, msg, "…and 2 more")
	assert.NotContains(t, msg, "f11.env")
}

func TestAppendTickets(t *testing.T) {
	msg := AppendTickets("head", []Ticket{{Repository: "alpha", Key: "SEC-1", URL: "https://jira.test/browse/SEC-1"}})
	assert.Equal(t, "head\n\n*Tickets*\n• <https://jira.test/browse/SEC-1|SEC-1> alpha", msg)
	assert.Equal(t, "head", AppendTickets("head", nil))
}
