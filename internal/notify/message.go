// Package notify transforma o relatório consolidado numa mensagem de chat e a
// entrega no Slack, opcionalmente abrindo tickets no JIRA.
package notify

import (
	"fmt"
	"strings"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/report"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

const DefaultTopFindings = 10

// Headline resume o run numa linha, por exemplo
// "2/3 repositories scanned, 0 findings, 1 clone failure (B)".
func Headline(r models.ConsolidatedReport) string {
	scanned := len(report.ByStatus(r, models.StatusScanned))
	total := r.RepositoriesTotal
	if total < len(r.Repositories) {
		total = len(r.Repositories)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d repositories scanned, %s", scanned, total, plural(r.TotalFindings, "finding", "findings"))
	if failed := report.ByStatus(r, models.StatusCloneFailed); len(failed) > 0 {
		fmt.Fprintf(&b, ", %s (%s)", plural(len(failed), "clone failure", "clone failures"), strings.Join(failed, ", "))
	}
	if failed := report.ByStatus(r, models.StatusScanFailed); len(failed) > 0 {
		fmt.Fprintf(&b, ", %s (%s)", plural(len(failed), "scan failure", "scan failures"), strings.Join(failed, ", "))
	}
	return b.String()
}

// FormatMessage monta o texto completo: cabeçalho, contagens por repositório e
// por regra e os top achados, ou a confirmação de que nada foi encontrado.
func FormatMessage(r models.ConsolidatedReport, top int) string {
	if top <= 0 {
		top = DefaultTopFindings
	}

	var b strings.Builder
	title := "Secret scan report"
	if r.Workspace != "" {
		title += " for workspace " + r.Workspace
	}
	fmt.Fprintf(&b, "*%s*\n%s\n", title, Headline(r))

	if r.TotalFindings == 0 || len(r.Findings) == 0 {
		b.WriteString(":white_check_mark: No secrets found in the scanned repositories.")
		return b.String()
	}

	b.WriteString("\n*Findings by repository*\n")
	for _, c := range report.CountByRepository(r.Findings) {
		fmt.Fprintf(&b, "• %s: %d\n", c.Name, c.Count)
	}
	b.WriteString("\n*Findings by rule*\n")
	for _, c := range report.CountByRule(r.Findings) {
		fmt.Fprintf(&b, "• %s: %d\n", c.Name, c.Count)
	}

	shown := r.Findings
	if len(shown) > top {
		shown = shown[:top]
	}
	fmt.Fprintf(&b, "\n*Top %d findings*\n", len(shown))
	for _, f := range shown {
		fmt.Fprintf(&b, "• `%s/%s:%d` %s", f.Repository, f.File, f.Line, f.RuleID)
		if f.Commit != "" {
			fmt.Fprintf(&b, " (commit %s)", shortCommit(f.Commit))
		}
		b.WriteString("\n")
	}
	if rest := len(r.Findings) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "…and %d more in the attached report.\n", rest)
	}
	return strings.TrimRight(b.String(), "\n")
}

// AppendTickets acrescenta os links dos tickets abertos à mensagem.
func AppendTickets(text string, tickets []Ticket) string {
	if len(tickets) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n*Tickets*\n")
	for _, t := range tickets {
		fmt.Fprintf(&b, "• <%s|%s> %s\n", t.URL, t.Key, t.Repository)
	}
	return strings.TrimRight(b.String(), "\n")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

func shortCommit(c string) string {
	if len(c) > 8 {
		return c[:8]
	}
	return c
}
