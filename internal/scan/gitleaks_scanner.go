package scan

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/zricethezav/gitleaks/v8/report"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
)

// GitleaksScanner roda "gitleaks detect" sobre o histórico da cópia local.
type GitleaksScanner struct {
	GitleaksPath string
}

var _ Scanner = (*GitleaksScanner)(nil)

func (s *GitleaksScanner) Name() string { return KindGitleaks }

// Run trata exit 0 como "sem vazamentos" e exit 1 como "vazamentos encontrados";
// qualquer outro código, ou um relatório ilegível, é ErrExternalTool.
func (s *GitleaksScanner) Run(ctx context.Context, repoPath string) ([]RawFinding, error) {
	start := time.Now()
	defer logger.Trace("RunGitleaks", start)

	tempFile, err := os.CreateTemp("", "gitleaks_report_*.json")
	if err != nil {
		return nil, errs.Wrap(errs.ErrFilesystem, err, "erro ao criar arquivo temporário")
	}
	reportPath := tempFile.Name()
	tempFile.Close()
	defer os.Remove(reportPath)

	res, err := run(ctx, s.GitleaksPath,
		"detect",
		"--source="+repoPath,
		"--report-format=json",
		"--report-path="+reportPath,
		"--no-banner",
		"--exit-code=1",
	)
	if err != nil {
		return nil, err
	}
	switch res.exitCode {
	case 0, 1:
	default:
		return nil, errs.New(errs.ErrExternalTool, "gitleaks detect falhou (exit %d): %s", res.exitCode, tail(res.stderr, 500))
	}

	content, err := os.ReadFile(reportPath)
	if err != nil {
		return nil, errs.Wrap(errs.ErrExternalTool, err, "erro ao ler o relatório do gitleaks")
	}
	if len(content) == 0 {
		if res.exitCode == 1 {
			return nil, errs.New(errs.ErrExternalTool, "gitleaks indicou vazamentos mas não gerou relatório")
		}
		return nil, nil
	}

	var findings []report.Finding
	if err := json.Unmarshal(content, &findings); err != nil {
		return nil, errs.Wrap(errs.ErrExternalTool, err, "erro ao parsear JSON do gitleaks")
	}

	out := make([]RawFinding, 0, len(findings))
	for _, f := range findings {
		out = append(out, RawFinding{
			File:        relativePath(repoPath, f.File),
			Line:        f.StartLine,
			RuleID:      f.RuleID,
			Description: f.Description,
			Commit:      f.Commit,
			Secret:      f.Secret,
			Match:       f.Match,
		})
	}
	return out, nil
}
