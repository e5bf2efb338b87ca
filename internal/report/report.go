// Package report consolida os achados de todos os repositórios num único
// ConsolidatedReport e cuida da sua persistência.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/fsutil"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/scan"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

const maxMatchLen = 80

type findingKey struct {
	repository string
	file       string
	line       int
	digest     string
}

// Builder acumula resultados por repositório. Achados repetidos (mesmo
// repositório, arquivo, linha e segredo) entram uma única vez.
type Builder struct {
	runID     string
	workspace string
	scanner   string
	now       func() time.Time

	repos    map[string]models.RepositoryResult
	findings []models.Finding
	seen     map[findingKey]struct{}
}

func NewBuilder(runID, workspace, scanner string) *Builder {
	return &Builder{
		runID:     runID,
		workspace: workspace,
		scanner:   scanner,
		now:       time.Now,
		repos:     map[string]models.RepositoryResult{},
		seen:      map[findingKey]struct{}{},
	}
}

// AddFindings registra o repositório como varrido e devolve quantos achados novos entraram.
func (b *Builder) AddFindings(repository string, raws []scan.RawFinding) int {
	added := 0
	for _, raw := range raws {
		f := NewFinding(repository, raw)
		key := findingKey{repository: f.Repository, file: f.File, line: f.Line, digest: f.SecretSHA256}
		if _, dup := b.seen[key]; dup {
			continue
		}
		b.seen[key] = struct{}{}
		b.findings = append(b.findings, f)
		added++
	}
	res := b.repos[repository]
	res.Name = repository
	res.Status = models.StatusScanned
	res.FindingCount += added
	res.Error = ""
	b.repos[repository] = res
	return added
}

func (b *Builder) MarkScanFailed(repository string, err error) {
	b.repos[repository] = models.RepositoryResult{
		Name:   repository,
		Status: models.StatusScanFailed,
		Error:  err.Error(),
	}
}

func (b *Builder) MarkCloneFailed(repository, reason string) {
	b.repos[repository] = models.RepositoryResult{
		Name:   repository,
		Status: models.StatusCloneFailed,
		Error:  reason,
	}
}

func (b *Builder) MarkSkipped(repository, reason string) {
	b.repos[repository] = models.RepositoryResult{
		Name:   repository,
		Status: models.StatusSkipped,
		Error:  reason,
	}
}

// Build devolve o relatório com repositórios por nome e achados ordenados por
// repositório, arquivo e linha.
func (b *Builder) Build() models.ConsolidatedReport {
	repos := make([]models.RepositoryResult, 0, len(b.repos))
	for _, r := range b.repos {
		repos = append(repos, r)
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].Name < repos[j].Name })

	findings := make([]models.Finding, len(b.findings))
	copy(findings, b.findings)
	SortFindings(findings)

	return models.ConsolidatedReport{
		RunID:             b.runID,
		GeneratedAt:       b.now().UTC(),
		Workspace:         b.workspace,
		Scanner:           b.scanner,
		RepositoriesTotal: len(repos),
		Repositories:      repos,
		Findings:          findings,
		TotalFindings:     len(findings),
	}
}

// NewFinding converte o achado bruto para o modelo persistido, trocando o
// segredo pelo seu digest e mascarando-o no trecho.
func NewFinding(repository string, raw scan.RawFinding) models.Finding {
	sum := sha256.Sum256([]byte(raw.Secret))
	return models.Finding{
		Repository:   repository,
		File:         raw.File,
		Line:         raw.Line,
		RuleID:       raw.RuleID,
		Description:  raw.Description,
		Commit:       raw.Commit,
		Match:        RedactMatch(raw.Match, raw.Secret),
		SecretSHA256: hex.EncodeToString(sum[:]),
	}
}

// RedactMatch mascara todas as ocorrências do segredo no trecho e o trunca.
func RedactMatch(match, secret string) string {
	if secret != "" {
		match = strings.ReplaceAll(match, secret, mask(secret))
	}
	if utf8.RuneCountInString(match) > maxMatchLen {
		runes := []rune(match)
		match = string(runes[:maxMatchLen]) + "…"
	}
	return match
}

// mask mantém no máximo 4 caracteres iniciais, e só para segredos longos.
func mask(secret string) string {
	runes := []rune(secret)
	keep := len(runes) / 4
	if keep > 4 {
		keep = 4
	}
	return string(runes[:keep]) + "*****"
}

func SortFindings(findings []models.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Repository != b.Repository {
			return a.Repository < b.Repository
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.RuleID < b.RuleID
	})
}

// Write grava o relatório atomicamente: um leitor vê o relatório anterior ou
// o novo, nunca um arquivo truncado.
func Write(path string, r models.ConsolidatedReport) error {
	return fsutil.WriteJSONAtomic(path, r)
}

// Read carrega o relatório. Relatório ausente é erro de configuração do notify.
func Read(path string) (models.ConsolidatedReport, error) {
	var r models.ConsolidatedReport
	err := fsutil.ReadJSON(path, &r)
	switch {
	case err == nil:
		return r, nil
	case errors.Is(err, os.ErrNotExist):
		return r, errs.Wrap(errs.ErrConfiguration, err, "relatório %s não encontrado", path)
	default:
		return r, errs.Wrap(errs.ErrConfiguration, err, "relatório %s ilegível", path)
	}
}
