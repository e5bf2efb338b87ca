// Package aggregator varre todas as cópias locais, uma por vez, e grava o
// relatório consolidado.
package aggregator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/cloner"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/report"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/scan"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

// Publisher recebe o relatório depois de gravado (arquivo em S3/MinIO, evento na fila).
type Publisher interface {
	Name() string
	Publish(ctx context.Context, r models.ConsolidatedReport, reportPath string) error
}

type Options struct {
	RunID      string
	Workspace  string
	ReportPath string
}

type Aggregator struct {
	scanner    scan.Scanner
	opts       Options
	publishers []Publisher
}

func New(scanner scan.Scanner, opts Options, publishers ...Publisher) *Aggregator {
	return &Aggregator{scanner: scanner, opts: opts, publishers: publishers}
}

// Run varre cada subdiretório não oculto de root. root ausente, que não seja
// diretório ou sem nenhum repositório é erro de configuração, antes de qualquer
// scan. Falha de um repositório vira entrada scan_failed; falhas do último
// clone, lidas do resumo, viram clone_failed.
func (a *Aggregator) Run(ctx context.Context, root string) (models.ConsolidatedReport, error) {
	start := time.Now()
	defer logger.Trace("Aggregator.Run", start)

	repos, err := listRepositories(root)
	if err != nil {
		return models.ConsolidatedReport{}, err
	}

	summary, hasSummary, err := cloner.ReadSummary(root)
	if err != nil {
		logger.Log.Warnw("Resumo do clone ilegível; seguindo sem ele", "erro", err)
		hasSummary = false
	}

	workspace := a.opts.Workspace
	if workspace == "" && hasSummary {
		workspace = summary.Workspace
	}
	b := report.NewBuilder(a.opts.RunID, workspace, a.scanner.Name())

	failedClone := map[string]struct{}{}
	if hasSummary {
		for _, f := range summary.Failures {
			b.MarkCloneFailed(f.Repository, f.Reason)
			failedClone[f.Repository] = struct{}{}
		}
		for _, name := range summary.Skipped {
			b.MarkSkipped(name, "repositório vazio")
		}
	}

	for i, name := range repos {
		if err := ctx.Err(); err != nil {
			return models.ConsolidatedReport{}, err
		}
		// Uma cópia antiga de um repositório cujo clone falhou não representa o run atual.
		if _, failed := failedClone[name]; failed {
			logger.Log.Infow("Clone falhou neste run; cópia local ignorada", "repo", name)
			continue
		}

		logger.Log.Infof("[%d/%d] Varrendo %s", i+1, len(repos), name)
		findings, err := a.scanner.Run(ctx, filepath.Join(root, name))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.ConsolidatedReport{}, err
		}
		if err != nil {
			logger.Log.Errorw("Falha no scan do repositório", "repo", name, "erro", err)
			b.MarkScanFailed(name, err)
			continue
		}
		added := b.AddFindings(name, findings)
		logger.Log.Infow("Repositório varrido", "repo", name, "achados", added)
	}

	r := b.Build()
	if err := report.Write(a.opts.ReportPath, r); err != nil {
		return r, err
	}
	logger.Log.Infow("Relatório gravado", "path", a.opts.ReportPath, "achados", r.TotalFindings, "repositorios", r.RepositoriesTotal)

	for _, p := range a.publishers {
		if err := p.Publish(ctx, r, a.opts.ReportPath); err != nil {
			logger.Log.Warnw("Falha ao publicar relatório", "destino", p.Name(), "erro", err)
		}
	}
	return r, nil
}

// listRepositories devolve os subdiretórios não ocultos de root, em ordem.
func listRepositories(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "diretório de repositórios %s inacessível", root)
	}
	if !info.IsDir() {
		return nil, errs.New(errs.ErrConfiguration, "%s não é um diretório", root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errs.Wrap(errs.ErrFilesystem, err, "listar %s", root)
	}
	var repos []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		repos = append(repos, e.Name())
	}
	if len(repos) == 0 {
		return nil, errs.New(errs.ErrConfiguration, "nenhum repositório em %s; rode o clone antes", root)
	}
	sort.Strings(repos)
	return repos, nil
}
