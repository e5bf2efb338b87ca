package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/lockwhz/bitbucket-secrets-scan/config"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
)

func runPipeline(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	envFile := fs.String("env-file", ".env", "Arquivo .env usado como base da configuração")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Uso: bbscan run [opções]

Executa clone, scan e notify em sequência com o mesmo run_id.

Opções:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return failEarly("run", err)
	}

	a, err := newApp(ctx, *envFile, "run", nil, config.SectionClone, config.SectionScan, config.SectionNotify)
	if err != nil {
		return failEarly("run", err)
	}
	return finish(os.Stdout, a.pipeline(ctx))
}

// pipeline encadeia os três passos. Um erro não fatal do clone (ex.: página
// da listagem com 5xx) não impede o scan do que já foi clonado.
func (a *app) pipeline(ctx context.Context) runSummary {
	s := runSummary{Command: "run"}

	summary, err := a.clone(ctx)
	s.Repositories = summary.Total
	if err != nil {
		if errs.IsFatal(err) || isCanceled(err) {
			s.Failures = len(summary.Failures)
			s.Err = err
			return s
		}
		logger.Log.Warnw("Clone incompleto; seguindo com os repositórios disponíveis", "erro", err)
	}

	r, err := a.scan(ctx)
	if err != nil {
		s.Failures = len(summary.Failures)
		s.Err = err
		return s
	}
	s.Repositories = r.RepositoriesTotal
	s.Failures = scanFailures(r)
	s.Report = a.cfg.Paths.ReportPath

	if _, err := a.notify(ctx); err != nil {
		s.Err = err
		return s
	}
	s.Notified = true
	return s
}
