package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/lockwhz/bitbucket-secrets-scan/config"
)

func runScan(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	var (
		envFile    = fs.String("env-file", ".env", "Arquivo .env usado como base da configuração")
		root       = fs.String("root", "", "Diretório com as cópias locais (vazio usa REPOS_DIR)")
		reportPath = fs.String("report", "", "Arquivo do relatório (vazio usa REPORT_PATH)")
		scanner    = fs.String("scanner", "", "gitleaks ou trufflehog (vazio usa SCANNER)")
	)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Uso: bbscan scan [opções]

Varre, um por vez, cada subdiretório de REPOS_DIR com o scanner escolhido e
grava o relatório consolidado em REPORT_PATH.

Opções:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return failEarly("scan", err)
	}

	a, err := newApp(ctx, *envFile, "scan", func(cfg *config.Config) {
		if *root != "" {
			cfg.Paths.ReposDir = *root
		}
		if *reportPath != "" {
			cfg.Paths.ReportPath = *reportPath
		}
		if *scanner != "" {
			cfg.Scanner.Kind = *scanner
		}
	}, config.SectionScan)
	if err != nil {
		return failEarly("scan", err)
	}

	r, err := a.scan(ctx)
	s := runSummary{
		Command:      "scan",
		Repositories: r.RepositoriesTotal,
		Failures:     scanFailures(r),
		Err:          err,
	}
	if err == nil {
		s.Report = a.cfg.Paths.ReportPath
	}
	return finish(os.Stdout, s)
}
