package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/lockwhz/bitbucket-secrets-scan/config"
)

func runClone(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("clone", flag.ExitOnError)
	var (
		envFile     = fs.String("env-file", ".env", "Arquivo .env usado como base da configuração")
		concurrency = fs.Int("concurrency", 0, "Clones simultâneos (0 usa CLONE_CONCURRENCY)")
		reposDir    = fs.String("repos-dir", "", "Diretório das cópias locais (vazio usa REPOS_DIR)")
	)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Uso: bbscan clone [opções]

Enumera todos os repositórios do workspace e clona ou atualiza cada um em
REPOS_DIR. Falhas de um repositório ficam no resumo .clone-summary.json e
não interrompem os demais.

Opções:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return failEarly("clone", err)
	}

	a, err := newApp(ctx, *envFile, "clone", func(cfg *config.Config) {
		if *concurrency > 0 {
			cfg.Clone.Concurrency = *concurrency
		}
		if *reposDir != "" {
			cfg.Paths.ReposDir = *reposDir
		}
	}, config.SectionClone)
	if err != nil {
		return failEarly("clone", err)
	}

	summary, err := a.clone(ctx)
	return finish(os.Stdout, runSummary{
		Command:      "clone",
		Repositories: summary.Total,
		Failures:     len(summary.Failures),
		Err:          err,
	})
}
