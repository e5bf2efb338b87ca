package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/lockwhz/bitbucket-secrets-scan/config"
)

func runNotify(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("notify", flag.ExitOnError)
	var (
		envFile    = fs.String("env-file", ".env", "Arquivo .env usado como base da configuração")
		reportPath = fs.String("report", "", "Relatório a publicar (vazio usa REPORT_PATH)")
		attach     = fs.Bool("attach", false, "Anexa o relatório à mensagem (além de SLACK_ATTACH_REPORT)")
	)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Uso: bbscan notify [opções]

Lê o relatório consolidado e publica o resumo no canal do Slack configurado.
Sai com código 1 se a mensagem não puder ser entregue.

Opções:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return failEarly("notify", err)
	}

	a, err := newApp(ctx, *envFile, "notify", func(cfg *config.Config) {
		if *reportPath != "" {
			cfg.Paths.ReportPath = *reportPath
		}
		if *attach {
			cfg.Slack.AttachReport = true
		}
	}, config.SectionNotify)
	if err != nil {
		return failEarly("notify", err)
	}

	_, err = a.notify(ctx)
	s := runSummary{Command: "notify", Report: a.cfg.Paths.ReportPath, Notified: err == nil, Err: err}
	return finish(os.Stdout, s)
}
