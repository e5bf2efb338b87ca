package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// SIGINT/SIGTERM cancelam o ctx; clone e scan param entre repositórios.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	code := 0
	switch command := os.Args[1]; command {
	case "clone":
		code = runClone(ctx, os.Args[2:])
	case "scan":
		code = runScan(ctx, os.Args[2:])
	case "notify":
		code = runNotify(ctx, os.Args[2:])
	case "run":
		code = runPipeline(ctx, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Comando desconhecido: %s\n\n", command)
		printUsage()
		code = 1
	}

	stop()
	logger.Sync()
	os.Exit(code)
}

func printUsage() {
	fmt.Println(`bbscan - varredura de segredos nos repositórios de um workspace Bitbucket

Uso:
  bbscan <comando> [opções]

Comandos:
  clone    Enumera o workspace e clona/atualiza cada repositório em REPOS_DIR
  scan     Varre as cópias locais e grava o relatório consolidado em REPORT_PATH
  notify   Publica o resumo do relatório no Slack
  run      Executa clone, scan e notify em sequência

Use "bbscan <comando> --help" para ver as opções de cada comando.`)
}
