// Package scan executa o scanner externo de segredos sobre uma cópia local e
// devolve os achados brutos, ainda com o segredo em claro. Quem persiste os
// achados (internal/report) é responsável por nunca gravar esse valor.
package scan

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
)

const (
	KindGitleaks   = "gitleaks"
	KindTrufflehog = "trufflehog"
)

// RawFinding é um achado como o scanner o reporta.
type RawFinding struct {
	File        string
	Line        int
	RuleID      string
	Description string
	Commit      string
	Secret      string
	Match       string
}

// Scanner define uma interface para executar o scanner.
type Scanner interface {
	Name() string
	Run(ctx context.Context, repoPath string) ([]RawFinding, error)
}

// New resolve o binário do scanner escolhido. path vazio procura o nome padrão
// no PATH. Binário ausente é erro de configuração, detectado antes do primeiro scan.
func New(kind, path string, onlyVerified bool) (Scanner, error) {
	if path == "" {
		path = kind
	}
	bin, err := exec.LookPath(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "scanner %s não encontrado", kind)
	}
	switch kind {
	case KindGitleaks:
		return &GitleaksScanner{GitleaksPath: bin}, nil
	case KindTrufflehog:
		return &TrufflehogScanner{TrufflehogPath: bin, OnlyVerified: onlyVerified}, nil
	default:
		return nil, errs.New(errs.ErrConfiguration, "scanner desconhecido: %s", kind)
	}
}

// execResult guarda a saída de um processo que terminou, com qualquer exit code.
type execResult struct {
	stdout   []byte
	stderr   string
	exitCode int
}

// run executa o comando e só devolve erro quando ele nem chegou a terminar.
func run(ctx context.Context, name string, args ...string) (execResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := execResult{stdout: stdout.Bytes(), stderr: strings.TrimSpace(stderr.String())}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.exitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, errs.Wrap(errs.ErrExternalTool, err, "executar %s", filepath.Base(name))
	}
	return res, nil
}

// relativePath expressa file relativo à raiz da cópia local. Caminhos que já
// são relativos ao repositório passam intactos.
func relativePath(repoPath, file string) string {
	if file == "" {
		return ""
	}
	if rel, err := filepath.Rel(repoPath, file); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(file)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
