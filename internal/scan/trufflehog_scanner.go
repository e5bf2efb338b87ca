package scan

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
)

// trufflehog sai com 183 quando --fail está ativo e há resultados.
const trufflehogFoundExit = 183

// TrufflehogScanner roda "trufflehog filesystem" sobre a árvore da cópia local.
type TrufflehogScanner struct {
	TrufflehogPath string
	OnlyVerified   bool
}

var _ Scanner = (*TrufflehogScanner)(nil)

type trufflehogResult struct {
	SourceMetadata struct {
		Data struct {
			Filesystem *struct {
				File string `json:"file"`
				Line int    `json:"line"`
			} `json:"Filesystem"`
			Git *struct {
				Commit string `json:"commit"`
				File   string `json:"file"`
				Line   int    `json:"line"`
			} `json:"Git"`
		} `json:"Data"`
	} `json:"SourceMetadata"`
	DetectorName string `json:"DetectorName"`
	Verified     bool   `json:"Verified"`
	Raw          string `json:"Raw"`
	Redacted     string `json:"Redacted"`
}

func (s *TrufflehogScanner) Name() string { return KindTrufflehog }

func (s *TrufflehogScanner) Run(ctx context.Context, repoPath string) ([]RawFinding, error) {
	start := time.Now()
	defer logger.Trace("RunTrufflehog", start)

	args := []string{"filesystem", repoPath, "--json", "--no-update"}
	if s.OnlyVerified {
		args = append(args, "--only-verified")
	}
	res, err := run(ctx, s.TrufflehogPath, args...)
	if err != nil {
		return nil, err
	}
	if res.exitCode != 0 && res.exitCode != trufflehogFoundExit {
		return nil, errs.New(errs.ErrExternalTool, "trufflehog falhou (exit %d): %s", res.exitCode, tail(res.stderr, 500))
	}
	return parseTrufflehog(repoPath, res.stdout)
}

// parseTrufflehog decodifica a saída JSON lines, um resultado por linha.
func parseTrufflehog(repoPath string, out []byte) ([]RawFinding, error) {
	var findings []RawFinding
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var r trufflehogResult
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, errs.Wrap(errs.ErrExternalTool, err, "linha %d da saída do trufflehog ilegível", n)
		}
		f := RawFinding{
			RuleID: r.DetectorName,
			Secret: r.Raw,
			Match:  r.Redacted,
		}
		if r.Verified {
			f.Description = r.DetectorName + " (verificado)"
		} else {
			f.Description = r.DetectorName
		}
		switch {
		case r.SourceMetadata.Data.Filesystem != nil:
			f.File = relativePath(repoPath, r.SourceMetadata.Data.Filesystem.File)
			f.Line = r.SourceMetadata.Data.Filesystem.Line
		case r.SourceMetadata.Data.Git != nil:
			f.File = relativePath(repoPath, r.SourceMetadata.Data.Git.File)
			f.Line = r.SourceMetadata.Data.Git.Line
			f.Commit = r.SourceMetadata.Data.Git.Commit
		}
		findings = append(findings, f)
	}
	if err := sc.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrExternalTool, err, "ler saída do trufflehog")
	}
	return findings, nil
}
