package aggregator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/cloner"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/report"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/scan"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

type fakeScanner struct {
	findings map[string][]scan.RawFinding
	errors   map[string]error
	scanned  []string
}

func (f *fakeScanner) Name() string { return "fake" }

func (f *fakeScanner) Run(_ context.Context, repoPath string) ([]scan.RawFinding, error) {
	name := filepath.Base(repoPath)
	f.scanned = append(f.scanned, name)
	if err := f.errors[name]; err != nil {
		return nil, err
	}
	return f.findings[name], nil
}

type fakePublisher struct {
	err   error
	calls int
}

func (p *fakePublisher) Name() string { return "fake" }

func (p *fakePublisher) Publish(context.Context, models.ConsolidatedReport, string) error {
	p.calls++
	return p.err
}

func makeRepos(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, n), 0o755))
	}
	return root
}

func TestAggregator_FailsFastOnBadRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "arquivo")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	onlyHidden := makeRepos(t, ".git")

	for name, root := range map[string]string{
		"ausente":        filepath.Join(t.TempDir(), "nao-existe"),
		"não diretório":  file,
		"vazio":          t.TempDir(),
		"apenas ocultos": onlyHidden,
	} {
		t.Run(name, func(t *testing.T) {
			s := &fakeScanner{}
			reportPath := filepath.Join(t.TempDir(), "report.json")
			_, err := New(s, Options{ReportPath: reportPath}).Run(context.Background(), root)
			assert.ErrorIs(t, err, errs.ErrConfiguration)
			assert.Empty(t, s.scanned)
			assert.NoFileExists(t, reportPath)
		})
	}
}

func TestAggregator_ScanFailureIsIsolated(t *testing.T) {
	root := makeRepos(t, "alpha", "beta", "gamma")
	s := &fakeScanner{
		findings: map[string][]scan.RawFinding{
			"alpha": {{File: "a.env", Line: 1, RuleID: "generic", Secret: "s1"}},
			"gamma": {{File: "g.env", Line: 3, RuleID: "generic", Secret: "s2"}},
		},
		errors: map[string]error{"beta": errs.New(errs.ErrExternalTool, "exit 2")},
	}
	reportPath := filepath.Join(t.TempDir(), "report.json")

	r, err := New(s, Options{RunID: "run-1", ReportPath: reportPath}).Run(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, s.scanned)
	assert.Equal(t, 2, r.TotalFindings)
	assert.Equal(t, []string{"beta"}, report.ByStatus(r, models.StatusScanFailed))
	stored, err := report.Read(reportPath)
	require.NoError(t, err)
	assert.Equal(t, r.TotalFindings, stored.TotalFindings)
}

func TestAggregator_MergesCloneSummary(t *testing.T) {
	root := makeRepos(t, "A", "B", "C")
	require.NoError(t, cloner.WriteSummary(root, models.CloneSummary{
		Workspace: "acme",
		Total:     4,
		Cloned:    []string{"A", "C"},
		Skipped:   []string{"D"},
		Failures:  []models.RepositoryFailure{{Repository: "B", Reason: "timeout"}},
	}))
	s := &fakeScanner{}

	r, err := New(s, Options{ReportPath: filepath.Join(t.TempDir(), "r.json")}).Run(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, s.scanned)
	assert.Equal(t, "acme", r.Workspace)
	assert.Equal(t, 4, r.RepositoriesTotal)
	assert.Equal(t, []string{"B"}, report.ByStatus(r, models.StatusCloneFailed))
	assert.Equal(t, []string{"D"}, report.ByStatus(r, models.StatusSkipped))
}

func TestAggregator_PublisherFailureIsNotFatal(t *testing.T) {
	root := makeRepos(t, "alpha")
	failing := &fakePublisher{err: errors.New("bucket indisponível")}
	ok := &fakePublisher{}

	_, err := New(&fakeScanner{}, Options{ReportPath: filepath.Join(t.TempDir(), "r.json")}, failing, ok).
		Run(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
}

func TestAggregator_Canceled(t *testing.T) {
	root := makeRepos(t, "alpha")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(&fakeScanner{}, Options{ReportPath: filepath.Join(t.TempDir(), "r.json")}).Run(ctx, root)

	assert.ErrorIs(t, err, context.Canceled)
}
