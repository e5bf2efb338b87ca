package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lockwhz/bitbucket-secrets-scan/config"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/aggregator"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/bitbucket"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/cloner"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/db"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/git"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/notify"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/report"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/scan"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/secrets"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/services"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/storage"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/vault"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

// app junta a configuração validada e as dependências de um run.
type app struct {
	cfg   *config.Config
	runID string

	// Nil usa as implementações reais; os testes injetam fakes.
	httpClient *http.Client
	gitClient  git.GitClient
	scanner    scan.Scanner
}

// newApp carrega a configuração, busca credenciais nos cofres habilitados e
// valida as seções pedidas antes de qualquer chamada ao Bitbucket ou ao Slack.
func newApp(ctx context.Context, envFile, command string, override func(*config.Config), sections ...config.Section) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "carregar %s", envFile)
	}
	if override != nil {
		override(cfg)
	}
	// Primeiro só os blocos opcionais: Vault e Secrets Manager precisam estar
	// completos para fornecer as credenciais que as seções exigem.
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := loadCredentials(ctx, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(sections...); err != nil {
		return nil, err
	}

	err = logger.Init(logger.Options{Level: cfg.Log.Level, LogPath: cfg.Log.Path, Command: command})
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "inicializar logger")
	}

	a := &app{cfg: cfg, runID: uuid.NewString()}
	logger.GetLogger().Info("Configuração carregada", zap.String("run_id", a.runID), zap.Object("config", *cfg))
	return a, nil
}

func loadCredentials(ctx context.Context, cfg *config.Config) error {
	if cfg.SecretsManager.Enabled {
		sm, err := secrets.NewAWSSecretFetcher(ctx)
		if err != nil {
			return err
		}
		values, err := secrets.Credentials(ctx, sm, cfg.SecretsManager.SecretID)
		if err != nil {
			return err
		}
		cfg.ApplyCredentials(values)
	}

	var vc vault.VaultClient = vault.NoOpVaultClient{}
	if cfg.Vault.Enabled {
		kv, err := vault.NewKVClient(cfg.Vault.Addr, cfg.Vault.Token.Reveal(), cfg.Vault.Mount, cfg.Vault.SecretPath)
		if err != nil {
			return err
		}
		vc = kv
	}
	values, err := vc.GetCredentials(ctx)
	if err != nil {
		return err
	}
	cfg.ApplyCredentials(values)
	return nil
}

func (a *app) openStateStore(ctx context.Context) (db.StateStore, error) {
	if a.cfg.Postgres.Host != "" {
		return db.OpenRDSStore(ctx, a.cfg.PostgresConnString())
	}
	return db.OpenFileStore(filepath.Join(a.cfg.Paths.ReposDir, db.StateFileName))
}

func (a *app) clone(ctx context.Context) (models.CloneSummary, error) {
	cfg := a.cfg
	ws := models.Workspace{Name: cfg.Bitbucket.Workspace, Username: cfg.Bitbucket.Username}
	client := bitbucket.NewClient(a.httpClient, cfg.Bitbucket.APIURL, ws, cfg.Bitbucket.AppPassword.Reveal(), cfg.Bitbucket.RateLimit)

	store, err := a.openStateStore(ctx)
	if err != nil {
		return models.CloneSummary{}, err
	}
	defer store.Close()

	gitClient := a.gitClient
	if gitClient == nil {
		gitClient = &git.GoGitClient{
			Username: cfg.Bitbucket.Username,
			Password: cfg.Bitbucket.AppPassword.Reveal(),
		}
	}

	c := cloner.New(bitbucket.NewEnumerator(client), client, gitClient, store, cloner.Options{
		RunID:       a.runID,
		Workspace:   cfg.Bitbucket.Workspace,
		ReposDir:    cfg.Paths.ReposDir,
		Concurrency: cfg.Clone.Concurrency,
	})
	return c.Run(ctx)
}

func (a *app) scan(ctx context.Context) (models.ConsolidatedReport, error) {
	scanner := a.scanner
	if scanner == nil {
		var err error
		scanner, err = scan.New(a.cfg.Scanner.Kind, a.cfg.Scanner.Path, a.cfg.Scanner.OnlyVerified)
		if err != nil {
			return models.ConsolidatedReport{}, err
		}
	}

	publishers, err := a.publishers(ctx)
	if err != nil {
		return models.ConsolidatedReport{}, err
	}

	agg := aggregator.New(scanner, aggregator.Options{
		RunID:      a.runID,
		Workspace:  a.cfg.Bitbucket.Workspace,
		ReportPath: a.cfg.Paths.ReportPath,
	}, publishers...)
	return agg.Run(ctx, a.cfg.Paths.ReposDir)
}

// publishers monta o arquivo no MinIO e o evento no SQS, quando configurados.
// O arquivo vem antes para o evento poder citar a URL.
func (a *app) publishers(ctx context.Context) ([]aggregator.Publisher, error) {
	var pubs []aggregator.Publisher
	var locator services.ArchiveLocator

	if m := a.cfg.Minio; m.Endpoint != "" {
		archive, err := storage.New(storage.Options{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey.Reveal(),
			Bucket:    m.Bucket,
			Region:    m.Region,
			UseSSL:    m.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, archive)
		locator = archive
	}

	if a.cfg.SQS.Enabled {
		producer, err := services.NewSQSProducer(ctx, a.cfg.SQS.QueueURL, locator)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, producer)
	}
	return pubs, nil
}

func (a *app) notify(ctx context.Context) (notify.Delivery, error) {
	cfg := a.cfg
	r, err := report.Read(cfg.Paths.ReportPath)
	if err != nil {
		return notify.Delivery{}, err
	}

	svc := &notify.Service{
		Messenger: notify.NewSlackNotifier(cfg.Slack.BotToken.Reveal(), cfg.Slack.Channel, cfg.Slack.APIURL, notify.RetryOptions{
			MaxRetries:     cfg.Notify.MaxRetries,
			InitialBackoff: cfg.Notify.InitialBackoff,
			MaxBackoff:     cfg.Notify.MaxBackoff,
		}),
		AttachReport: cfg.Slack.AttachReport,
		TopFindings:  cfg.Notify.TopFindings,
	}

	if cfg.Jira.BaseURL != "" {
		tickets, err := notify.NewJiraTicketer(a.httpClient, notify.JiraOptions{
			BaseURL:        cfg.Jira.BaseURL,
			Email:          cfg.Jira.Email,
			APIToken:       cfg.Jira.APIToken.Reveal(),
			DefaultProject: cfg.Jira.ProjectKey,
			ProjectMapPath: cfg.Jira.ProjectMap,
			Workspace:      cfg.Bitbucket.Workspace,
		})
		if err != nil {
			return notify.Delivery{}, err
		}
		svc.Tickets = tickets
	}

	return svc.Deliver(ctx, r, cfg.Paths.ReportPath)
}

// runSummary é a linha final de cada subcomando.
type runSummary struct {
	Command      string
	Repositories int
	Failures     int
	Report       string
	Notified     bool
	Err          error
}

func (s runSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "bbscan %s: %d repositório(s), %d falha(s)", s.Command, s.Repositories, s.Failures)
	if s.Report != "" {
		fmt.Fprintf(&b, ", relatório %s", s.Report)
	} else {
		b.WriteString(", relatório não gerado")
	}
	if s.Notified {
		b.WriteString(", notificação enviada")
	} else {
		b.WriteString(", notificação não enviada")
	}
	if s.Err != nil {
		fmt.Fprintf(&b, ", erro (%s): %v", errs.Kind(s.Err), s.Err)
	}
	return b.String()
}

// finish imprime o resumo e devolve o código de saída.
func finish(w io.Writer, s runSummary) int {
	fmt.Fprintln(w, s.String())
	if s.Err != nil {
		logger.Log.Errorw("Execução terminou com erro",
			"comando", s.Command,
			"tipo", errs.Kind(s.Err),
			"fatal", errs.IsFatal(s.Err),
			"erro", s.Err,
		)
		return 1
	}
	logger.Log.Infow("Execução concluída", "comando", s.Command, "repositorios", s.Repositories, "falhas", s.Failures)
	return 0
}

// failEarly trata erros anteriores ao logger (configuração, credenciais).
func failEarly(command string, err error) int {
	fmt.Fprintf(os.Stderr, "bbscan %s: %v\n", command, err)
	return 1
}

func scanFailures(r models.ConsolidatedReport) int {
	return len(report.ByStatus(r, models.StatusScanFailed)) + len(report.ByStatus(r, models.StatusCloneFailed))
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
