package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/slack-go/slack"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
)

// ErrDeliveryFailed indica que a mensagem não chegou ao canal depois de todas as tentativas.
var ErrDeliveryFailed = errors.New("falha na entrega da notificação")

var authErrors = map[string]struct{}{
	"invalid_auth":     {},
	"not_authed":       {},
	"token_revoked":    {},
	"token_expired":    {},
	"account_inactive": {},
}

// Erros de requisição que nenhuma nova tentativa resolve.
var permanentErrors = map[string]struct{}{
	"channel_not_found": {},
	"not_in_channel":    {},
	"is_archived":       {},
	"msg_too_long":      {},
	"no_text":           {},
	"missing_scope":     {},
}

type RetryOptions struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type SlackNotifier struct {
	client  *slack.Client
	channel string
	retry   RetryOptions
}

// NewSlackNotifier cria o cliente do Slack Web API. apiURL vazio usa o endpoint público.
func NewSlackNotifier(token, channel, apiURL string, retry RetryOptions) *SlackNotifier {
	var opts []slack.Option
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &SlackNotifier{
		client:  slack.New(token, opts...),
		channel: channel,
		retry:   retry,
	}
}

// Notify publica text no canal. Erros transitórios e rate limit são repetidos
// com backoff exponencial até MaxRetries; credencial inválida falha na hora.
func (n *SlackNotifier) Notify(ctx context.Context, text string) error {
	start := time.Now()
	defer logger.Trace("SlackNotifier.Notify", start)

	attempts := 0
	err := n.withRetry(ctx, func() error {
		attempts++
		_, ts, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
		if err != nil {
			return err
		}
		logger.Log.Infow("Mensagem publicada no Slack", "canal", n.channel, "ts", ts)
		return nil
	})
	if err != nil {
		return deliveryError(err, attempts)
	}
	return nil
}

// UploadReport anexa o arquivo do relatório ao canal.
func (n *SlackNotifier) UploadReport(ctx context.Context, path, comment string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errs.Wrap(errs.ErrFilesystem, err, "ler relatório %s", path)
	}
	if info.Size() == 0 {
		return errs.New(errs.ErrFilesystem, "relatório %s vazio", path)
	}

	attempts := 0
	err = n.withRetry(ctx, func() error {
		attempts++
		file, err := n.client.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
			File:           path,
			FileSize:       int(info.Size()),
			Filename:       filepath.Base(path),
			Title:          "Secret scan report",
			InitialComment: comment,
			Channel:        n.channel,
		})
		if err != nil {
			return err
		}
		logger.Log.Infow("Relatório anexado no Slack", "arquivo", file.ID)
		return nil
	})
	if err != nil {
		return deliveryError(err, attempts)
	}
	return nil
}

// withRetry executa op com backoff. Erros permanentes saem como *backoff.PermanentError
// para o RetryNotify parar na primeira tentativa.
func (n *SlackNotifier) withRetry(ctx context.Context, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = n.retry.InitialBackoff
	exp.MaxInterval = n.retry.MaxBackoff
	exp.MaxElapsedTime = 0

	maxRetries := n.retry.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(maxRetries)), ctx)

	operation := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(ctxErr)
		}
		if classified := classifySlackError(err); !errors.Is(classified, errs.ErrTransient) {
			return backoff.Permanent(classified)
		}
		var rl *slack.RateLimitedError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			// Respeita o Retry-After antes do intervalo do próprio backoff.
			if !sleep(ctx, rl.RetryAfter) {
				return backoff.Permanent(ctx.Err())
			}
		}
		return err
	}

	err := backoff.RetryNotify(operation, b, func(err error, next time.Duration) {
		logger.Log.Warnw("Falha ao chamar o Slack; nova tentativa", "erro", err, "em", next)
	})
	if err != nil {
		return classifySlackError(err)
	}
	return nil
}

// classifySlackError mapeia o erro do cliente para a taxonomia do módulo.
func classifySlackError(err error) error {
	if err == nil || errors.Is(err, errs.ErrAuthentication) || errors.Is(err, errs.ErrConfiguration) ||
		errors.Is(err, errs.ErrTransient) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr slack.SlackErrorResponse
	code := err.Error()
	if errors.As(err, &apiErr) {
		code = apiErr.Err
	}
	if _, ok := authErrors[code]; ok {
		return errs.Wrap(errs.ErrAuthentication, err, "slack rejeitou o token")
	}
	if _, ok := permanentErrors[code]; ok {
		return errs.Wrap(errs.ErrConfiguration, err, "slack recusou a requisição")
	}
	var status slack.StatusCodeError
	if errors.As(err, &status) && !status.Retryable() {
		return errs.Wrap(errs.ErrConfiguration, err, "slack respondeu HTTP %d", status.Code)
	}
	return errs.Wrap(errs.ErrTransient, err, "slack indisponível")
}

func deliveryError(err error, attempts int) error {
	return fmt.Errorf("%w após %d tentativa(s): %w", ErrDeliveryFailed, attempts, err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
