// Package secrets lê as credenciais do pipeline de um segredo JSON do AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
)

// SecretsManager define a interface para recuperar segredos.
type SecretsManager interface {
	GetSecret(ctx context.Context, secretID string) (string, error)
}

// SecretsManagerAPI é o subconjunto do cliente AWS usado aqui.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type AWSSecretFetcher struct {
	client SecretsManagerAPI
}

var _ SecretsManager = (*AWSSecretFetcher)(nil)

// NewAWSSecretFetcher usa a cadeia padrão de credenciais da AWS (env, perfil, role).
func NewAWSSecretFetcher(ctx context.Context) (*AWSSecretFetcher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "carregar configuração AWS")
	}
	return &AWSSecretFetcher{client: secretsmanager.NewFromConfig(cfg)}, nil
}

func NewAWSSecretFetcherWithClient(client SecretsManagerAPI) *AWSSecretFetcher {
	return &AWSSecretFetcher{client: client}
}

func (s *AWSSecretFetcher) GetSecret(ctx context.Context, secretID string) (string, error) {
	start := time.Now()
	defer logger.Trace("GetSecret", start)

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", errs.Wrap(errs.ErrConfiguration, err, "segredo %s não encontrado", secretID)
		}
		return "", errs.Wrap(errs.ErrTransient, err, "ler segredo %s", secretID)
	}
	if out.SecretString == nil {
		return "", errs.New(errs.ErrConfiguration, "segredo %s não tem valor texto", secretID)
	}
	return *out.SecretString, nil
}

// Credentials lê um segredo JSON plano {"BITBUCKET_APP_PASSWORD": "...", ...}.
func Credentials(ctx context.Context, sm SecretsManager, secretID string) (map[string]string, error) {
	raw, err := sm.GetSecret(ctx, secretID)
	if err != nil {
		return nil, err
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "segredo %s não é um objeto JSON de textos", secretID)
	}
	logger.Log.Infow("Credenciais carregadas do Secrets Manager", "chaves", len(values))
	return values, nil
}
