package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Bitbucket      BitbucketConfig
	Slack          SlackConfig
	Paths          PathsConfig
	Scanner        ScannerConfig
	Clone          CloneConfig
	Notify         NotifyConfig
	Log            LogConfig
	Postgres       PostgresConfig
	SecretsManager SecretsManagerConfig
	Vault          VaultConfig
	SQS            SQSConfig
	Minio          MinioConfig
	Jira           JiraConfig
}

type BitbucketConfig struct {
	Workspace   string  `env:"BITBUCKET_WORKSPACE" validate:"required"`
	Username    string  `env:"BITBUCKET_USERNAME" validate:"required"`
	AppPassword Secret  `env:"BITBUCKET_APP_PASSWORD" validate:"required"`
	APIURL      string  `env:"BITBUCKET_API_URL" validate:"required,url"`
	RateLimit   float64 `env:"BITBUCKET_RATE_LIMIT" validate:"gt=0"` // requisições por segundo
}

type SlackConfig struct {
	BotToken     Secret `env:"SLACK_BOT_TOKEN" validate:"required"`
	Channel      string `env:"SLACK_CHANNEL" validate:"required"`
	APIURL       string `env:"SLACK_API_URL" validate:"omitempty,url"`
	AttachReport bool   `env:"SLACK_ATTACH_REPORT"`
}

type PathsConfig struct {
	ReposDir   string `env:"REPOS_DIR" validate:"required"`
	ReportPath string `env:"REPORT_PATH" validate:"required"`
}

type ScannerConfig struct {
	Kind         string `env:"SCANNER" validate:"oneof=gitleaks trufflehog"`
	Path         string `env:"SCANNER_PATH"` // vazio usa o nome do binário no PATH
	OnlyVerified bool   `env:"SCANNER_ONLY_VERIFIED"`
}

type CloneConfig struct {
	Concurrency int `env:"CLONE_CONCURRENCY" validate:"gte=1,lte=32"`
}

type NotifyConfig struct {
	MaxRetries     int           `env:"NOTIFY_MAX_RETRIES" validate:"gte=0,lte=10"`
	InitialBackoff time.Duration `env:"NOTIFY_INITIAL_BACKOFF" validate:"gt=0"`
	MaxBackoff     time.Duration `env:"NOTIFY_MAX_BACKOFF" validate:"gtfield=InitialBackoff"`
	TopFindings    int           `env:"NOTIFY_TOP_FINDINGS" validate:"gte=0"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Path  string `env:"LOG_PATH"`
}

type PostgresConfig struct {
	Host     string `env:"PG_HOST"`
	Port     string `env:"PG_PORT" validate:"required_with=Host"`
	Name     string `env:"PG_NAME" validate:"required_with=Host"`
	User     string `env:"PG_USER" validate:"required_with=Host"`
	Password Secret `env:"PG_PASSWORD"`
}

type SecretsManagerConfig struct {
	Enabled  bool   `env:"ENABLE_SECRETS_MANAGER"`
	SecretID string `env:"CREDENTIALS_SECRET_ID" validate:"required_if=Enabled true"`
}

type VaultConfig struct {
	Enabled    bool   `env:"ENABLE_VAULT"`
	Addr       string `env:"VAULT_ADDR" validate:"required_if=Enabled true"`
	Token      Secret `env:"VAULT_TOKEN" validate:"required_if=Enabled true"`
	Mount      string `env:"VAULT_MOUNT"`
	SecretPath string `env:"VAULT_SECRET_PATH" validate:"required_if=Enabled true"`
}

type SQSConfig struct {
	Enabled  bool   `env:"ENABLE_SQS"`
	QueueURL string `env:"SQS_QUEUE_URL" validate:"required_if=Enabled true"`
}

type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY" validate:"required_with=Endpoint"`
	SecretKey Secret `env:"MINIO_SECRET_KEY" validate:"required_with=Endpoint"`
	Bucket    string `env:"MINIO_BUCKET" validate:"required_with=Endpoint"`
	Region    string `env:"MINIO_REGION"`
	UseSSL    bool   `env:"MINIO_USE_SSL"`
}

type JiraConfig struct {
	BaseURL    string `env:"JIRA_BASE_URL" validate:"omitempty,url"`
	Email      string `env:"JIRA_EMAIL" validate:"required_with=BaseURL"`
	APIToken   Secret `env:"JIRA_API_TOKEN" validate:"required_with=BaseURL"`
	ProjectKey string `env:"JIRA_PROJECT_KEY"`
	ProjectMap string `env:"JIRA_PROJECT_MAP"` // YAML projeto -> repositórios
}

var defaults = map[string]any{
	"BITBUCKET_API_URL":      "https://api.bitbucket.org/2.0",
	"BITBUCKET_RATE_LIMIT":   5.0,
	"REPOS_DIR":              "all_repos",
	"REPORT_PATH":            "reports/secrets-report.json",
	"SCANNER":                "gitleaks",
	"CLONE_CONCURRENCY":      1,
	"NOTIFY_MAX_RETRIES":     3,
	"NOTIFY_INITIAL_BACKOFF": "2s",
	"NOTIFY_MAX_BACKOFF":     "30s",
	"NOTIFY_TOP_FINDINGS":    10,
	"LOG_LEVEL":              "info",
	"LOG_PATH":               "logs/bbscan.log",
	"VAULT_MOUNT":            "secret",
	"PG_PORT":                "5432",
}

// Load lê as variáveis de ambiente uma única vez. Se envFile existir, os valores
// dele servem de base e o ambiente do processo tem precedência.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{
		Bitbucket: BitbucketConfig{
			Workspace:   v.GetString("BITBUCKET_WORKSPACE"),
			Username:    v.GetString("BITBUCKET_USERNAME"),
			AppPassword: Secret(v.GetString("BITBUCKET_APP_PASSWORD")),
			APIURL:      v.GetString("BITBUCKET_API_URL"),
			RateLimit:   v.GetFloat64("BITBUCKET_RATE_LIMIT"),
		},
		Slack: SlackConfig{
			BotToken:     Secret(v.GetString("SLACK_BOT_TOKEN")),
			Channel:      v.GetString("SLACK_CHANNEL"),
			APIURL:       v.GetString("SLACK_API_URL"),
			AttachReport: v.GetBool("SLACK_ATTACH_REPORT"),
		},
		Paths: PathsConfig{
			ReposDir:   v.GetString("REPOS_DIR"),
			ReportPath: v.GetString("REPORT_PATH"),
		},
		Scanner: ScannerConfig{
			Kind:         v.GetString("SCANNER"),
			Path:         v.GetString("SCANNER_PATH"),
			OnlyVerified: v.GetBool("SCANNER_ONLY_VERIFIED"),
		},
		Clone: CloneConfig{
			Concurrency: v.GetInt("CLONE_CONCURRENCY"),
		},
		Notify: NotifyConfig{
			MaxRetries:     v.GetInt("NOTIFY_MAX_RETRIES"),
			InitialBackoff: v.GetDuration("NOTIFY_INITIAL_BACKOFF"),
			MaxBackoff:     v.GetDuration("NOTIFY_MAX_BACKOFF"),
			TopFindings:    v.GetInt("NOTIFY_TOP_FINDINGS"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
			Path:  v.GetString("LOG_PATH"),
		},
		Postgres: PostgresConfig{
			Host:     v.GetString("PG_HOST"),
			Port:     v.GetString("PG_PORT"),
			Name:     v.GetString("PG_NAME"),
			User:     v.GetString("PG_USER"),
			Password: Secret(v.GetString("PG_PASSWORD")),
		},
		SecretsManager: SecretsManagerConfig{
			Enabled:  v.GetBool("ENABLE_SECRETS_MANAGER"),
			SecretID: v.GetString("CREDENTIALS_SECRET_ID"),
		},
		Vault: VaultConfig{
			Enabled:    v.GetBool("ENABLE_VAULT"),
			Addr:       v.GetString("VAULT_ADDR"),
			Token:      Secret(v.GetString("VAULT_TOKEN")),
			Mount:      v.GetString("VAULT_MOUNT"),
			SecretPath: v.GetString("VAULT_SECRET_PATH"),
		},
		SQS: SQSConfig{
			Enabled:  v.GetBool("ENABLE_SQS"),
			QueueURL: v.GetString("SQS_QUEUE_URL"),
		},
		Minio: MinioConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: Secret(v.GetString("MINIO_SECRET_KEY")),
			Bucket:    v.GetString("MINIO_BUCKET"),
			Region:    v.GetString("MINIO_REGION"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
		},
		Jira: JiraConfig{
			BaseURL:    v.GetString("JIRA_BASE_URL"),
			Email:      v.GetString("JIRA_EMAIL"),
			APIToken:   Secret(v.GetString("JIRA_API_TOKEN")),
			ProjectKey: v.GetString("JIRA_PROJECT_KEY"),
			ProjectMap: v.GetString("JIRA_PROJECT_MAP"),
		},
	}
	return cfg, nil
}

// ApplyCredentials preenche as credenciais ainda vazias com valores vindos de um
// cofre externo (Secrets Manager, Vault). As chaves são os nomes das variáveis.
// Valores já definidos no ambiente nunca são sobrescritos.
func (c *Config) ApplyCredentials(values map[string]string) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = values[key]
		}
	}
	fillSecret := func(dst *Secret, key string) {
		if *dst == "" {
			*dst = Secret(values[key])
		}
	}
	fill(&c.Bitbucket.Workspace, "BITBUCKET_WORKSPACE")
	fill(&c.Bitbucket.Username, "BITBUCKET_USERNAME")
	fillSecret(&c.Bitbucket.AppPassword, "BITBUCKET_APP_PASSWORD")
	fillSecret(&c.Slack.BotToken, "SLACK_BOT_TOKEN")
	fill(&c.Slack.Channel, "SLACK_CHANNEL")
	fillSecret(&c.Postgres.Password, "PG_PASSWORD")
	fillSecret(&c.Jira.APIToken, "JIRA_API_TOKEN")
	fillSecret(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
}

func (c Config) PostgresConnString() string {
	// Exemplo: "host=localhost port=5432 dbname=mydb user=myuser password=mypass sslmode=disable"
	return "host=" + c.Postgres.Host + " port=" + c.Postgres.Port + " dbname=" + c.Postgres.Name +
		" user=" + c.Postgres.User + " password=" + c.Postgres.Password.Reveal() + " sslmode=disable"
}

// MarshalLogObject permite logar a configuração com zap.Object sem vazar segredos.
func (c Config) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("bitbucket_workspace", c.Bitbucket.Workspace)
	enc.AddString("bitbucket_username", c.Bitbucket.Username)
	enc.AddString("bitbucket_app_password", c.Bitbucket.AppPassword.String())
	enc.AddString("bitbucket_api_url", c.Bitbucket.APIURL)
	enc.AddString("slack_channel", c.Slack.Channel)
	enc.AddString("slack_bot_token", c.Slack.BotToken.String())
	enc.AddString("repos_dir", c.Paths.ReposDir)
	enc.AddString("report_path", c.Paths.ReportPath)
	enc.AddString("scanner", c.Scanner.Kind)
	enc.AddBool("scanner_only_verified", c.Scanner.OnlyVerified)
	enc.AddInt("clone_concurrency", c.Clone.Concurrency)
	enc.AddInt("notify_max_retries", c.Notify.MaxRetries)
	enc.AddBool("postgres_state", c.Postgres.Host != "")
	enc.AddBool("secrets_manager", c.SecretsManager.Enabled)
	enc.AddBool("vault", c.Vault.Enabled)
	enc.AddBool("sqs", c.SQS.Enabled)
	enc.AddBool("minio", c.Minio.Endpoint != "")
	enc.AddBool("jira", c.Jira.BaseURL != "")
	return nil
}

// String mantém %v e %s seguros.
func (c Config) String() string {
	return "config(workspace=" + c.Bitbucket.Workspace +
		", channel=" + c.Slack.Channel +
		", repos_dir=" + c.Paths.ReposDir +
		", scanner=" + c.Scanner.Kind +
		", concurrency=" + strconv.Itoa(c.Clone.Concurrency) + ")"
}
