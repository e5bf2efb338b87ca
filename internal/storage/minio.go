// Package storage arquiva o relatório consolidado num bucket S3 compatível (MinIO).
package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

// ObjectStore é o subconjunto do cliente minio usado aqui.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// ReportArchive guarda cada relatório em reports/<run_id>/<arquivo>.
type ReportArchive struct {
	client  ObjectStore
	bucket  string
	region  string
	baseURL string

	mu       sync.Mutex
	uploaded map[string]string
}

// New cria o cliente minio. O bucket é criado no primeiro upload se não existir.
func New(opts Options) (*ReportArchive, error) {
	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "criar cliente minio")
	}
	return NewWithClient(cli, cli.EndpointURL().String(), opts.Bucket, opts.Region), nil
}

func NewWithClient(client ObjectStore, baseURL, bucket, region string) *ReportArchive {
	return &ReportArchive{
		client:   client,
		bucket:   bucket,
		region:   region,
		baseURL:  baseURL,
		uploaded: map[string]string{},
	}
}

func (a *ReportArchive) Name() string { return "minio" }

// ObjectKey devolve a chave do relatório de um run.
func ObjectKey(runID, reportPath string) string {
	return path.Join("reports", runID, filepath.Base(reportPath))
}

// Publish envia o arquivo do relatório ao bucket.
func (a *ReportArchive) Publish(ctx context.Context, r models.ConsolidatedReport, reportPath string) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return errs.Wrap(errs.ErrTransient, err, "consultar bucket %s", a.bucket)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
			return errs.Wrap(errs.ErrTransient, err, "criar bucket %s", a.bucket)
		}
	}

	key := ObjectKey(r.RunID, reportPath)
	info, err := a.client.FPutObject(ctx, a.bucket, key, reportPath, minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return errs.Wrap(errs.ErrTransient, err, "enviar %s", key)
	}

	url := fmt.Sprintf("%s/%s/%s", a.baseURL, a.bucket, key)
	a.mu.Lock()
	a.uploaded[r.RunID] = url
	a.mu.Unlock()
	logger.Log.Infow("Relatório arquivado", "bucket", a.bucket, "chave", key, "bytes", info.Size)
	return nil
}

// Location devolve a URL do relatório do run, se ele foi arquivado.
func (a *ReportArchive) Location(runID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	url, ok := a.uploaded[runID]
	return url, ok
}
