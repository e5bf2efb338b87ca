package cloner

import (
	"context"
	"sync"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/logger"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

// workerPool consome os descritores de jobs com numWorkers goroutines.
type workerPool struct {
	jobs chan models.RepositoryDescriptor
	wg   sync.WaitGroup
}

func startPool(ctx context.Context, numWorkers int, handle func(context.Context, models.RepositoryDescriptor)) *workerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	p := &workerPool{jobs: make(chan models.RepositoryDescriptor)}
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			for desc := range p.jobs {
				logger.Log.Debugf("[Clone Worker %d] Processando %s", workerID, desc.Name)
				handle(ctx, desc)
			}
		}(i)
	}
	return p
}

// submit bloqueia até um worker aceitar o descritor ou o contexto ser cancelado.
func (p *workerPool) submit(ctx context.Context, desc models.RepositoryDescriptor) error {
	select {
	case p.jobs <- desc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wait fecha a fila e espera os workers terminarem o que já receberam.
func (p *workerPool) wait() {
	close(p.jobs)
	p.wg.Wait()
}
