package internal

import (
	"context"
	"fmt"

	"banana/storage-api/aws"
	"banana/storage-api/config"
	"banana/storage-api/internal/materialize"
	"banana/storage-api/internal/service"
	"banana/storage-api/internal/storage"

	"go.uber.org/zap"
)

// Deps is everything a handler needs. Built once at startup and read-only
// afterwards.
type Deps struct {
	Config *config.Config
	Secret []byte
	Layout storage.Layout

	Users     *service.Users
	Quota     *service.Quota
	Files     *service.Files
	Favorites *service.Favorites

	JobQueue *service.JobQueue
	Mirror   service.Mirror
}

func NewDeps(ctx context.Context, cfg *config.Config, secret []byte) (*Deps, error) {
	d := &Deps{
		Config: cfg,
		Secret: secret,
		Layout: storage.Layout{Root: cfg.DataDir},
		Mirror: service.NopMirror{},
	}

	if cfg.Mirror.Enabled {
		s3, err := aws.NewS3(ctx, cfg.Mirror)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 client, %w", err)
		}

		d.Mirror = service.NewS3Mirror(s3, d.Layout.UsersDir())
		zap.L().Info("Mirroring files to S3", zap.String("bucket", cfg.Mirror.Bucket))
	}

	var thumbs *service.Thumbnailer
	if cfg.ThumbsEnabled {
		d.JobQueue = service.NewJobQueue(cfg.FFmpegPath, cfg.FFmpegWorkers)
		d.JobQueue.StartWorkerPool()
		thumbs = service.NewThumbnailer(d.JobQueue, cfg.ThumbWidth)
	}

	m := materialize.New(d.Layout, materialize.NewFetcher(cfg.FetchMaxBytes, cfg.FetchMaxRedirects, cfg.FetchTimeout))
	m.OnStore = func(ctx context.Context, path, _ string) {
		d.Mirror.Put(ctx, path)
	}

	d.Users = service.NewUsers(d.Layout, secret, cfg.TokenTTL, cfg.AdminUsers)
	d.Quota = service.NewQuota(d.Layout, d.Users, cfg.DefaultQuota)
	d.Files = service.NewFiles(d.Layout, d.Quota, thumbs, d.Mirror, cfg.MaxUploadSize)
	d.Favorites = service.NewFavorites(d.Layout, m, d.Mirror)

	return d, nil
}

// Close stops the workers and waits for pending mirror uploads
func (d *Deps) Close() {
	if d.JobQueue != nil {
		d.JobQueue.Stop()
	}

	d.Mirror.Wait()
}
