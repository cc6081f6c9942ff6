package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/terracehq/terrace/internal/config"
	"github.com/terracehq/terrace/internal/dag"
	"github.com/terracehq/terrace/internal/grapher"
	"github.com/terracehq/terrace/internal/logging"
	"github.com/terracehq/terrace/internal/snapshot"
	"github.com/terracehq/terrace/internal/steps"
	"github.com/terracehq/terrace/pkg/catalog"
	"github.com/terracehq/terrace/pkg/regions"
)

// app bundles the configuration and logger every command starts from.
type app struct {
	cfg *config.Config
	log *logrus.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: logging.New(cfg.LogLevel, cfg.LogFormat)}, nil
}

// objectStore builds the configured object store, or nil when the run is
// purely local.
func (a *app) objectStore() (snapshot.ObjectStore, error) {
	if a.cfg.S3Endpoint != "" {
		return snapshot.NewS3Client(snapshot.S3Config{
			EndpointURL:     a.cfg.S3Endpoint,
			AccessKeyID:     a.cfg.S3AccessKey,
			SecretAccessKey: a.cfg.S3SecretKey,
			Region:          a.cfg.S3Region,
			UseSSL:          a.cfg.S3UseSSL,
		})
	}
	if a.cfg.LocalStoreDir != "" {
		return snapshot.NewLocalStore(a.cfg.LocalStoreDir), nil
	}
	return nil, nil
}

func (a *app) snapshotStore(archive snapshot.ObjectStore) *snapshot.Store {
	return &snapshot.Store{
		MetaDir:  a.cfg.SnapshotDir,
		CacheDir: a.cfg.CacheDir,
		Archive:  archive,
		Bucket:   a.cfg.SnapshotBucket,
		Downloader: snapshot.NewDownloader(snapshot.DownloaderConfig{
			RateLimit: a.cfg.DownloadRate,
			RateBurst: a.cfg.DownloadBurst,
		}),
		Log: a.log,
	}
}

// stepEnv wires the full step environment. connectGrapher opens the
// presentation database when a DSN is configured; commands that only read
// local state leave it false. The returned close func releases the grapher
// connection pool when one was opened.
func (a *app) stepEnv(ctx context.Context, connectGrapher bool) (*steps.Env, func(), error) {
	set, err := regions.DefaultSet()
	if err != nil {
		return nil, nil, err
	}
	store, err := a.objectStore()
	if err != nil {
		return nil, nil, err
	}
	env := &steps.Env{
		Catalog:      catalog.NewLocalCatalog(a.cfg.CatalogDir),
		Snapshots:    a.snapshotStore(store),
		Regions:      set,
		Registry:     steps.DefaultRegistry(),
		StepMetaDir:  a.cfg.StepMetaDir,
		ExportStore:  store,
		ExportBucket: a.cfg.ExportBucket,
		Log:          a.log,
	}
	closer := func() {}
	if connectGrapher && a.cfg.GrapherDSN != "" {
		gc, err := grapher.NewClient(ctx, a.cfg.GrapherDSN, a.cfg.MigrationsDir, a.log)
		if err != nil {
			return nil, nil, err
		}
		env.Grapher = gc
		closer = gc.Close
	}
	return env, closer, nil
}

func (a *app) graph() (*dag.Graph, error) {
	return dag.Load(a.cfg.DagPath)
}
