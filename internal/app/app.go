// Package app builds the process dependency graph from configuration. Both binaries
// and intakectl use it so every process selects backends the same way: Postgres when
// DATABASE_URL is set, Redis when REDIS_URL is set, Kafka when brokers are listed,
// and in-memory adapters otherwise.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"carepay/internal/blob"
	"carepay/internal/events"
	identitymetrics "carepay/internal/identity/metrics"
	"carepay/internal/identity/models"
	identityservice "carepay/internal/identity/service"
	documentstore "carepay/internal/identity/store"
	patientmodels "carepay/internal/patient/models"
	patientstore "carepay/internal/patient/store"
	"carepay/internal/platform/config"
	"carepay/internal/platform/postgres"
	redisclient "carepay/internal/platform/redis"
	"carepay/internal/queue"
	"carepay/internal/reconcile"
	"carepay/internal/tenant"
	tenantmetrics "carepay/internal/tenant/metrics"
	tenantservice "carepay/internal/tenant/service"
	tenantstore "carepay/internal/tenant/store/tenant"
	"carepay/internal/verification"
	"carepay/internal/worker"
	workermetrics "carepay/internal/worker/metrics"
	id "carepay/pkg/domain"
)

type PatientStore interface {
	Create(ctx context.Context, p *patientmodels.Patient) error
	FindByRef(ctx context.Context, ref id.PatientRefID) (*patientmodels.Patient, error)
	FindByID(ctx context.Context, patientID id.PatientID) (*patientmodels.Patient, error)
}

type DocumentStore interface {
	Create(ctx context.Context, doc *models.IdentityDocument) error
	FindByID(ctx context.Context, docID id.DocumentID) (*models.IdentityDocument, error)
	ListByPatient(ctx context.Context, patientID id.PatientID) ([]*models.IdentityDocument, error)
	ApplyVerification(ctx context.Context, docID id.DocumentID, v models.Verification, reverifyRequestedAt time.Time) (*models.IdentityDocument, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*models.IdentityDocument, error)
}

// Deps is the wired dependency graph. Close releases what Build opened.
type Deps struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry prometheus.Registerer

	DB    *sql.DB
	Redis *redisclient.Client

	Scoper    tenant.Scoper
	Tenants   tenantservice.TenantStore
	Patients  PatientStore
	Documents DocumentStore
	Blobs     blob.Store
	Signer    *blob.Signer
	Queue     queue.Queue
	Publisher events.Publisher
	Engine    *verification.Engine

	TenantService *tenantservice.Service

	closers []func()
}

// Build connects to the configured backends. reg may be nil for the default registry.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Deps, error) {
	d := &Deps{Config: cfg, Logger: logger, Registry: reg}
	if err := d.build(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Deps) build(ctx context.Context) error {
	cfg := d.Config

	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		d.DB = db
		d.closers = append(d.closers, func() { _ = db.Close() })
		d.Scoper = tenant.NewPostgresScoper(db)
		d.Tenants = tenantstore.NewPostgres(db)
		d.Patients = patientstore.NewPostgres(db)
		d.Documents = documentstore.NewPostgres(db)
	} else {
		if cfg.IsProduction() {
			return errors.New("DATABASE_URL is required in production")
		}
		d.Logger.Warn("DATABASE_URL not set; using in-memory stores")
		d.Scoper = tenant.NewMemoryScoper()
		d.Tenants = tenantstore.NewInMemory()
		d.Patients = patientstore.NewInMemory()
		d.Documents = documentstore.NewInMemory()
	}

	switch cfg.Blob.Backend {
	case "memory":
		d.Blobs = blob.NewMemoryStore()
	default:
		fs, err := blob.NewFSStore(cfg.Blob.RootDir)
		if err != nil {
			return err
		}
		d.Blobs = fs
	}
	signer, err := blob.NewSigner(cfg.Blob.SigningKey, cfg.Server.PublicBaseURL)
	if err != nil {
		return err
	}
	d.Signer = signer

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		d.Redis = rc
		d.closers = append(d.closers, func() { _ = rc.Close() })
		d.Queue = queue.NewRedisQueue(rc.Client, cfg.Queue.Name, cfg.Queue.VisibilityTimeout, cfg.Queue.PollInterval)
	} else {
		d.Logger.Warn("REDIS_URL not set; using the in-process verification queue")
		d.Queue = queue.NewMemoryQueue(cfg.Queue.VisibilityTimeout)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(ctx, cfg.Kafka, d.Logger)
		if err != nil {
			return err
		}
		d.Publisher = kp
		d.closers = append(d.closers, kp.Close)
	} else {
		d.Publisher = events.NewLogPublisher(d.Logger)
	}

	var engineOpts []verification.Option
	if cfg.Verification.RulesFile != "" {
		rules, err := verification.LoadRules(cfg.Verification.RulesFile)
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, verification.WithRules(rules))
	}
	d.Engine = verification.NewEngine(engineOpts...)

	d.TenantService = tenantservice.New(d.Tenants,
		tenantservice.WithLogger(d.Logger),
		tenantservice.WithMetrics(tenantmetrics.New(d.Registry)),
	)
	return nil
}

// InProcessQueue reports whether the queue lives in this process, in which case the
// API server must also run the worker.
func (d *Deps) InProcessQueue() bool {
	_, ok := d.Queue.(*queue.MemoryQueue)
	return ok
}

func (d *Deps) IdentityService() *identityservice.Service {
	return identityservice.New(d.Scoper, d.Patients, d.Documents, d.Blobs, d.Signer, d.Queue, d.Publisher,
		identityservice.WithLogger(d.Logger),
		identityservice.WithMetrics(identitymetrics.New(d.Registry)),
		identityservice.WithURLTTL(d.Config.Blob.URLTTL),
	)
}

func (d *Deps) Worker() *worker.Worker {
	q := d.Config.Queue
	return worker.New(d.Queue, d.Scoper, d.Documents, d.Patients, d.Engine, d.Publisher,
		worker.Config{BatchSize: q.BatchSize, WaitTime: q.WaitTime, VisibilityTimeout: q.VisibilityTimeout},
		worker.WithLogger(d.Logger),
		worker.WithMetrics(workermetrics.New(d.Registry)),
	)
}

func (d *Deps) Sweeper() *reconcile.Sweeper {
	return reconcile.NewSweeper(d.TenantService, d.Scoper, d.Documents, d.Queue,
		d.Config.Reconcile.StaleAfter, d.Config.Reconcile.BatchSize,
		reconcile.WithLogger(d.Logger),
		reconcile.WithMetrics(reconcile.NewMetrics(d.Registry)),
	)
}

// Ready checks the shared backends.
func (d *Deps) Ready(ctx context.Context) error {
	if d.DB != nil {
		if err := d.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
