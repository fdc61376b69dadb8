package server

import (
	"context"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ziadkadry99/perfreview/internal/audit"
	"github.com/ziadkadry99/perfreview/internal/changetrack"
	"github.com/ziadkadry99/perfreview/internal/config"
	"github.com/ziadkadry99/perfreview/internal/db"
	"github.com/ziadkadry99/perfreview/internal/describe"
	"github.com/ziadkadry99/perfreview/internal/goals"
	"github.com/ziadkadry99/perfreview/internal/orgstructure"
	"github.com/ziadkadry99/perfreview/internal/redact"
	"github.com/ziadkadry99/perfreview/internal/review"
	"github.com/ziadkadry99/perfreview/internal/snapshot"
	"github.com/ziadkadry99/perfreview/internal/telemetry"
)

// Components are the services behind the API, wired to one database and
// one audit pipeline.
type Components struct {
	DB          *db.DB
	Orgs        *orgstructure.Store
	Goals       *goals.Store
	Engine      *review.Engine
	AuditStore  *audit.Store
	AuditWriter *audit.Writer
	Interceptor *changetrack.Interceptor
}

// Assemble wires the stores, the review engine and the change-tracking
// pipeline. The caller owns the returned writer and must Close it.
func Assemble(cfg *config.Config, database *db.DB, logger *zap.Logger, metrics *telemetry.Metrics) *Components {
	orgs := orgstructure.NewStore(database)

	resolver := snapshot.NewResolver(logger, metrics)
	snapshot.RegisterDefaults(resolver, database)

	auditStore := audit.NewStore(database)
	writer := audit.NewWriter(auditStore,
		redact.New(cfg.Audit.SensitiveFields),
		describe.New(orgs, logger),
		logger, metrics,
		audit.WriterOptions{
			QueueSize:    cfg.Audit.QueueSize,
			Workers:      cfg.Audit.Workers,
			WriteTimeout: cfg.Audit.WriteTimeout,
		},
	)

	interceptor := changetrack.New(resolver, writer, logger, changetrack.Options{
		ActorHeader:     cfg.Server.ActorHeader,
		SnapshotTimeout: cfg.Audit.SnapshotTimeout,
	})

	return &Components{
		DB:          database,
		Orgs:        orgs,
		Goals:       goals.NewStore(database),
		Engine:      review.NewEngine(review.NewStore(database), orgs, logger, metrics),
		AuditStore:  auditStore,
		AuditWriter: writer,
		Interceptor: interceptor,
	}
}

// RegisterRoutes mounts every feature's routes on s behind the
// interceptor.
func (c *Components) RegisterRoutes(s *Server) {
	s.Mount(c.Interceptor.Middleware,
		func(r chi.Router) { orgstructure.RegisterRoutes(r, c.Orgs) },
		func(r chi.Router) { review.RegisterRoutes(r, c.Engine) },
		func(r chi.Router) { goals.RegisterRoutes(r, c.Goals) },
		func(r chi.Router) { audit.RegisterRoutes(r, c.AuditStore) },
	)
}

// Close drains the audit queue.
func (c *Components) Close(ctx context.Context) error {
	return c.AuditWriter.Close(ctx)
}
