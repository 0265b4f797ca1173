package app

import (
	"context"

	"record-gateway/internal/audit"
	"record-gateway/internal/common/logging"
	"record-gateway/internal/service"
)

func (app *App) initializeAudit(ctx context.Context) error {
	sink := audit.NewMongoSink(&audit.Config{
		URL:      app.Config.MongoURL,
		Database: app.Config.MongoDatabase,
	})

	if err := service.Initialize(ctx, sink, service.TierOptional); err != nil {
		return err
	}

	if !sink.Enabled() {
		app.Logger.Info("Audit: not configured (audit trail disabled)")
		app.Sink = audit.NewDisabledSink()
		return nil
	}

	app.mongoSink = sink
	app.Sink = sink
	app.Logger.Info("Audit: enabled", logging.String("database", app.Config.MongoDatabase))
	return nil
}
