package logger

import (
	"context"

	"roof-crm/internal/config"
	"roof-crm/internal/database"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewLogger builds the console logger and tees warnings into mongo.
func NewLogger(lc fx.Lifecycle, cfg *config.Config, mongodb *database.MongodbDB) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Environment == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.EncoderConfig.FunctionKey = "func"

	baseLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	dbWriter := NewDBLogWriter(mongodb, cfg)
	finalCore := NewDBCore(baseLogger.Core(), dbWriter)
	logger := zap.New(finalCore, zap.AddCaller()).With(zap.String("app", cfg.AppId))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = logger.Sync()
			dbWriter.Close()
			return nil
		},
	})

	return logger, nil
}
