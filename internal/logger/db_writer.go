package logger

import (
	"context"
	"fmt"
	"time"

	common_models "roof-crm/internal/common/models"
	"roof-crm/internal/config"
	"roof-crm/internal/database"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap/zapcore"
)

// LogEntry holds the data passed from Zap to our worker
type LogEntry struct {
	Level     zapcore.Level
	Message   string
	IpAddress string
	TenantID  string
	Caller    string
}

// LogSink persists one record. Satisfied by a mongo collection adapter.
type LogSink interface {
	Insert(ctx context.Context, record common_models.Log) error
}

type mongoSink struct {
	collection *mongo.Collection
}

func (s mongoSink) Insert(ctx context.Context, record common_models.Log) error {
	_, err := s.collection.InsertOne(ctx, record)
	return err
}

// DBLogWriter handles the async writing
type DBLogWriter struct {
	sink    LogSink
	logChan chan LogEntry
	appId   string
	minimum zapcore.Level
}

// NewDBLogWriter initializes the worker. Only warn and above reach the database.
func NewDBLogWriter(mongodb *database.MongodbDB, cfg *config.Config) *DBLogWriter {
	return newDBLogWriter(mongoSink{collection: mongodb.DB.Collection("logs")}, cfg.AppId, zapcore.WarnLevel)
}

func newDBLogWriter(sink LogSink, appId string, minimum zapcore.Level) *DBLogWriter {
	writer := &DBLogWriter{
		sink:    sink,
		logChan: make(chan LogEntry, 1000),
		appId:   appId,
		minimum: minimum,
	}

	go writer.processLogs()

	return writer
}

// AddLog is called by our Zap hook
func (w *DBLogWriter) AddLog(entry LogEntry) {
	if entry.Level < w.minimum {
		return
	}
	select {
	case w.logChan <- entry:
	default:
		// Never block the request path on the log sink.
		fmt.Println("DB Log Channel Full! Dropping log:", entry.Message)
	}
}

// Close stops the worker after draining queued entries.
func (w *DBLogWriter) Close() {
	close(w.logChan)
}

func (w *DBLogWriter) processLogs() {
	for entry := range w.logChan {
		record := common_models.Log{
			Message:      entry.Message,
			Caller:       entry.Caller,
			IpAddress:    entry.IpAddress,
			TenantID:     entry.TenantID,
			LogLevelId:   mapLevelToInt(entry.Level),
			CreatedOnUtc: time.Now().UTC(),
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = w.sink.Insert(ctx, record)
		cancel()
	}
}

func mapLevelToInt(l zapcore.Level) int {
	switch l {
	case zapcore.DebugLevel:
		return 10
	case zapcore.InfoLevel:
		return 20
	case zapcore.WarnLevel:
		return 30
	case zapcore.ErrorLevel:
		return 40
	case zapcore.FatalLevel:
		return 50
	default:
		return 20
	}
}
