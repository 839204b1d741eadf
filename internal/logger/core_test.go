package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	common_models "roof-crm/internal/common/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type memorySink struct {
	mu      sync.Mutex
	records []common_models.Log
	done    chan struct{}
}

func (s *memorySink) Insert(ctx context.Context, record common_models.Log) error {
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func TestDBCoreForwardsWarningsWithTenant(t *testing.T) {
	sink := &memorySink{done: make(chan struct{}, 10)}
	writer := newDBLogWriter(sink, "test", zapcore.WarnLevel)
	defer writer.Close()

	core := NewDBCore(zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(discard{}),
		zapcore.DebugLevel,
	), writer)

	log := zap.New(core).With(zap.String("tenant_id", "t-1"))
	log.Info("not persisted")
	log.Warn("token refresh failed")

	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatal("log was not written")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	if sink.records[0].TenantID != "t-1" || sink.records[0].LogLevelId != 30 {
		t.Errorf("unexpected record: %+v", sink.records[0])
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
func (discard) Sync() error                 { return nil }
