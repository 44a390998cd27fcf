package live

import (
	"context"
	"log/slog"

	"quantbt/internal/domain"
	"quantbt/internal/store"
)

// SignalHandler consumes signals emitted by the monitor. Handlers are
// independent: one handler failing does not stop the others or the monitor.
type SignalHandler interface {
	HandleSignal(ctx context.Context, strategy string, sig domain.SignalEvent) error
}

type logHandler struct {
	log *slog.Logger
}

// NewLogHandler returns a handler that writes each signal as one log line.
func NewLogHandler(log *slog.Logger) SignalHandler {
	return &logHandler{log: log}
}

func (h *logHandler) HandleSignal(_ context.Context, strategy string, sig domain.SignalEvent) error {
	h.log.Info("signal",
		"strategy", strategy,
		"symbol", sig.Symbol,
		"direction", sig.Direction,
		"reason", sig.Reason,
		"at", sig.Timestamp)
	return nil
}

type storeHandler struct {
	signals store.SignalStore
}

// NewStoreHandler returns a handler that persists each signal.
func NewStoreHandler(signals store.SignalStore) SignalHandler {
	return &storeHandler{signals: signals}
}

func (h *storeHandler) HandleSignal(ctx context.Context, strategy string, sig domain.SignalEvent) error {
	return h.signals.SaveSignal(ctx, strategy, sig)
}
