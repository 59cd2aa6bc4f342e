package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/jeenglish/speaking-backend/internal/queue"
	"github.com/jeenglish/speaking-backend/internal/usage"
)

// UsageWorker writes ledger snapshots enqueued by the API to the document
// store.
type UsageWorker struct {
	store usage.Store
}

func NewUsageWorker(store usage.Store) *UsageWorker {
	return &UsageWorker{store: store}
}

func (w *UsageWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.UsagePersistPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := w.store.Save(ctx, payload.Ledger); err != nil {
		return fmt.Errorf("persist usage ledger: %w", err)
	}

	slog.Info("usage ledger persisted", "users", len(payload.Ledger))
	return nil
}
