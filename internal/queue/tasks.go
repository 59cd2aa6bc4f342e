package queue

import "github.com/jeenglish/speaking-backend/internal/usage"

const (
	TypeUsagePersist = "usage:persist"
)

// UsagePersistPayload carries a full ledger snapshot to be written to the
// document store by the worker. The snapshot is whatever the API process
// decided at response time; writing it later keeps last-writer-wins
// semantics.
type UsagePersistPayload struct {
	Ledger usage.Ledger `json:"ledger"`
}
