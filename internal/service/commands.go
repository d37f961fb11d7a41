package service

import "github.com/Behyna/dcb-renewal-service/internal/model"

// RenewalJob is the payload carried through the per-operator job queues. The
// snapshot is the full joined subscription row at dispatch time.
type RenewalJob struct {
	SubscriptionID string             `json:"subscription_id"`
	Snapshot       model.Subscription `json:"snapshot"`
}

// DispatchSummary is the per-run accounting the dispatcher logs when a daily
// sweep completes.
type DispatchSummary struct {
	Pages    int
	Enqueued int
	Overdue  int
	Skipped  int
}

// DrainSummary is the per-tick accounting of one result consumer drain.
type DrainSummary struct {
	Popped    int
	Processed int
	Malformed int
	Succeeded int
	Failed    int
}
