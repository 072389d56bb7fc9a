package engine

import "github.com/poolhand/payoutd/internal/storage"

// Read-only views for the operator tools. Rendering belongs to the
// callers; these return rows as stored.

func (e *Engine) UnpaidLocked() ([]*storage.Payout, error) {
	return e.store.UnpaidLocked()
}

func (e *Engine) UnpaidUnlocked() ([]*storage.Payout, error) {
	return e.store.UnpaidUnlocked()
}

func (e *Engine) PaidUnassociated() ([]*storage.Payout, error) {
	return e.store.PaidUnassociated()
}

func (e *Engine) DumpComplete() ([]*storage.Payout, error) {
	return e.store.Complete()
}

func (e *Engine) DumpIncomplete() ([]*storage.Payout, error) {
	return e.store.Incomplete()
}

// InitDB drops and recreates the payout table. Destructive; the
// operator shell prompts before calling it.
func (e *Engine) InitDB() error {
	return e.store.DropAndCreate()
}
