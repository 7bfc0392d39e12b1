package app

import "github.com/bft-labs/mmsgate/internal/domain"

// Admission is the outcome of admitting a transaction.
type Admission int

const (
	// AdmissionRejected accompanies an error; nothing was queued.
	AdmissionRejected Admission = iota
	// AdmissionAlreadyHandled means equivalent work is already queued or running.
	AdmissionAlreadyHandled
	// AdmissionDeferred means the transaction waits in pending for connectivity.
	AdmissionDeferred
	// AdmissionStarted means the transaction is processing.
	AdmissionStarted
)

// String returns a human-readable representation of the admission.
func (a Admission) String() string {
	switch a {
	case AdmissionRejected:
		return "Rejected"
	case AdmissionAlreadyHandled:
		return "AlreadyHandled"
	case AdmissionDeferred:
		return "Deferred"
	case AdmissionStarted:
		return "Started"
	default:
		return "Unknown"
	}
}

// Registry holds the pending queue and the processing set.
// It is not safe for concurrent use; the dispatcher owns it.
type Registry struct {
	pending    []*Transaction
	processing []*Transaction
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// FindEquivalent returns the queued or running transaction equivalent to tx.
// Pending is scanned before processing.
func (r *Registry) FindEquivalent(tx *Transaction) *Transaction {
	for _, p := range r.pending {
		if p.IsEquivalent(tx) {
			return p
		}
	}
	for _, p := range r.processing {
		if p.IsEquivalent(tx) {
			return p
		}
	}
	return nil
}

// PushPending appends tx to the back of the pending queue.
func (r *Registry) PushPending(tx *Transaction) {
	r.pending = append(r.pending, tx)
}

// RequeueFront puts a transaction popped from pending back at the head.
func (r *Registry) RequeueFront(tx *Transaction) {
	r.pending = append([]*Transaction{tx}, r.pending...)
}

// PopPending removes and returns the oldest pending transaction, or nil.
func (r *Registry) PopPending() *Transaction {
	if len(r.pending) == 0 {
		return nil
	}
	tx := r.pending[0]
	r.pending[0] = nil
	r.pending = r.pending[1:]
	return tx
}

// AddProcessing records tx as running.
func (r *Registry) AddProcessing(tx *Transaction) {
	r.processing = append(r.processing, tx)
}

// RemoveProcessing drops tx from the processing set by identity.
func (r *Registry) RemoveProcessing(tx *Transaction) bool {
	for i, p := range r.processing {
		if p == tx {
			r.processing = append(r.processing[:i], r.processing[i+1:]...)
			return true
		}
	}
	return false
}

// RemovePending drops tx from the pending queue by identity.
func (r *Registry) RemovePending(tx *Transaction) bool {
	for i, p := range r.pending {
		if p == tx {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return true
		}
	}
	return false
}

// PendingLen returns the number of pending transactions.
func (r *Registry) PendingLen() int { return len(r.pending) }

// ProcessingLen returns the number of running transactions.
func (r *Registry) ProcessingLen() int { return len(r.processing) }

// Empty reports whether both collections are empty.
func (r *Registry) Empty() bool {
	return len(r.pending) == 0 && len(r.processing) == 0
}

// PendingKeys returns the keys of pending transactions in queue order.
func (r *Registry) PendingKeys() []domain.Key {
	return keysOf(r.pending)
}

// ProcessingKeys returns the keys of running transactions.
func (r *Registry) ProcessingKeys() []domain.Key {
	return keysOf(r.processing)
}

func keysOf(txs []*Transaction) []domain.Key {
	keys := make([]domain.Key, len(txs))
	for i, tx := range txs {
		keys[i] = tx.Key()
	}
	return keys
}
