package domain

import "time"

// TxState is the state of a single transaction.
// Initialized -> Processing -> {Success, Failed}; terminal states are final.
type TxState int

const (
	TxInitialized TxState = iota
	TxProcessing
	TxSuccess
	TxFailed
)

// String returns a human-readable representation of the state.
func (s TxState) String() string {
	switch s {
	case TxInitialized:
		return "Initialized"
	case TxProcessing:
		return "Processing"
	case TxSuccess:
		return "Success"
	case TxFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the state is Success or Failed.
func (s TxState) Terminal() bool {
	return s == TxSuccess || s == TxFailed
}

// FinalState is the outcome reported at the completion boundary.
type FinalState string

const (
	FinalSuccess FinalState = "success"
	FinalFailed  FinalState = "failed"
	FinalUnknown FinalState = "unknown"
)

// FinalStateOf maps a transaction state to the reported outcome.
func FinalStateOf(s TxState) FinalState {
	switch s {
	case TxSuccess:
		return FinalSuccess
	case TxFailed:
		return FinalFailed
	default:
		return FinalUnknown
	}
}

// Completion is emitted exactly once per finished transaction.
type Completion struct {
	ID            string     `json:"id"`
	Kind          Kind       `json:"kind"`
	Target        string     `json:"target"`
	State         FinalState `json:"state"`
	ResultLocator string     `json:"result_locator,omitempty"`
	Error         string     `json:"error,omitempty"`
	FinishedAt    time.Time  `json:"finished_at"`
}

// Advisory is a one-shot user-facing hint emitted when work could not start.
type Advisory int

const (
	AdviceNone Advisory = iota
	AdviceMessageQueued
	AdviceDownloadLater
)

// String returns the advisory text.
func (a Advisory) String() string {
	switch a {
	case AdviceMessageQueued:
		return "message queued, it will be sent when the network is available"
	case AdviceDownloadLater:
		return "message will be downloaded later"
	default:
		return ""
	}
}

// AdvisoryFor returns the advisory shown when work of kind k cannot start.
func AdvisoryFor(k Kind) Advisory {
	switch k {
	case KindSend:
		return AdviceMessageQueued
	case KindRetrieve:
		return AdviceDownloadLater
	default:
		return AdviceNone
	}
}
