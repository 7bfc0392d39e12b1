package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bft-labs/mmsgate/internal/domain"
)

// work is the kind-specific part of a transaction.
type work interface {
	// run performs the network operation and returns the result locator.
	run(ctx context.Context, env txEnv, settings domain.ConnectionSettings) (string, error)
	// fail records a failed attempt against the persisted message, if any.
	fail(ctx context.Context, env txEnv, kind domain.ErrorKind) error
}

// newWork builds the variant for req. target is the already resolved target.
func newWork(req domain.Request, target string, deferDownloads bool) (work, error) {
	switch req.Kind {
	case domain.KindNotify:
		w := &notifyWork{location: target, deferDownload: deferDownloads}
		if len(req.PushPayload) > 0 {
			n, err := domain.ParseNotification(req.PushPayload)
			if err != nil {
				return nil, err
			}
			w.transactionID = n.TransactionID
		}
		return w, nil
	case domain.KindRetrieve:
		return &retrieveWork{id: target}, nil
	case domain.KindSend:
		return &sendWork{id: target}, nil
	case domain.KindAcknowledgeRead:
		return &ackReadWork{id: target}, nil
	case domain.KindUnknown:
	}
	return nil, fmt.Errorf("%w: unsupported kind %s", domain.ErrMalformedRequest, req.Kind)
}

// ackBody is the acknowledgement posted back to the relay.
type ackBody struct {
	TransactionID string `json:"transaction_id,omitempty"`
	Status        string `json:"status"`
}

func acknowledge(ctx context.Context, env txEnv, settings domain.ConnectionSettings, transactionID, status string) error {
	body, err := json.Marshal(ackBody{TransactionID: transactionID, Status: status})
	if err != nil {
		return fmt.Errorf("marshal acknowledgement: %w", err)
	}
	return env.transfer.Acknowledge(ctx, settings, body)
}

// notifyWork handles an incoming notification. The notification is stored
// before any download so a failed attempt is found again by the next scan
// as Retrieve work.
type notifyWork struct {
	location      string
	transactionID string
	deferDownload bool

	id string
}

func (w *notifyWork) run(ctx context.Context, env txEnv, settings domain.ConnectionSettings) (string, error) {
	msg := domain.Message{
		MessageType:     domain.MessageTypeNotificationInd,
		ContentLocation: w.location,
		TransactionID:   w.transactionID,
		Status:          domain.StatusPending,
		UpdatedAt:       env.clock.Now(),
	}
	id, err := env.store.Save(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("store notification: %w", err)
	}
	w.id = id

	if w.deferDownload {
		if err := acknowledge(ctx, env, settings, w.transactionID, "deferred"); err != nil {
			return "", err
		}
		return id, nil
	}

	body, err := env.transfer.Retrieve(ctx, settings, w.location)
	if err != nil {
		return "", err
	}
	msg.ID = id
	msg.MessageType = domain.MessageTypeRetrieveConf
	msg.Body = body
	msg.Status = domain.StatusDone
	msg.UpdatedAt = env.clock.Now()
	if _, err := env.store.Save(ctx, msg); err != nil {
		return "", fmt.Errorf("store message: %w", err)
	}
	if err := acknowledge(ctx, env, settings, w.transactionID, "retrieved"); err != nil {
		return "", err
	}
	return id, nil
}

func (w *notifyWork) fail(ctx context.Context, env txEnv, kind domain.ErrorKind) error {
	if w.id == "" {
		return nil
	}
	return env.store.MarkFailed(ctx, w.id, kind)
}

// retrieveWork downloads a previously deferred notification.
type retrieveWork struct {
	id string
}

func (w *retrieveWork) run(ctx context.Context, env txEnv, settings domain.ConnectionSettings) (string, error) {
	msg, err := env.store.Load(ctx, w.id)
	if err != nil {
		return "", fmt.Errorf("load notification %s: %w", w.id, err)
	}
	if msg.ContentLocation == "" {
		return "", fmt.Errorf("%w: notification %s has no content location", domain.ErrMalformedRequest, w.id)
	}

	body, err := env.transfer.Retrieve(ctx, settings, msg.ContentLocation)
	if err != nil {
		return "", err
	}

	msg.MessageType = domain.MessageTypeRetrieveConf
	msg.Body = body
	msg.Status = domain.StatusDone
	msg.LastError = domain.FailureNone
	msg.UpdatedAt = env.clock.Now()
	id, err := env.store.Save(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("store message: %w", err)
	}
	if err := acknowledge(ctx, env, settings, msg.TransactionID, "acknowledged"); err != nil {
		return "", err
	}
	return id, nil
}

func (w *retrieveWork) fail(ctx context.Context, env txEnv, kind domain.ErrorKind) error {
	return env.store.MarkFailed(ctx, w.id, kind)
}

// sendWork posts an outbound message.
type sendWork struct {
	id string
}

func (w *sendWork) run(ctx context.Context, env txEnv, settings domain.ConnectionSettings) (string, error) {
	msg, err := env.store.Load(ctx, w.id)
	if err != nil {
		return "", fmt.Errorf("load outbound message %s: %w", w.id, err)
	}

	remoteID, err := env.transfer.Send(ctx, settings, msg.Body)
	if err != nil {
		return "", err
	}

	msg.RemoteID = remoteID
	msg.Status = domain.StatusSent
	msg.LastError = domain.FailureNone
	msg.UpdatedAt = env.clock.Now()
	if _, err := env.store.Save(ctx, msg); err != nil {
		return "", fmt.Errorf("mark sent: %w", err)
	}
	return w.id, nil
}

func (w *sendWork) fail(ctx context.Context, env txEnv, kind domain.ErrorKind) error {
	return env.store.MarkFailed(ctx, w.id, kind)
}

// ackReadWork posts a read report.
type ackReadWork struct {
	id string
}

func (w *ackReadWork) run(ctx context.Context, env txEnv, settings domain.ConnectionSettings) (string, error) {
	msg, err := env.store.Load(ctx, w.id)
	if err != nil {
		return "", fmt.Errorf("load read report %s: %w", w.id, err)
	}

	if err := env.transfer.Acknowledge(ctx, settings, msg.Body); err != nil {
		return "", err
	}

	msg.Status = domain.StatusDone
	msg.LastError = domain.FailureNone
	msg.UpdatedAt = env.clock.Now()
	if _, err := env.store.Save(ctx, msg); err != nil {
		return "", fmt.Errorf("mark done: %w", err)
	}
	return "", nil
}

func (w *ackReadWork) fail(ctx context.Context, env txEnv, kind domain.ErrorKind) error {
	return env.store.MarkFailed(ctx, w.id, kind)
}
