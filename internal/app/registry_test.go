package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bft-labs/mmsgate/internal/domain"
)

func testTx(kind domain.Kind, target string) *Transaction {
	return newTransaction(target+"-id", kind, target, &sendWork{id: target}, txEnv{})
}

func TestRegistry_FIFO(t *testing.T) {
	r := NewRegistry()
	a := testTx(domain.KindSend, "a")
	b := testTx(domain.KindSend, "b")
	c := testTx(domain.KindSend, "c")

	r.PushPending(a)
	r.PushPending(b)
	r.PushPending(c)

	assert.Same(t, a, r.PopPending())
	r.RequeueFront(a)
	assert.Same(t, a, r.PopPending())
	assert.Same(t, b, r.PopPending())
	assert.Same(t, c, r.PopPending())
	assert.Nil(t, r.PopPending())
	assert.True(t, r.Empty())
}

func TestRegistry_FindEquivalent(t *testing.T) {
	r := NewRegistry()
	queued := testTx(domain.KindSend, "m1")
	running := testTx(domain.KindRetrieve, "m2")
	r.PushPending(queued)
	r.AddProcessing(running)

	tests := []struct {
		name string
		tx   *Transaction
		want *Transaction
	}{
		{"pending match", testTx(domain.KindSend, "m1"), queued},
		{"processing match", testTx(domain.KindRetrieve, "m2"), running},
		{"different kind", testTx(domain.KindRetrieve, "m1"), nil},
		{"different target", testTx(domain.KindSend, "m3"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.FindEquivalent(tt.tx))
		})
	}
}

func TestRegistry_RemoveByIdentity(t *testing.T) {
	r := NewRegistry()
	a := testTx(domain.KindSend, "a")
	twin := testTx(domain.KindSend, "a")
	r.AddProcessing(a)

	assert.False(t, r.RemoveProcessing(twin))
	assert.Equal(t, 1, r.ProcessingLen())
	assert.True(t, r.RemoveProcessing(a))
	assert.False(t, r.RemoveProcessing(a))

	r.PushPending(a)
	assert.True(t, r.RemovePending(a))
	assert.Equal(t, 0, r.PendingLen())
}

func TestRegistry_Keys(t *testing.T) {
	r := NewRegistry()
	r.PushPending(testTx(domain.KindSend, "a"))
	r.PushPending(testTx(domain.KindAcknowledgeRead, "b"))
	r.AddProcessing(testTx(domain.KindNotify, "c"))

	assert.Equal(t, []domain.Key{
		{Kind: domain.KindSend, Target: "a"},
		{Kind: domain.KindAcknowledgeRead, Target: "b"},
	}, r.PendingKeys())
	assert.Equal(t, []domain.Key{{Kind: domain.KindNotify, Target: "c"}}, r.ProcessingKeys())
}

func TestAdmission_String(t *testing.T) {
	assert.Equal(t, "Rejected", AdmissionRejected.String())
	assert.Equal(t, "AlreadyHandled", AdmissionAlreadyHandled.String())
	assert.Equal(t, "Deferred", AdmissionDeferred.String())
	assert.Equal(t, "Started", AdmissionStarted.String())
}
