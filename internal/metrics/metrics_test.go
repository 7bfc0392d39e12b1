package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/mmsgate/internal/app"
	"github.com/bft-labs/mmsgate/internal/domain"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.Admitted(domain.KindSend, "Started")
	r.Admitted(domain.KindSend, "Started")
	r.Admitted(domain.KindRetrieve, "Deferred")
	assert.Equal(t, 2.0, testutil.ToFloat64(r.admissions.WithLabelValues("send", "Started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.admissions.WithLabelValues("retrieve", "Deferred")))

	r.Completed(domain.Completion{Kind: domain.KindSend, State: domain.FinalSuccess})
	r.Completed(domain.Completion{Kind: domain.KindSend, State: domain.FinalFailed})
	r.Completed(domain.Completion{Kind: domain.KindRetrieve, State: domain.FinalSuccess, ResultLocator: "m1"})
	r.Completed(domain.Completion{Kind: domain.KindNotify, State: domain.FinalSuccess})
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sent))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.received))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.completions.WithLabelValues("send", "failed")))

	r.Renewed("AlreadyActive")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.renewals.WithLabelValues("AlreadyActive")))
}

func TestRecorder_Gauges(t *testing.T) {
	r := NewRecorder()

	r.QueueDepth(3, 1)
	r.Lease(app.LeaseActive)
	assert.Equal(t, 3.0, testutil.ToFloat64(r.pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.processing))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.lease))

	r.Lease(app.LeaseInactive)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.lease))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.QueueDepth(2, 0)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mmsgate_pending_transactions 2")
}
