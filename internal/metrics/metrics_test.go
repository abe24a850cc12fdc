package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordersIncrement(t *testing.T) {
	before := testutil.ToFloat64(Renewals.WithLabelValues("cached"))
	RecordRenewal("cached")
	assert.Equal(t, before+1, testutil.ToFloat64(Renewals.WithLabelValues("cached")))

	before = testutil.ToFloat64(GuardDecisions.WithLabelValues("edge", "expired"))
	RecordGuard("edge", "expired")
	assert.Equal(t, before+1, testutil.ToFloat64(GuardDecisions.WithLabelValues("edge", "expired")))
}

func TestHandlerServesRegistry(t *testing.T) {
	RecordMint("login")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "auth_tokens_minted_total")
}
