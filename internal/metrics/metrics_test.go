package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	misses := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("miss"))

	RecordCacheLookup(true)
	RecordCacheLookup(false)
	RecordCacheLookup(false)

	assert.InDelta(t, hits+1, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit")), 0)
	assert.InDelta(t, misses+2, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("miss")), 0)
}

func TestTaskGauge(t *testing.T) {
	before := testutil.ToFloat64(tasksInFlight)

	TaskStarted()
	assert.InDelta(t, before+1, testutil.ToFloat64(tasksInFlight), 0)

	TaskFinished("listing", true)
	assert.InDelta(t, before, testutil.ToFloat64(tasksInFlight), 0)
}

func TestHandler_ExposesInstruments(t *testing.T) {
	RecordRemoteCall("openFile/list", true)
	RecordListing(2, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alipan_remote_calls_total")
	assert.Contains(t, rec.Body.String(), "alipan_listing_pages_total")
}
