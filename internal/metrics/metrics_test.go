package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCountsOutcomes(t *testing.T) {
	r := NewRecorder()
	before := testutil.ToFloat64(RedemptionsTotal.WithLabelValues("full"))

	r.ObserveRedemption("full", 3*time.Millisecond)
	r.ObserveRedemption("full", 4*time.Millisecond)

	assert.Equal(t, before+2, testutil.ToFloat64(RedemptionsTotal.WithLabelValues("full")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	NewRecorder().ObserveReset("ok")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "checkin_resets_total"))
}
