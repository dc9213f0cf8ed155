package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRecord(t *testing.T) {
	m := New()
	m.BlockHeight(42)
	m.TickFailed()
	m.Fetched("balance", time.Millisecond, nil)
	m.Fetched("balance", time.Millisecond, errors.New("boom"))
	m.Command("createLock", "confirmed")
	m.Mounted(3)

	assert.Equal(t, 42.0, testutil.ToFloat64(m.blockHeight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tickErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("balance", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("balance", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("createLock", "confirmed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.mounts))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.BlockHeight(1)
	m.TickFailed()
	m.Fetched("x", 0, nil)
	m.Command("a", "b")
	m.Mounted(1)
}

func TestHandlerServesText(t *testing.T) {
	m := New()
	m.BlockHeight(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "workhard_block_height 7"))
}
