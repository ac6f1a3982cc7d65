package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/inspira/pkg/metrics"
)

func TestCollectorsAreIndependent(t *testing.T) {
	a := metrics.New("inspira")
	b := metrics.New("inspira")

	a.ObserveStored(3)
	a.ObserveSearch(nil)
	a.ObserveSearch(errors.New("boom"))
	a.ObserveUpload("processed")

	assert.Equal(t, 3.0, testutil.ToFloat64(a.ChunksStored))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ChunksStored))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.VaultSearches.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Uploads.WithLabelValues("processed")))
}

func TestNilCollector(t *testing.T) {
	var c *metrics.Collector
	assert.NotPanics(t, func() {
		c.ObserveStored(1)
		c.ObserveSearch(nil)
		c.ObserveUpload("failed")
	})
}

func TestHandler(t *testing.T) {
	c := metrics.New("inspira")
	c.ObserveStored(2)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "inspira_vault_chunks_stored_total 2")
}
