package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/localnerve/formentries/internal/ledger"
	"github.com/localnerve/formentries/internal/media"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.Lifecycle("delete", "entry", nil)
	m.Removed("delete", 1, 1)
	m.Created("entry")
	m.PurgeChunk("entries", time.Now(), nil)
	m.Contention()
	m.MediaRemoved(media.Removal{})
}

func TestInitRecords(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := Init(registry)
	require.NotNil(t, m)
	assert.Same(t, m, Init(nil), "Init registers once")

	m.Lifecycle("archive", "entry", nil)
	m.Lifecycle("archive", "entry", errors.New("boom"))
	m.Removed("archive", 5, 2)
	m.Contention()
	m.MediaRemoved(media.Removal{Buckets: map[string]ledger.MediaCount{"photo": {Files: 3, Bytes: 30}}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LifecycleOps.WithLabelValues("archive", "entry", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LifecycleOps.WithLabelValues("archive", "entry", "error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.RowsRemoved.WithLabelValues("archive", "entry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockContention))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.MediaBytesDeleted.WithLabelValues("photo")))
}
