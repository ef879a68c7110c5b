package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestWriteToFile(t *testing.T) {
	r := require.New(t)

	before := testutil.ToFloat64(CacheHits)
	CacheHits.Inc()
	r.Equal(before+1, testutil.ToFloat64(CacheHits))

	r.Equal(0.0, testutil.ToFloat64(FetchResponseStatuses.WithLabelValues("416")))

	path := filepath.Join(t.TempDir(), "nlargest.prom")
	r.NoError(WriteToFile(path))

	data, err := os.ReadFile(path)
	r.NoError(err)
	r.Contains(string(data), "nlargest_cache_hits_total")
	r.Contains(string(data), `nlargest_fetcher_response_statuses_total{status="206"}`)

	r.Error(WriteToFile(filepath.Join(t.TempDir(), "missing", "nlargest.prom")))
}
