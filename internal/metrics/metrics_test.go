package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := New()
	m.Login(LoginFailure)
	m.Login(LoginFailure)
	m.Login(LoginBlocked)
	m.Lockout("login:1.2.3.4", time.Now())
	m.EntryRejected("granularity")
	m.Request("/login", "401")

	require.Equal(t, 2.0, testutil.ToFloat64(m.logins.WithLabelValues(LoginFailure)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues(LoginBlocked)))
	require.Equal(t, 0.0, testutil.ToFloat64(m.logins.WithLabelValues(LoginSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.lockouts))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("granularity")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/login", "401")))
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := New()
	m.Login(LoginSuccess)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `kizami_login_attempts_total{outcome="success"} 1`)
}
