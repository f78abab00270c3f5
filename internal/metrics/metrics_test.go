package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.Escalation("overdue", "high")
	r.Escalation("overdue", "high")
	r.Notification("task_escalated", "webhook", false)
	r.AuditWrite(true)
	r.EscalationRun(150 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.escalations.WithLabelValues("overdue", "high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notifications.WithLabelValues("task_escalated", "webhook", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.auditWrites.WithLabelValues("success")))

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	res, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	assert.True(t, strings.Contains(string(body), "onboardline_escalations_total"))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Escalation("blocker", "critical")
	r.Notification("x", "log", true)
	r.Validation("SIS", "passed")
	r.AuditWrite(false)
	r.EscalationRun(time.Second)
	assert.NotNil(t, r.Handler())
	assert.NotNil(t, r.Gatherer())
}
