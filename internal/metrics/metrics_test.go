package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInitMetrics_Idempotent(t *testing.T) {
	assert.NotPanics(t, InitMetrics)
	assert.NotPanics(t, InitMetrics)
}

func TestNotificationsCounter(t *testing.T) {
	before := testutil.ToFloat64(NotificationsTotal.WithLabelValues("expired", Result(false)))
	NotificationsTotal.WithLabelValues("expired", Result(false)).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(NotificationsTotal.WithLabelValues("expired", "failed")))
	assert.Equal(t, "ok", Result(true))
}
