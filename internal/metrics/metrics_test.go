package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordTick("a1", ResultOK, time.Second)
	r.RecordTick("a1", ResultSkipped, 0)
	r.RecordFeedFetch("price", nil)
	r.RecordFeedFetch("price", errors.New("timeout"))
	r.RecordTrade("swap", "BUY")
	r.SetVaultValue("a1", 1250)
	r.RecordEvent(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.ticks.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ticks.WithLabelValues(ResultSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.feedFetches.WithLabelValues("price", ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.trades.WithLabelValues("swap", "BUY")))
	assert.Equal(t, 1250.0, testutil.ToFloat64(r.vaultValue.WithLabelValues("a1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.events.WithLabelValues(ResultOK)))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordTick("a1", ResultOK, time.Second)
		r.RecordFeedFetch("price", nil)
		r.RecordSignal("swap", "BUY")
		r.RecordSkillError("swap", "analyze")
		r.RecordTrade("swap", "BUY")
		r.SetVaultValue("a1", 1)
		r.RecordEvent(nil)
	})
}
