package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordAggregatesStats(t *testing.T) {
	a := New(50 * time.Millisecond)
	a.Record("SELECT * FROM memories WHERE id = $1", 10*time.Millisecond)
	a.Record("select   *  from memories where id = $1", 20*time.Millisecond)

	stats := a.Stats()
	assert.Len(t, stats, 1)
	for _, s := range stats {
		assert.Equal(t, int64(2), s.Count)
		assert.Equal(t, 20*time.Millisecond, s.MaxLatency)
	}
}

func TestRecordCapturesSlowQueries(t *testing.T) {
	a := New(50 * time.Millisecond)
	a.Record("SELECT * FROM memories", 10*time.Millisecond)
	a.Record("SELECT * FROM blocks", 100*time.Millisecond)

	slow := a.SlowQueries()
	assert.Len(t, slow, 1)
	assert.Equal(t, "select * from blocks", slow[0].Normalized)
}

func TestSlowQueryRingWraps(t *testing.T) {
	a := New(0)
	for i := 0; i < ringCapacity+10; i++ {
		a.Record("SELECT * FROM memories", time.Millisecond)
	}
	assert.Len(t, a.SlowQueries(), ringCapacity)
}

func TestTopSlowest(t *testing.T) {
	a := New(0)
	a.Record("SELECT * FROM memories", 5*time.Millisecond)
	a.Record("SELECT * FROM blocks", 50*time.Millisecond)
	a.Record("SELECT * FROM edges", 20*time.Millisecond)

	top := a.TopSlowest(2)
	assert.Len(t, top, 2)
}
