package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor_VisitsEveryIndexOnce(t *testing.T) {
	configs := map[string]Config{
		"sequential": Sequential(),
		"default":    DefaultConfig(),
		"four":       {Enabled: true, NumWorkers: 4, MinChunkSize: 1},
		"big-chunks": {Enabled: true, NumWorkers: 4, MinChunkSize: 100},
	}

	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			const n = 257
			var hits [n]atomic.Int32
			For(n, func(i int) { hits[i].Add(1) }, cfg)
			for i := range hits {
				assert.Equal(t, int32(1), hits[i].Load(), "index %d", i)
			}
		})
	}
}

func TestFor_Empty(t *testing.T) {
	called := false
	For(0, func(int) { called = true }, DefaultConfig())
	assert.False(t, called)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.GreaterOrEqual(t, cfg.NumWorkers, 1)
	assert.Equal(t, cfg.NumWorkers > 1, cfg.Enabled)
}
