package cache

import (
	"testing"

	"github.com/dmmcquay/katago-retro/internal/config"
	"github.com/dmmcquay/katago-retro/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testQuery struct {
	Moves     [][2]string `json:"moves"`
	MaxVisits int         `json:"maxVisits"`
}

type testResult struct {
	Winrate float64  `json:"winrate"`
	PV      []string `json:"pv"`
}

func testLogger() logging.ContextLogger {
	return logging.NewLoggerAdapter(logging.NewLogger("test: ", "error"))
}

func enabledConfig() *config.CacheConfig {
	return &config.CacheConfig{
		Enabled:      true,
		MaxItems:     10,
		MaxSizeBytes: 4096,
		TTLSeconds:   60,
	}
}

func TestKey(t *testing.T) {
	q1 := testQuery{Moves: [][2]string{{"B", "D4"}, {"W", "Q16"}}, MaxVisits: 100}

	key1, err := Key(q1)
	require.NoError(t, err)
	assert.Len(t, key1, 64)

	key2, err := Key(q1)
	require.NoError(t, err)
	assert.Equal(t, key1, key2)

	q2 := q1
	q2.MaxVisits = 200
	key3, err := Key(q2)
	require.NoError(t, err)
	assert.NotEqual(t, key1, key3, "visits are part of the key")

	_, err = Key(func() {})
	assert.Error(t, err)
}

func TestManager_GetPut(t *testing.T) {
	manager := NewManager[testResult](enabledConfig(), testLogger())
	require.True(t, manager.IsEnabled())

	value := testResult{Winrate: 0.55, PV: []string{"D4", "Q16"}}
	manager.Put("test-key-0123456789", value)

	got, ok := manager.Get("test-key-0123456789")
	assert.True(t, ok)
	assert.Equal(t, value, got)

	_, ok = manager.Get("missing")
	assert.False(t, ok)

	stats := manager.Stats()
	assert.Equal(t, 1, stats.Items)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, EstimateSize(value), stats.Size)

	manager.Clear()
	assert.Equal(t, 0, manager.Stats().Items)
}

func TestManager_Disabled(t *testing.T) {
	for _, cfg := range []*config.CacheConfig{nil, {Enabled: false, MaxItems: 10}} {
		manager := NewManager[testResult](cfg, testLogger())
		assert.False(t, manager.IsEnabled())

		manager.Put("k", testResult{Winrate: 1})
		_, ok := manager.Get("k")
		assert.False(t, ok)
		assert.Equal(t, Stats{}, manager.Stats())
		manager.Clear()
	}
}

func TestEstimateSize(t *testing.T) {
	assert.Equal(t, int64(len(`{"winrate":0.5,"pv":null}`)), EstimateSize(testResult{Winrate: 0.5}))
	assert.Equal(t, int64(1024), EstimateSize(make(chan int)))
}
