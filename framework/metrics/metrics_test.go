package metrics_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-singleton/framework/metrics"
	"github.com/km-arc/go-singleton/framework/singleton"
)

type counter struct{ singleton.Base }

func TestObserve_CountsCreationsAndTransitions(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	a := singleton.NewArena()
	sub := m.Observe(a)

	c, err := singleton.Current[*counter](a)
	require.NoError(t, err)
	require.NoError(t, c.Dispose())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Created.WithLabelValues("accessor")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Created.WithLabelValues("constructor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("Initialized", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("Disposed", "true")))

	require.True(t, a.Unobserve(sub))
	_, err = singleton.New(a, &counter{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Created.WithLabelValues("constructor")))
}

func TestRecordFailure_LabelsByCause(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.RecordFailure(nil)
	m.RecordFailure(singleton.ErrNoDispose)
	m.RecordFailure(errors.New("plain"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("NoDispose")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("Unknown")))
}

func TestSetRegistryEntries(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	m.SetRegistryEntries(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RegistryEntries))
}
