package main

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperationMetrics(t *testing.T) {
	var om OperationMetrics
	for i := 1; i <= 20; i++ {
		om.Record(time.Duration(i)*time.Millisecond, i%2 == 0, i%5 == 0)
	}

	assert.EqualValues(t, 20, om.Total)
	assert.EqualValues(t, 10, om.Success)
	assert.EqualValues(t, 2, om.Conflict, "odd multiples of five")
	assert.EqualValues(t, 8, om.Error)

	avg, p50, p95, worst := om.Stats()
	assert.Equal(t, 10500*time.Microsecond, avg)
	assert.Equal(t, 11*time.Millisecond, p50)
	assert.Equal(t, 20*time.Millisecond, p95)
	assert.Equal(t, 20*time.Millisecond, worst)
}

func TestTargetStaysOnGrid(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	from := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		got := target(rng, from)
		assert.Zero(t, got.Minute()%15)
		assert.LessOrEqual(t, got.Sub(from), 25*time.Hour)
		assert.GreaterOrEqual(t, got.Sub(from), -time.Hour)
	}
}
