package raffle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusAt(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	draw := end.Add(time.Hour)

	assert.Equal(t, Upcoming, StatusAt(start.Add(-time.Second), start, end, draw, false))
	assert.Equal(t, Open, StatusAt(start, start, end, draw, false))
	assert.Equal(t, Open, StatusAt(end, start, end, draw, false))
	assert.Equal(t, Closed, StatusAt(end.Add(time.Second), start, end, draw, false))
	assert.Equal(t, ReadyToDraw, StatusAt(draw, start, end, draw, false))
	assert.Equal(t, Drawn, StatusAt(start.Add(-time.Hour), start, end, draw, true))
}
