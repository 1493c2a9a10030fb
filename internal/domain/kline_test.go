package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKlineTrueRange(t *testing.T) {
	prev := &Kline{Open: 100, High: 101, Low: 99, Close: 100}
	k := &Kline{Open: 100, High: 102, Low: 100.5, Close: 101}

	assert.InDelta(t, 1.5, k.Range(), 1e-9)
	// Gap over the previous close widens the plain range.
	assert.InDelta(t, 2.0, k.TrueRange(prev), 1e-9)
	// No previous candle degrades to the plain range.
	assert.InDelta(t, 1.5, k.TrueRange(nil), 1e-9)

	// Gap down: the low-to-previous-close leg dominates.
	gapDown := &Kline{Open: 95, High: 96, Low: 94, Close: 95}
	assert.InDelta(t, 6.0, gapDown.TrueRange(prev), 1e-9)
}
