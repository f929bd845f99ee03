package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToMinorUnits(t *testing.T) {
	// Two-decimal default.
	assert.Equal(t, int64(4999), toMinorUnits(49.99, "USD"))
	assert.Equal(t, int64(1000), toMinorUnits(10, "eur"))

	// Zero-decimal: charged in whole units.
	assert.Equal(t, int64(500), toMinorUnits(500, "JPY"))
	assert.Equal(t, int64(1200), toMinorUnits(1200, "KRW"))

	// Three-decimal: charged in mills.
	assert.Equal(t, int64(1250), toMinorUnits(1.25, "KWD"))
	assert.Equal(t, int64(9001), toMinorUnits(9.001, "BHD"))
}
