package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReadMainCntAdvances(t *testing.T) {
	m := NewMonotonic()
	first := m.ReadMainCnt()
	time.Sleep(time.Millisecond)
	second := m.ReadMainCnt()
	assert.True(t, m.IsGreater(second, first))
}

func TestGetCntAfterPeriod(t *testing.T) {
	m := NewMonotonic()
	now := m.ReadMainCnt()
	deadline := m.GetCntAfterPeriod(now, 10*time.Millisecond)
	assert.True(t, m.IsGreater(deadline, now))
	assert.False(t, m.IsTimePassed(deadline))

	time.Sleep(15 * time.Millisecond)
	assert.True(t, m.IsTimePassed(deadline))
}

func TestIsGreaterStrict(t *testing.T) {
	m := NewMonotonic()
	c := m.ReadMainCnt()
	assert.False(t, m.IsGreater(c, c))
}
