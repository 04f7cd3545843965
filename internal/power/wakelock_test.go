package power

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquireRelease(t *testing.T) {
	w := NewWakeLock("test")

	w.Acquire(time.Minute)
	w.Acquire(time.Minute)
	assert.True(t, w.Held())

	w.Release()
	w.Release()
	assert.False(t, w.Held())

	acquired, released := w.Counts()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
}

func TestTimeoutReleases(t *testing.T) {
	w := NewWakeLock("test")
	w.Acquire(20 * time.Millisecond)

	assert.Eventually(t, func() bool { return !w.Held() }, time.Second, 5*time.Millisecond)

	w.Release()
	_, released := w.Counts()
	assert.Equal(t, 1, released)
}
