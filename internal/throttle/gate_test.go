package throttle

import (
	"math"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

type fakeStatus struct {
	searching bool
	sheet     bool
}

func (f *fakeStatus) Searching() bool    { return f.searching }
func (f *fakeStatus) SheetVisible() bool { return f.sheet }

func TestGate_EveryNthFrame(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("frame n passes iff n mod N == 0", prop.ForAll(
		func(interval, frames int) bool {
			g := NewGate(&fakeStatus{}, interval)
			for n := 1; n <= frames; n++ {
				if g.ShouldProcess() != (n%interval == 0) {
					return false
				}
			}
			return g.Count() == uint64(frames)
		},
		gen.IntRange(1, 60), gen.IntRange(0, 300),
	))

	properties.TestingRun(t)
}

func TestGate_SuspendedWhileSearchingOrSheetVisible(t *testing.T) {
	st := &fakeStatus{}
	g := NewGate(st, 1)

	assert.True(t, g.ShouldProcess())

	st.searching = true
	assert.False(t, g.ShouldProcess())

	st.searching = false
	st.sheet = true
	assert.False(t, g.ShouldProcess())

	st.sheet = false
	assert.True(t, g.ShouldProcess())
	assert.Equal(t, uint64(2), g.Count(), "suspended frames are not counted")
}

func TestGate_DropsMultipleOfNWhileSearching(t *testing.T) {
	st := &fakeStatus{}
	g := NewGate(st, 3)
	assert.False(t, g.ShouldProcess())
	assert.False(t, g.ShouldProcess())

	st.searching = true
	assert.False(t, g.ShouldProcess())

	st.searching = false
	assert.True(t, g.ShouldProcess())
}

func TestGate_IntervalBelowOne(t *testing.T) {
	g := NewGate(nil, 0)
	assert.Equal(t, 1, g.Interval())
	assert.True(t, g.ShouldProcess())

	g.SetInterval(-4)
	assert.Equal(t, 1, g.Interval())
}

func TestGate_CounterWraps(t *testing.T) {
	g := NewGate(nil, 15)
	g.counter.Store(math.MaxUint64)

	assert.NotPanics(t, func() {
		assert.True(t, g.ShouldProcess())
	})
	assert.Equal(t, uint64(0), g.Count())
}

func TestGate_Concurrent(t *testing.T) {
	g := NewGate(&fakeStatus{}, 10)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		passed int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 125 {
				if g.ShouldProcess() {
					mu.Lock()
					passed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(1000), g.Count())
	assert.Equal(t, 100, passed)
}
