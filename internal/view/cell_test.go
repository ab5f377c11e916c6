package view

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alasdair-cooper/watch-history/internal/ir"
)

func TestCellStartsEmpty(t *testing.T) {
	c := NewCell()
	require.NotNil(t, c.Load())
	assert.Empty(t, c.Load().Log)
	assert.Equal(t, uint64(0), c.Version())
}

func TestCellStoreReplaces(t *testing.T) {
	c := NewCell()
	changed := c.Changed()

	v := &ir.ViewModel{Log: []ir.LogEntry{{Message: "Event: InitialLoad"}}}
	assert.Equal(t, uint64(1), c.Store(v))
	assert.Same(t, v, c.Load())

	select {
	case <-changed:
	default:
		t.Fatal("Changed was not signalled")
	}

	assert.Equal(t, uint64(2), c.Store(nil))
	assert.NotNil(t, c.Load())
}

// Readers must only ever see a whole snapshot: either every field from one
// Store or every field from another.
func TestCellConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	c := NewCell()
	stop := make(chan struct{})
	var wg sync.WaitGroup

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				v := c.Load()
				if len(v.Films) == 0 {
					continue
				}
				title := v.Films[0].Title
				for _, f := range v.Films {
					assert.Equal(t, title, f.Title)
				}
				if assert.NotNil(t, v.UserInfo) {
					assert.Equal(t, title, v.UserInfo.Name)
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		name := string(rune('a' + i%26))
		films := make([]ir.WatchedFilm, 5)
		for j := range films {
			films[j] = ir.WatchedFilm{Title: name}
		}
		c.Store(&ir.ViewModel{Films: films, UserInfo: &ir.UserInfo{Name: name}})
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, uint64(500), c.Version())
}

func TestCellChangedWakesWaiters(t *testing.T) {
	c := NewCell()
	changed := c.Changed()
	woke := make(chan uint64)
	go func() {
		<-changed
		woke <- c.Version()
	}()

	c.Store(&ir.ViewModel{})
	select {
	case v := <-woke:
		assert.GreaterOrEqual(t, v, uint64(1))
	case <-time.After(time.Second):
		t.Fatal("waiter not woken")
	}
}
