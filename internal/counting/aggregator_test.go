package counting

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestAggregator(t *testing.T) {
	a := NewAggregator()
	a.Add(CrossingEvent{ID: 1, Label: "jaune", Direction: DirectionUp})
	a.Add(CrossingEvent{ID: 2, Label: "jaune", Direction: DirectionUp})
	a.Add(CrossingEvent{ID: 3, Label: "rose", Direction: DirectionDown})

	assert.Equal(t, 2, a.Count("jaune"))
	assert.Equal(t, 0, a.Count("noir"))
	assert.Equal(t, 3, a.Total())
	if diff := cmp.Diff(map[string]int{"jaune": 2, "rose": 1}, a.Totals()); diff != "" {
		t.Errorf("Totals mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{DirectionUp: 2, DirectionDown: 1}, a.Directions()); diff != "" {
		t.Errorf("Directions mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregator_TotalsIsCopy(t *testing.T) {
	a := NewAggregator()
	a.Add(CrossingEvent{Label: "blanc"})
	totals := a.Totals()
	totals["blanc"] = 100
	assert.Equal(t, 1, a.Count("blanc"))
}

func TestAggregator_Restore(t *testing.T) {
	a := NewAggregator()
	a.Add(CrossingEvent{Label: "noir"})
	a.Restore(map[string]int{"jaune": 4, "rose": 2})

	assert.Equal(t, 6, a.Total())
	assert.Equal(t, 0, a.Count("noir"))

	a.Add(CrossingEvent{Label: "jaune", Direction: DirectionUp})
	assert.Equal(t, 5, a.Count("jaune"))
	assert.Equal(t, 7, a.Total())
}

func TestAggregator_ConcurrentReads(t *testing.T) {
	a := NewAggregator()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = a.Totals()
				_ = a.Total()
			}
		}()
	}
	for j := 0; j < 100; j++ {
		a.Add(CrossingEvent{Label: "vert_clair"})
	}
	wg.Wait()
	assert.Equal(t, 100, a.Total())
}
