package ports_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sasta-kro/corvus-gateway/internal/ports"
)

func TestNextStartsAtBaseAndIncrements(t *testing.T) {
	allocator := ports.New(3500)

	assert.Equal(t, 3500, allocator.Next())
	assert.Equal(t, 3501, allocator.Next())
	assert.Equal(t, 3502, allocator.Next())
}

func TestNextNeverRepeatsUnderConcurrency(t *testing.T) {
	allocator := ports.New(3500)

	const callers = 200
	allocated := make([]int, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		i := i
		go func() {
			defer wg.Done()
			allocated[i] = allocator.Next()
		}()
	}
	wg.Wait()

	seen := make(map[int]bool, callers)
	for _, port := range allocated {
		assert.False(t, seen[port], "port %d was handed out more than once", port)
		seen[port] = true
	}
	assert.Len(t, seen, callers)
}
