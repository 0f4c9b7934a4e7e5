package naming

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCachedParser_MatchesParse(t *testing.T) {
	c := NewCachedParser(8)
	name := "Show.Name.S01E02.1080p.WEB-DL.mkv"

	first := c.Parse(name)
	second := c.Parse(name)

	assert.Equal(t, Parse(name), first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.Len())
}

func TestCachedParser_Evicts(t *testing.T) {
	c := NewCachedParser(4)
	for i := 0; i < 10; i++ {
		c.Parse(fmt.Sprintf("Show.S01E%02d.mkv", i+1))
	}
	assert.Equal(t, 4, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCachedParser_ConcurrentUse(t *testing.T) {
	c := NewCachedParser(0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info := c.Parse(fmt.Sprintf("Show.S01E%02d.mkv", i%4+1))
			assert.Equal(t, "Show", info.Title)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, c.Len())
}
