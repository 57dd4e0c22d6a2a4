package jsonrpc

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
)

// headerCacheSize bounds the ParseHeader memo cache. Header blocks are
// small and highly repetitive, so a modest cache absorbs almost all
// parsing after warmup.
const headerCacheSize = 512

var contentLengthPattern = regexp.MustCompile(`Content-Length: (\d+)`)

// headerCache memoizes ParseHeader results, evicting the oldest entry
// once full.
type headerCache struct {
	mu      sync.Mutex
	entries map[string]int
	order   []string
}

var parsedHeaders = &headerCache{entries: make(map[string]int)}

func (c *headerCache) get(header string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.entries[header]
	return n, ok
}

func (c *headerCache) put(header string, length int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[header]; ok {
		return
	}
	if len(c.order) >= headerCacheSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[header] = length
	c.order = append(c.order, header)
}

// WrapFrame prepends the Content-Length header block to a JSON body,
// producing one complete wire frame.
func WrapFrame(content []byte) []byte {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(content))
	frame := make([]byte, 0, len(header)+len(content))
	frame = append(frame, header...)
	frame = append(frame, content...)
	return frame
}

// ParseHeader scans a raw header block for the Content-Length field and
// returns the declared body length. It fails with ErrMissingContentLength
// if no such field is present. Results are memoized.
func ParseHeader(header []byte) (int, error) {
	key := string(header)
	if n, ok := parsedHeaders.get(key); ok {
		return n, nil
	}

	match := contentLengthPattern.FindSubmatch(header)
	if match == nil {
		return 0, fmt.Errorf("%w in %q", ErrMissingContentLength, header)
	}

	n, err := strconv.Atoi(string(match[1]))
	if err != nil {
		return 0, fmt.Errorf("%w: bad length %q", ErrMissingContentLength, match[1])
	}

	parsedHeaders.put(key, n)
	return n, nil
}
