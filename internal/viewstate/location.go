package viewstate

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// ParseLocation splits a page address of the form <base>/<encodingId>/<iteration>.
// The iteration segment is returned as is; callers decide how to treat a
// segment that is not an integer.
func ParseLocation(href string) (base, encodingID, iteration string, err error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", "", "", fmt.Errorf("parse location %q: %w", href, err)
	}

	segments := strings.Split(strings.TrimSuffix(u.EscapedPath(), "/"), "/")
	if len(segments) < 3 {
		return "", "", "", fmt.Errorf("location %q has no encoding and iteration", href)
	}
	n := len(segments)

	if encodingID, err = url.PathUnescape(segments[n-2]); err != nil {
		return "", "", "", fmt.Errorf("parse location %q: %w", href, err)
	}
	if iteration, err = url.PathUnescape(segments[n-1]); err != nil {
		return "", "", "", fmt.Errorf("parse location %q: %w", href, err)
	}
	if encodingID == "" {
		return "", "", "", fmt.Errorf("location %q has an empty encoding id", href)
	}

	u.RawPath = ""
	u.Path, _ = url.PathUnescape(strings.Join(segments[:n-2], "/"))
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), encodingID, iteration, nil
}

// FormatPath builds the page address of an encoding iteration under base.
func FormatPath(base, encodingID string, iteration int) string {
	return strings.TrimSuffix(base, "/") + "/" + url.PathEscape(encodingID) + "/" + strconv.Itoa(iteration)
}

// WithIteration rewrites the trailing iteration segment of href.
func WithIteration(href string, iteration int) (string, error) {
	base, encodingID, _, err := ParseLocation(href)
	if err != nil {
		return "", err
	}
	return FormatPath(base, encodingID, iteration), nil
}

// MemoryHistory is an in-memory Location with back and forward navigation.
type MemoryHistory struct {
	mu      sync.Mutex
	entries []string
	pos     int
}

// NewMemoryHistory starts a history at href.
func NewMemoryHistory(href string) *MemoryHistory {
	return &MemoryHistory{entries: []string{href}}
}

// Href returns the current address.
func (h *MemoryHistory) Href() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.pos]
}

// Push appends href and drops any forward entries.
func (h *MemoryHistory) Push(href string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries[:h.pos+1], href)
	h.pos++
}

// Back moves one entry back. It reports false at the first entry.
func (h *MemoryHistory) Back() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pos == 0 {
		return false
	}
	h.pos--
	return true
}

// Forward moves one entry forward. It reports false at the last entry.
func (h *MemoryHistory) Forward() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pos == len(h.entries)-1 {
		return false
	}
	h.pos++
	return true
}

// Len returns the number of entries.
func (h *MemoryHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
