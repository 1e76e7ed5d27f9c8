package pipeline

import (
	"sync"

	"github.com/banshee-data/camspeed/internal/speed"
)

// OverlayCache keeps the most recent frame's overlays for readers on other
// goroutines, such as HTTP handlers.
type OverlayCache struct {
	mu       sync.RWMutex
	frame    int64
	overlays []speed.Overlay
	valid    bool
}

// NewOverlayCache returns an empty cache.
func NewOverlayCache() *OverlayCache {
	return &OverlayCache{}
}

// PublishOverlays implements Sink.
func (c *OverlayCache) PublishOverlays(frame int64, overlays []speed.Overlay) {
	cp := make([]speed.Overlay, len(overlays))
	copy(cp, overlays)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame = frame
	c.overlays = cp
	c.valid = true
}

// Latest returns the last published frame index and a copy of its overlays.
// ok is false until the first frame arrives.
func (c *OverlayCache) Latest() (frame int64, overlays []speed.Overlay, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid {
		return 0, nil, false
	}
	out := make([]speed.Overlay, len(c.overlays))
	copy(out, c.overlays)
	return c.frame, out, true
}
