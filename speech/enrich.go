package speech

import "sync"

// Fixed display attributes for screen-reader sessions. These are synthesized
// rather than fed from the external session feed.
var screenReaderInfo = map[string]SessionInfo{
	"voiceover": {Name: "VoiceOver", Color: "#8b5cf6"},
	"nvda":      {Name: "NVDA", Color: "#a78bfa"},
	"jaws":      {Name: "JAWS", Color: "#7c3aed"},
}

const (
	genericScreenReaderName  = "Screen Reader"
	genericScreenReaderColor = "#8b5cf6"
)

// EnrichmentCache maps session identifiers to display name, color and an
// optional voice override. Entries are ephemeral and rebuilt from the
// external session feed; the cache is never persisted.
type EnrichmentCache struct {
	mu      sync.RWMutex
	entries map[string]SessionInfo
}

// NewEnrichmentCache creates an empty cache.
func NewEnrichmentCache() *EnrichmentCache {
	return &EnrichmentCache{entries: make(map[string]SessionInfo)}
}

// Update merges a batch of session records into the cache, keyed by session
// id. Later records for the same id win.
func (c *EnrichmentCache) Update(sessions []SessionInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, session := range sessions {
		if session.ID == "" {
			continue
		}
		c.entries[session.ID] = session
	}
}

// Lookup resolves enrichment info for a session. Screen-reader sessions get
// fixed synthetic attributes per sub-kind instead of cache contents, though a
// cached voice override still applies.
func (c *EnrichmentCache) Lookup(sessionID string) (SessionInfo, bool) {
	c.mu.RLock()
	entry, ok := c.entries[sessionID]
	c.mu.RUnlock()

	if kind := ScreenReaderKind(sessionID); kind != "" {
		info, known := screenReaderInfo[kind]
		if !known {
			info = SessionInfo{Name: genericScreenReaderName, Color: genericScreenReaderColor}
		}
		info.ID = sessionID
		info.VoiceID = entry.VoiceID
		return info, true
	}
	return entry, ok
}

// Voice returns the cached voice override for a session, if any.
func (c *EnrichmentCache) Voice(sessionID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[sessionID].VoiceID
}

// Enrich fills an item's display fields from the cache. Existing values on
// the item are never overwritten.
func (c *EnrichmentCache) Enrich(item *QueueItem) {
	info, ok := c.Lookup(item.SessionID)
	if !ok {
		return
	}
	if item.SessionName == "" {
		item.SessionName = info.Name
	}
	if item.SessionColor == "" {
		item.SessionColor = info.Color
	}
	if item.VoiceID == "" {
		item.VoiceID = info.VoiceID
	}
}
