package speech

import "time"

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPlaying   Status = "playing"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ParseStatus converts a string into a known Status.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusPlaying, StatusPaused, StatusCompleted, StatusFailed:
		return Status(raw), true
	}
	return "", false
}

// QueueItem is a unit of speakable text. The integer ID is assigned by the
// persistence layer; the UUID is the identity used across all boundaries.
type QueueItem struct {
	ID           int64      `json:"id"`
	UUID         string     `json:"uuid"`
	SessionID    string     `json:"session_id"`
	Text         string     `json:"text"`
	Status       Status     `json:"status"`
	Position     int        `json:"position"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMs   int64      `json:"duration_ms,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`

	// Enrichment fields, filled from the session cache. Never persisted.
	VoiceID      string `json:"voice_id,omitempty"`
	SessionName  string `json:"session_name,omitempty"`
	SessionColor string `json:"session_color,omitempty"`
	BatchCount   int    `json:"batch_count,omitempty"`
	Priority     int    `json:"priority,omitempty"`
}

// QueueState is the aggregate the UI observes. On a secondary surface the
// transport flags mirror best-effort synchronized state, not ground truth.
type QueueState struct {
	Items         []QueueItem `json:"items"`
	Current       *QueueItem  `json:"current,omitempty"`
	IsPlaying     bool        `json:"is_playing"`
	IsPaused      bool        `json:"is_paused"`
	AutoPlay      bool        `json:"auto_play"`
	Volume        float64     `json:"volume"`
	PositionMs    int64       `json:"position_ms"`
	PlaybackSpeed float64     `json:"playback_speed"`
	Interrupted   bool        `json:"interrupted"`
}

// Item returns a pointer to the item with the given UUID, or nil.
func (s *QueueState) Item(uuid string) *QueueItem {
	for i := range s.Items {
		if s.Items[i].UUID == uuid {
			return &s.Items[i]
		}
	}
	return nil
}

// NextPending returns a copy of the lowest-position pending item. Position
// ties are broken by insertion order (ascending ID).
func (s *QueueState) NextPending() (QueueItem, bool) {
	best := -1
	for i := range s.Items {
		if s.Items[i].Status != StatusPending {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		if s.Items[i].Position < s.Items[best].Position ||
			(s.Items[i].Position == s.Items[best].Position && s.Items[i].ID < s.Items[best].ID) {
			best = i
		}
	}
	if best == -1 {
		return QueueItem{}, false
	}
	return s.Items[best], true
}

// LastCompleted returns a copy of the most recently completed item, by
// completion time descending.
func (s *QueueState) LastCompleted() (QueueItem, bool) {
	best := -1
	for i := range s.Items {
		if s.Items[i].Status != StatusCompleted || s.Items[i].CompletedAt == nil {
			continue
		}
		if best == -1 || s.Items[i].CompletedAt.After(*s.Items[best].CompletedAt) {
			best = i
		}
	}
	if best == -1 {
		return QueueItem{}, false
	}
	return s.Items[best], true
}

// Counts returns the number of items per status.
func (s *QueueState) Counts() map[Status]int {
	counts := make(map[Status]int, 5)
	for i := range s.Items {
		counts[s.Items[i].Status]++
	}
	return counts
}

// setStatus updates an item's status in place and mirrors the change onto
// Current when it refers to the same item.
func (s *QueueState) setStatus(uuid string, status Status, mutate func(*QueueItem)) {
	item := s.Item(uuid)
	if item == nil {
		return
	}
	item.Status = status
	if mutate != nil {
		mutate(item)
	}
	if s.Current != nil && s.Current.UUID == uuid {
		clone := *item
		s.Current = &clone
	}
}

// Clone returns a deep copy of the state so snapshots stay immutable.
func (s QueueState) Clone() QueueState {
	out := s
	out.Items = make([]QueueItem, len(s.Items))
	copy(out.Items, s.Items)
	if s.Current != nil {
		current := *s.Current
		out.Current = &current
	}
	return out
}

// SessionInfo is an enrichment record for a dictation session.
type SessionInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Color   string `json:"color"`
	VoiceID string `json:"voice_id,omitempty"`
}

// PlaybackInfo reports elapsed and total playback time for the current item.
type PlaybackInfo struct {
	CurrentTimeMs int64 `json:"current_time_ms"`
	DurationMs    int64 `json:"duration_ms"`
}
