package speech

import (
	"context"
	"time"
)

// Queue-facing operations. Persistence failures are logged and leave the
// in-memory state unchanged; none of these escalate errors to the caller.

// LoadItems replaces the in-memory queue with the persisted one, enriched
// from the session cache.
func (c *Controller) LoadItems(ctx context.Context) {
	items, err := c.items.List(ctx)
	if err != nil {
		c.logger.Error("failed to load queue items", "error", err)
		return
	}
	for i := range items {
		c.cache.Enrich(&items[i])
	}
	sortPending(items)

	c.store.Update(func(st *QueueState) {
		st.Items = items
		if st.Current != nil {
			if live := st.Item(st.Current.UUID); live != nil {
				current := *live
				st.Current = &current
			} else {
				st.Current = nil
			}
		}
	})
}

// AddItem enqueues new speakable text for a session. With auto-play on and
// playback idle, the new item starts immediately. Returns nil when the
// persistence write fails.
func (c *Controller) AddItem(ctx context.Context, text, sessionID string) *QueueItem {
	created, err := c.items.Add(ctx, text, sessionID)
	if err != nil {
		c.logger.Error("failed to add queue item", "session", sessionID, "error", err)
		return nil
	}

	item := *created
	c.cache.Enrich(&item)
	c.store.Update(func(st *QueueState) {
		st.Items = append(st.Items, item)
		sortPending(st.Items)
	})

	if c.store.State().AutoPlay && c.Phase() == PhaseIdle {
		c.PlayNext(ctx)
	}
	return &item
}

// RemoveItem deletes an item. Removing the current item stops playback
// first.
func (c *Controller) RemoveItem(ctx context.Context, uuid string) {
	c.mu.Lock()
	isCurrent := c.currentUUID == uuid
	c.mu.Unlock()
	if isCurrent {
		c.StopPlayback(ctx)
	}

	if err := c.items.Remove(ctx, uuid); err != nil {
		c.logger.Error("failed to remove queue item", "uuid", uuid, "error", err)
		return
	}
	c.store.Update(func(st *QueueState) {
		for i := range st.Items {
			if st.Items[i].UUID == uuid {
				st.Items = append(st.Items[:i], st.Items[i+1:]...)
				break
			}
		}
	})
}

// ReorderItem moves an item to a new position among pending items and
// reloads the queue so shifted neighbors are reflected.
func (c *Controller) ReorderItem(ctx context.Context, uuid string, newPosition int) {
	if err := c.items.Reorder(ctx, uuid, newPosition); err != nil {
		c.logger.Error("failed to reorder queue item", "uuid", uuid, "error", err)
		return
	}
	c.LoadItems(ctx)
}

// ClearCompleted removes completed items, optionally only those older than
// the given number of days, and reports how many were removed.
func (c *Controller) ClearCompleted(ctx context.Context, olderThanDays int) int64 {
	removed, err := c.items.ClearCompleted(ctx, olderThanDays)
	if err != nil {
		c.logger.Error("failed to clear completed items", "error", err)
		return 0
	}

	var cutoff time.Time
	if olderThanDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -olderThanDays)
	}
	c.store.Update(func(st *QueueState) {
		kept := st.Items[:0]
		for _, item := range st.Items {
			if item.Status == StatusCompleted {
				if cutoff.IsZero() || (item.CompletedAt != nil && item.CompletedAt.Before(cutoff)) {
					continue
				}
			}
			kept = append(kept, item)
		}
		st.Items = kept
	})
	return removed
}

// ClearPending removes every pending item except the one currently starting.
func (c *Controller) ClearPending(ctx context.Context) {
	state := c.store.State()
	removed := make(map[string]struct{}, len(state.Items))
	for _, item := range state.Items {
		if item.Status != StatusPending {
			continue
		}
		if err := c.items.Remove(ctx, item.UUID); err != nil {
			c.logger.Error("failed to remove pending item", "uuid", item.UUID, "error", err)
			continue
		}
		removed[item.UUID] = struct{}{}
	}
	if len(removed) == 0 {
		return
	}
	c.store.Update(func(st *QueueState) {
		kept := st.Items[:0]
		for _, item := range st.Items {
			if _, gone := removed[item.UUID]; gone {
				continue
			}
			kept = append(kept, item)
		}
		st.Items = kept
	})
}

// ResetStuckItems marks items left in the playing status by a prior process
// lifetime as failed with an interrupted cause, and reports how many it
// touched. The currently playing item, if any, is left alone.
func (c *Controller) ResetStuckItems(ctx context.Context) int {
	c.mu.Lock()
	current := c.currentUUID
	c.mu.Unlock()

	stuck, err := c.items.List(ctx, StatusPlaying, StatusPaused)
	if err != nil {
		c.logger.Error("failed to list stuck items", "error", err)
		return 0
	}

	count := 0
	for _, item := range stuck {
		if item.UUID == current {
			continue
		}
		if err := c.items.UpdateStatus(ctx, item.UUID, StatusFailed, 0, InterruptedMessage); err != nil {
			c.logger.Error("failed to reset stuck item", "uuid", item.UUID, "error", err)
			continue
		}
		uuid := item.UUID
		now := time.Now()
		c.store.Update(func(st *QueueState) {
			st.setStatus(uuid, StatusFailed, func(it *QueueItem) {
				it.CompletedAt = &now
				it.ErrorMessage = InterruptedMessage
			})
		})
		count++
	}
	return count
}

// Counts reports the number of queued items per status.
func (c *Controller) Counts() map[Status]int {
	state := c.store.State()
	return state.Counts()
}
