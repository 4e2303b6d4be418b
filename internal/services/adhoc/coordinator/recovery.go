package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/gathering.space/internal/services/adhoc/domain"
	"github.com/louisbranch/gathering.space/internal/services/adhoc/storage"
)

// Recover rehydrates the registry from persisted live sessions after a
// restart. Member sets start empty; presence is re-established by new join
// signals rather than assumed. Individual unrecoverable rows are logged and
// skipped.
func (c *Coordinator) Recover(ctx context.Context) error {
	records, err := c.stores.Sessions.ListLiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("list live sessions: %w", err)
	}

	now := c.now()
	recovered := 0
	for _, record := range records {
		if strings.TrimSpace(record.BindingID) == "" {
			c.logf("adhoc: skip recovery of session %s without a binding", record.ID)
			continue
		}

		bindingRecord, err := c.stores.Bindings.GetBinding(ctx, record.BindingID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			c.logf("adhoc: skip recovery of session %s, binding %s is not configured", record.ID, record.BindingID)
			continue
		case err != nil:
			c.logf("adhoc: load binding %s during recovery: %v", record.BindingID, err)
			continue
		}

		// The key comes from the game persisted on the session row itself, not
		// from the binding's configured game: a general lobby's live session
		// carries its own resolved game, including an explicit null.
		key := bindingRecord.Binding().RegistryKey(record.GameID)

		unlock := c.locks.lock(key)
		if existing, ok := c.registry.Get(key); ok {
			c.logf("adhoc: registry key %s already held by session %s, skip session %s", key, existing.ID, record.ID)
			unlock()
			continue
		}
		session := domain.NewSession(record.ID, record.BindingID, record.GameID, record.StartsAt, record.EndsAt)
		session.GameName = record.GameName
		session.LastExtendedAt = now
		c.registry.Put(key, session)
		unlock()
		recovered++
	}

	if recovered > 0 {
		c.logf("adhoc: recovered %d live sessions", recovered)
	}
	return nil
}
