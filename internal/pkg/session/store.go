// internal/pkg/session/store.go
package session

import (
	"context"
	"fmt"
	"time"

	"backoffice-service/internal/domain/conversation"

	"github.com/oklog/ulid/v2"
)

const (
	// DefaultTTL is how long a conversation may live, measured from its
	// creation, not from its last touch.
	DefaultTTL = time.Hour
	// DefaultSweepInterval is how often the background reaper runs.
	DefaultSweepInterval = 10 * time.Minute
)

// Store is the keyed registry of active conversations. The command engine
// owns a Store by injection; MemoryStore is the single-instance default and
// RedisStore makes the state process-shared for multi-instance deployments.
type Store interface {
	// Get returns the conversation or (nil, nil) when the id is unknown.
	Get(ctx context.Context, id string) (*conversation.Conversation, error)
	Set(ctx context.Context, conv *conversation.Conversation) error
	Delete(ctx context.Context, id string) error
	// Active returns the ids of all live conversations (diagnostics only).
	Active(ctx context.Context) ([]string, error)
}

// GenerateID allocates a conversation id. The embedded epoch-millis prefix is
// historical format compatibility; expiry is driven by the CreatedAt field on
// the record, never by parsing the id back.
func GenerateID() string {
	return fmt.Sprintf("conv_%d_%s", time.Now().UnixMilli(), ulid.Make().String())
}
