package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	pkgerrors "github.com/merchstack/tierprice-service/pkg/errors"
	"github.com/merchstack/tierprice-service/pkg/logger"
)

const defaultPublishTimeout = 10 * time.Second

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type topicPublisher struct {
	pub *gcppubsub.Publisher
}

func (t topicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return t.pub.Publish(ctx, msg)
}

// reindexEvent is the wire payload consumed by the price indexer.
type reindexEvent struct {
	ProductIDs []int64   `json:"product_ids"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Trigger publishes price reindex events for changed product identifiers.
type Trigger struct {
	pub     publisher
	logg    *logger.Logger
	timeout time.Duration
}

// NewTrigger wraps the reindex topic publisher.
func NewTrigger(pub *gcppubsub.Publisher, logg *logger.Logger) (*Trigger, error) {
	if pub == nil {
		return nil, fmt.Errorf("reindex publisher is required")
	}
	return &Trigger{
		pub:     topicPublisher{pub: pub},
		logg:    logg,
		timeout: defaultPublishTimeout,
	}, nil
}

// Invalidate publishes one event covering all provided identifiers. An empty
// identifier set publishes nothing.
func (t *Trigger) Invalidate(ctx context.Context, ids []int64, reason string) error {
	if len(ids) == 0 {
		return nil
	}

	payload, err := json.Marshal(reindexEvent{
		ProductIDs: ids,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode reindex event")
	}

	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_id": uuid.NewString(),
			"reason":   reason,
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	result := t.pub.Publish(publishCtx, msg)
	if result == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "reindex publisher returned no result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish reindex event")
	}

	if t.logg != nil {
		ctx = t.logg.WithField(ctx, "product_count", len(ids))
		t.logg.Info(ctx, "reindex event published")
	}
	return nil
}
