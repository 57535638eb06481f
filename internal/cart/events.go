package cart

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/hartwellgoods/storefront-backend/pkg/logger"
)

// Publisher is the outbound surface the event sink needs; pkg/pubsub.Client
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) error
}

// cartEvent is the envelope published for analytics consumers.
type cartEvent struct {
	Event      string    `json:"event"`
	CartID     string    `json:"cart_id,omitempty"`
	Kind       Kind      `json:"kind"`
	ChannelKey string    `json:"channel_key"`
	Seq        uint64    `json:"seq"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PublishingSink forwards engine lifecycle events to Pub/Sub, fire-and-forget.
// Publishing never blocks the settlement path and failures are only logged.
type PublishingSink struct {
	pub  Publisher
	logg *logger.Logger
}

func NewPublishingSink(pub Publisher, logg *logger.Logger) *PublishingSink {
	return &PublishingSink{pub: pub, logg: logg}
}

func (s *PublishingSink) MutationSettled(cartID string, m Mutation, snap *Snapshot) {
	s.emit(cartEvent{Event: "cart.mutation.settled", CartID: cartID, Kind: m.Kind, ChannelKey: m.ChannelKey(), Seq: m.Seq})
}

func (s *PublishingSink) MutationFailed(cartID string, m Mutation, err error) {
	evt := cartEvent{Event: "cart.mutation.failed", CartID: cartID, Kind: m.Kind, ChannelKey: m.ChannelKey(), Seq: m.Seq}
	if err != nil {
		evt.Error = err.Error()
	}
	s.emit(evt)
}

func (s *PublishingSink) StaleResponseDropped(cartID string, m Mutation) {
	s.emit(cartEvent{Event: "cart.response.stale_dropped", CartID: cartID, Kind: m.Kind, ChannelKey: m.ChannelKey(), Seq: m.Seq})
}

func (s *PublishingSink) emit(evt cartEvent) {
	if s == nil || s.pub == nil {
		return
	}
	evt.OccurredAt = time.Now().UTC()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		data, err := json.Marshal(evt)
		if err != nil {
			if s.logg != nil {
				s.logg.Error(ctx, "marshal cart event", err)
			}
			return
		}
		attrs := map[string]string{
			"event": evt.Event,
			"kind":  string(evt.Kind),
			"seq":   strconv.FormatUint(evt.Seq, 10),
		}
		if err := s.pub.Publish(ctx, data, attrs); err != nil && s.logg != nil {
			s.logg.Warn(ctx, "cart event publish failed")
		}
	}()
}
