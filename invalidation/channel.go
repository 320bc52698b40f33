// Package invalidation is the in-tab broadcast used to tell every mounted
// session controller that the session is gone or its tokens were rotated.
package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Signal names
const (
	SessionExpired  = "coworking-session-expired"
	TokensRefreshed = "coworking-tokens-refreshed"
)

// Causes carried by SessionExpired
const (
	CauseNoToken             = "no_token"
	CauseRefreshPrecondition = "refresh_precondition"
	CauseRefreshFailed       = "refresh_failed"
	CauseRefreshRejected     = "refresh_unauthorized"
)

const topic = "coworking-session"

type Signal struct {
	Name  string `json:"name"`
	Cause string `json:"cause,omitempty"`
	// ExpiresIn is the new access token lifetime in seconds (TokensRefreshed only)
	ExpiresIn int       `json:"expires_in,omitempty"`
	At        time.Time `json:"at"`
}

// Channel is a publish/subscribe channel scoped to one tab.
// A nil *Channel accepts publishes and drops them.
type Channel struct {
	pubsub *gochannel.GoChannel
	logger zerolog.Logger
}

func NewChannel() *Channel {
	return &Channel{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{}),
		logger: log.Logger.With().Str("component", "invalidation").Logger(),
	}
}

// Publish broadcasts sig to every current subscriber. Delivery is
// asynchronous; subscribers that join later do not receive it.
func (c *Channel) Publish(sig Signal) error {
	if c == nil {
		return nil
	}
	if sig.At.IsZero() {
		sig.At = time.Now()
	}

	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("[Channel Publish] %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event", sig.Name)
	msg.Metadata.Set("cause", sig.Cause)

	if err := c.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("[Channel Publish] %w", err)
	}
	c.logger.Debug().Str("event", sig.Name).Str("cause", sig.Cause).Msg("published")
	return nil
}

// Expire is shorthand for publishing SessionExpired with cause
func (c *Channel) Expire(cause string) {
	if err := c.Publish(Signal{Name: SessionExpired, Cause: cause}); err != nil && c != nil {
		c.logger.Error().Err(err).Str("cause", cause).Msg("failed to publish session expiry")
	}
}

// Subscribe streams signals until ctx is done, which is also how a
// subscriber unsubscribes.
func (c *Channel) Subscribe(ctx context.Context) (<-chan Signal, error) {
	if c == nil {
		return nil, nil
	}

	messages, err := c.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("[Channel Subscribe] %w", err)
	}

	out := make(chan Signal, 8)
	go func() {
		defer close(out)
		for msg := range messages {
			var sig Signal
			err := json.Unmarshal(msg.Payload, &sig)
			msg.Ack()
			if err != nil {
				c.logger.Warn().Err(err).Msg("ignoring malformed signal")
				continue
			}
			select {
			case out <- sig:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Channel) Close() error {
	if c == nil {
		return nil
	}
	return c.pubsub.Close()
}
