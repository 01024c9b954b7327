package realtime

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

const (
	BusMemory = "memory"
	BusRedis  = "redis"

	eventsTopic = "ride-events"
)

// Bus carries outbound events between the broadcaster and the hubs. The
// in-process bus serves a single instance; the Redis stream bus fans every
// event out to all instances so each can deliver to its own connections.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	close      func() error
}

func (b *Bus) Close() error {
	return b.close()
}

// NewMemoryBus waits for each message to be acked before publishing the
// next, which keeps events in publish order.
func NewMemoryBus(logger watermill.LoggerAdapter) *Bus {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            sendBufferSize,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
	return &Bus{Publisher: pubSub, Subscriber: pubSub, close: pubSub.Close}
}

// NewRedisBus uses a stream subscriber without a consumer group, which
// makes every instance read every event.
func NewRedisBus(client redis.UniversalClient, logger watermill.LoggerAdapter) (*Bus, error) {
	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client:  client,
		Maxlens: map[string]int64{eventsTopic: 10000},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream publisher: %w", err)
	}

	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client: client,
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("failed to create stream subscriber: %w", err)
	}

	return &Bus{
		Publisher:  publisher,
		Subscriber: subscriber,
		close: func() error {
			subErr := subscriber.Close()
			if err := publisher.Close(); err != nil {
				return err
			}
			return subErr
		},
	}, nil
}

// NewBus picks the bus implementation by name.
func NewBus(kind string, client redis.UniversalClient, logger watermill.LoggerAdapter) (*Bus, error) {
	switch kind {
	case "", BusMemory:
		return NewMemoryBus(logger), nil
	case BusRedis:
		if client == nil {
			return nil, fmt.Errorf("realtime bus %q needs a redis client", kind)
		}
		return NewRedisBus(client, logger)
	}
	return nil, fmt.Errorf("unknown realtime bus %q", kind)
}
