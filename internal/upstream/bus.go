// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package upstream

import (
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/switchboard/internal/logging"
)

// MemoryURL selects the in-process bus instead of NATS.
const MemoryURL = "memory://"

// Bus is the relay transport: a publisher for injected events and a
// subscriber for the relay source.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	URL        string
}

// NewWatermillLogger routes watermill logs through the zerolog logger.
func NewWatermillLogger() watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logging.NewSlogLogger().With("component", "relay-bus"))
}

// OpenBus connects to url. MemoryURL opens an in-process channel bus;
// anything else is treated as a NATS server URL and used without JetStream,
// since broadcasts are not persisted.
func OpenBus(url, queueGroup string, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = NewWatermillLogger()
	}

	if url == MemoryURL {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		return &Bus{Publisher: ch, Subscriber: ch, URL: url}, nil
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("switchboard"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create relay publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: queueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     10 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create relay subscriber: %w", err)
	}

	return &Bus{Publisher: pub, Subscriber: sub, URL: url}, nil
}

// Close closes the publisher and the subscriber.
func (b *Bus) Close() error {
	errPub := b.Publisher.Close()
	if interface{}(b.Subscriber) == interface{}(b.Publisher) {
		return errPub
	}
	return errors.Join(errPub, b.Subscriber.Close())
}
