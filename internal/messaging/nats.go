// Package messaging provides a NATS client wrapper for pub/sub messaging
// between the engine and its edge servers. It handles connection lifecycle,
// subject-based subscriptions, and convenience methods for the spin and
// match notification channels. The wrapper carries both sides of the
// contract: the engine consumes the ingress subscriptions and egress
// publishers, while the mirrored edge-side helpers (publishing spins,
// subscribing to match events) keep the wire contract the edge servers
// follow specified in one place; the engine itself never calls them.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used between edge servers and the engine.
const (
	SubjectSpinRequest = "spin.request"
	SubjectSpinCancel  = "spin.cancel"
	SubjectHeartbeat   = "presence.heartbeat"
	SubjectVoteCast    = "vote.cast"
	SubjectMatchFound  = "match.found"  // + .<user_id>
	SubjectMatchNotify = "match.notify" // + .<user_id> (lifecycle events)
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "spinmatch",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// SubscribeSpinRequest subscribes to spin requests from edge servers.
func (c *NATSClient) SubscribeSpinRequest(handler func(data []byte)) error {
	return c.Subscribe(SubjectSpinRequest, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishSpinRequest publishes a spin request.
func (c *NATSClient) PublishSpinRequest(data []byte) error {
	return c.Publish(SubjectSpinRequest, data)
}

// SubscribeSpinCancel subscribes to spin cancellation messages.
func (c *NATSClient) SubscribeSpinCancel(handler func(data []byte)) error {
	return c.Subscribe(SubjectSpinCancel, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishSpinCancel publishes a spin cancellation request.
func (c *NATSClient) PublishSpinCancel(data []byte) error {
	return c.Publish(SubjectSpinCancel, data)
}

// SubscribeHeartbeat subscribes to presence heartbeats relayed by edge servers.
func (c *NATSClient) SubscribeHeartbeat(handler func(data []byte)) error {
	return c.Subscribe(SubjectHeartbeat, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishHeartbeat publishes a presence heartbeat.
func (c *NATSClient) PublishHeartbeat(data []byte) error {
	return c.Publish(SubjectHeartbeat, data)
}

// SubscribeVoteCast subscribes to vote submissions from edge servers.
func (c *NATSClient) SubscribeVoteCast(handler func(data []byte)) error {
	return c.Subscribe(SubjectVoteCast, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishVoteCast publishes a vote submission.
func (c *NATSClient) PublishVoteCast(data []byte) error {
	return c.Publish(SubjectVoteCast, data)
}

// SubscribeMatchFound subscribes to the match.found.<userID> subject and
// passes the raw message data to the handler.
func (c *NATSClient) SubscribeMatchFound(userID string, handler func(data []byte)) error {
	subject := SubjectMatchFound + "." + userID
	return c.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeMatchFound unsubscribes from the match.found.<userID> subject.
func (c *NATSClient) UnsubscribeMatchFound(userID string) error {
	return c.unsubscribe(SubjectMatchFound + "." + userID)
}

// PublishMatchFound publishes a pairing announcement to a user.
func (c *NATSClient) PublishMatchFound(userID string, data []byte) error {
	return c.Publish(SubjectMatchFound+"."+userID, data)
}

// SubscribeMatchNotify subscribes to match lifecycle notifications for a user.
func (c *NATSClient) SubscribeMatchNotify(userID string, handler func(data []byte)) error {
	subject := SubjectMatchNotify + "." + userID
	return c.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeMatchNotify unsubscribes from match lifecycle notifications.
func (c *NATSClient) UnsubscribeMatchNotify(userID string) error {
	return c.unsubscribe(SubjectMatchNotify + "." + userID)
}

// PublishMatchNotify publishes a match lifecycle notification to a user.
func (c *NATSClient) PublishMatchNotify(userID string, data []byte) error {
	return c.Publish(SubjectMatchNotify+"."+userID, data)
}

// unsubscribe removes and drains the subscription stored under key.
func (c *NATSClient) unsubscribe(key string) error {
	c.mu.Lock()
	sub, ok := c.subs[key]
	if ok {
		delete(c.subs, key)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return sub.Unsubscribe()
}

// Close drains all subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	for key, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("[nats] unsubscribe %s: %v", key, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)
	c.mu.Unlock()

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] drain: %v", err)
	}
}
