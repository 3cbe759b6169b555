package natsbus

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

type Client struct {
	conn *nats.Conn
}

func NewClient(bus *Bus) (*Client, error) {
	return NewClientFromURL(bus.ClientURL())
}

func NewClientFromURL(url string) (*Client, error) {
	conn, err := nats.Connect(url, nats.Name("council"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Publish(topic string, data []byte) error {
	return c.conn.Publish(topic, data)
}

// PublishEvent sends one encoded progress event for a conversation.
func (c *Client) PublishEvent(conversationID string, data []byte) error {
	if err := c.conn.Publish(TopicEventsCouncil(conversationID), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (c *Client) Subscribe(topic string, handler func(msg *nats.Msg)) (*nats.Subscription, error) {
	return c.conn.Subscribe(topic, handler)
}

func (c *Client) Flush() error {
	return c.conn.Flush()
}

func (c *Client) Close() {
	c.conn.Close()
}
