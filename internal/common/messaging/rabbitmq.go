package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/maribox/rbg-live-dl/internal/common/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys for crawl events. One durable queue receives every per-video
// outcome so an external auditor can follow a run without tailing logs.
const (
	CrawlEventQueue      = "crawl_events"
	CrawlEventRoutingKey = "crawl.events"
)

// Publisher is the narrow event-publishing surface the pipeline sees.
// Publishing is best effort: a run never fails because the broker is down.
type Publisher interface {
	// PublishJSON publishes a JSON message with the given routing key
	PublishJSON(routingKey string, data interface{}) error

	// Close closes the connection
	Close() error
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishJSON(string, interface{}) error { return nil }
func (NoopPublisher) Close() error                          { return nil }

// RabbitMQClient implements Publisher over an AMQP direct exchange.
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
}

// NewRabbitMQClient connects to the broker, declares the exchange and the
// crawl-event queue, and starts connection recovery.
func NewRabbitMQClient(config *config.RabbitMQConfig) (*RabbitMQClient, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("rabbitmq URL is required")
	}

	if config.Exchange == "" {
		return nil, fmt.Errorf("rabbitmq exchange name is required")
	}

	client := &RabbitMQClient{
		config: config,
	}

	if err := client.connect(); err != nil {
		return nil, err
	}

	return client, nil
}

// connect establishes a connection to RabbitMQ
func (c *RabbitMQClient) connect() error {
	var err error

	c.conn, err = amqp.Dial(c.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	err = c.channel.ExchangeDeclare(
		c.config.Exchange, // name
		"direct",          // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to declare an exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		CrawlEventQueue, // name
		true,            // durable
		false,           // delete when unused
		false,           // exclusive
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to declare queue %s: %w", CrawlEventQueue, err)
	}

	err = c.channel.QueueBind(
		CrawlEventQueue,      // queue name
		CrawlEventRoutingKey, // routing key
		c.config.Exchange,    // exchange
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to bind queue %s: %w", CrawlEventQueue, err)
	}

	// Set up connection recovery
	go c.handleReconnect()

	return nil
}

// handleReconnect attempts to reconnect to RabbitMQ when the connection is lost
func (c *RabbitMQClient) handleReconnect() {
	connErrChan := c.conn.NotifyClose(make(chan *amqp.Error))

	for err := range connErrChan {
		fmt.Printf("RabbitMQ connection closed: %v. Attempting to reconnect...\n", err)

		for i := 0; i < c.config.ReconnectRetries; i++ {
			time.Sleep(time.Duration(c.config.ReconnectTimeout) * time.Second)

			if err := c.connect(); err == nil {
				fmt.Println("Successfully reconnected to RabbitMQ")
				break
			}

			fmt.Printf("Failed to reconnect to RabbitMQ (attempt %d/%d)\n", i+1, c.config.ReconnectRetries)
		}

		return
	}
}

// PublishJSON publishes a JSON message with the given routing key
func (c *RabbitMQClient) PublishJSON(routingKey string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON message: %w", err)
	}

	return c.channel.Publish(
		c.config.Exchange, // exchange
		routingKey,        // routing key
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

// Close closes the connection and channel
func (c *RabbitMQClient) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}

	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}
