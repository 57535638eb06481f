package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/hartwellgoods/storefront-backend/pkg/config"
	"github.com/hartwellgoods/storefront-backend/pkg/logger"
)

// Client publishes cart lifecycle events to the configured topic.
type Client struct {
	client    *pubsub.Client
	projectID string
	topic     string
}

var errProjectIDRequired = errors.New("gcp project id is required")

// NewClient creates a Pub/Sub v2 client scoped to the cart events topic.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	if !cfg.Enabled() {
		return nil, errors.New("cart events topic is required")
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:    psClient,
		projectID: gcp.ProjectID,
		topic:     strings.TrimSpace(cfg.CartEventsTopic),
	}

	if logg != nil {
		logg.Info(ctx, "pubsub client initialized")
	}

	return c, nil
}

// Publish sends one message to the cart events topic and waits for the server ack.
func (c *Client) Publish(ctx context.Context, data []byte, attributes map[string]string) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	publisher := c.client.Publisher(c.topicResourceName())
	if publisher == nil {
		return errors.New("cart events publisher unavailable")
	}
	result := publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	})
	_, err := result.Get(ctx)
	return err
}

// Close releases the Pub/Sub client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) topicResourceName() string {
	if strings.HasPrefix(c.topic, "projects/") && strings.Contains(c.topic, "/topics/") {
		return c.topic
	}
	return fmt.Sprintf("projects/%s/topics/%s", c.projectID, c.topic)
}
