package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/partyshop-backend/pkg/config"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

// Resources lists what a process needs to exist before it starts. The outbox
// publisher needs the topic; the analytics worker needs the subscription.
type Resources struct {
	Topics        []string
	Subscriptions []string
}

type Client struct {
	client    *pubsub.Client
	projectID string
	required  Resources
}

var errProjectIDRequired = errors.New("gcp project id is required")

// NewClient opens a Pub/Sub v2 client and fails when any required resource is
// missing, so a misconfigured deploy never starts consuming or publishing.
func NewClient(ctx context.Context, gcp config.GCPConfig, required Resources, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	if len(required.Topics)+len(required.Subscriptions) == 0 {
		return nil, errors.New("pubsub client needs at least one topic or subscription")
	}

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: psClient, projectID: projectID, required: required}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project":       projectID,
			"topics":        required.Topics,
			"subscriptions": required.Subscriptions,
		}), "pubsub client initialized")
	}
	return c, nil
}

// Ping confirms every required topic and subscription still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, topic := range c.required.Topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: resourceName(c.projectID, "topics", topic)})
		if err := describeLookup("topic", topic, err); err != nil {
			return err
		}
	}
	for _, sub := range c.required.Subscriptions {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: resourceName(c.projectID, "subscriptions", sub)})
		if err := describeLookup("subscription", sub, err); err != nil {
			return err
		}
	}
	return nil
}

func describeLookup(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub %s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking pubsub %s %q: %w", kind, name, err)
	}
}

// Subscriber returns a receive handle for a subscription ID or full resource name.
func (c *Client) Subscriber(name string) *pubsub.Subscriber {
	full := resourceName(c.projectID, "subscriptions", name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// Publisher returns a publish handle for a topic ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	full := resourceName(c.projectID, "topics", name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a short ID to projects/<project>/<kind>/<id>. Names
// that are already fully qualified pass through.
func resourceName(projectID, kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/" + kind + "/" + name
}
