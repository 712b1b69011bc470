package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client publishes library events. Topics are provisioned out of band;
// the client only verifies they exist.
type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string
	getTopic  func(context.Context, *pubsubpb.GetTopicRequest) error
}

// NewClient dials Pub/Sub and checks every configured topic.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	raw, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:    raw,
		projectID: projectID,
		topics:    cfg.Topics(),
		getTopic: func(ctx context.Context, req *pubsubpb.GetTopicRequest) error {
			_, err := raw.TopicAdminClient.GetTopic(ctx, req)
			return err
		},
	}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"gcp_project": projectID,
			"topics":      c.topics,
		}), "pubsub client initialized")
	}
	return c, nil
}

// clientOptions prefers inline credentials over a credentials file. With
// neither set the client falls back to application default credentials.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

// Ping confirms every configured topic exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.getTopic == nil {
		return errNotInitialized
	}
	if len(c.topics) == 0 {
		return errors.New("no pubsub topics configured")
	}
	for _, topic := range c.topics {
		if err := c.checkTopic(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) checkTopic(ctx context.Context, topic string) error {
	name := TopicResourceName(c.projectID, topic)
	if name == "" {
		return fmt.Errorf("topic %q not configured", topic)
	}
	err := c.getTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %q does not exist", name)
	default:
		return fmt.Errorf("checking topic %q: %w", name, err)
	}
}

// Publisher returns a publisher for a topic id or full resource name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	name := TopicResourceName(c.projectID, topic)
	if name == "" {
		return nil
	}
	return c.client.Publisher(name)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// TopicResourceName expands a bare topic id into projects/<p>/topics/<id>.
func TopicResourceName(projectID, topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ""
	}
	if strings.HasPrefix(topic, "projects/") && strings.Contains(topic, "/topics/") {
		return topic
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/topics/" + topic
}
