package pubsub

import (
	"context"
	"fmt"
	"os"
	"testing"

	"cloud.google.com/go/pubsub"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	pubSubEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
	pubSubEmulatorPort  = "8085/tcp"
	pubSubEmulatorHost  = "PUBSUB_EMULATOR_HOST"
)

// PubsubContainer wraps a running Pub/Sub emulator and an admin client used to create topics
// and subscriptions for the change relay tests.
type PubsubContainer struct {
	Container testcontainers.Container
	URI       string
	ProjectID string
	client    *pubsub.Client
}

// StartPubSubContainer starts the emulator and points PUBSUB_EMULATOR_HOST at it.
func StartPubSubContainer(ctx context.Context, projectID string) (*PubsubContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        pubSubEmulatorImage,
		ExposedPorts: []string{pubSubEmulatorPort},
		WaitingFor:   wait.ForLog("started"),
		Cmd: []string{
			"/bin/sh",
			"-c",
			"gcloud beta emulators pubsub start --host-port 0.0.0.0:8085",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, err
	}

	mappedPort, err := container.MappedPort(ctx, "8085")
	if err != nil {
		return nil, err
	}

	hostIP, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}

	uri := fmt.Sprintf("%s:%s", hostIP, mappedPort.Port())

	if err := os.Setenv(pubSubEmulatorHost, uri); err != nil {
		return nil, err
	}

	return &PubsubContainer{Container: container, URI: uri, ProjectID: projectID}, nil
}

// StopContainer closes the admin client and terminates the emulator.
func (c *PubsubContainer) StopContainer(ctx context.Context) error {
	if c.client != nil {
		_ = c.client.Close()
		c.client = nil
	}

	_ = os.Unsetenv(pubSubEmulatorHost)

	return c.Container.Terminate(ctx)
}

// ConnectionOptions returns client options dialing the emulator without credentials.
func (c *PubsubContainer) ConnectionOptions(t *testing.T) []option.ClientOption {
	t.Helper()

	conn, err := grpc.NewClient(c.URI, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = conn.Close() })

	return []option.ClientOption{option.WithGRPCConn(conn)}
}

func (c *PubsubContainer) adminClient(ctx context.Context, t *testing.T) *pubsub.Client {
	t.Helper()

	if c.client == nil {
		client, err := pubsub.NewClient(ctx, c.ProjectID, c.ConnectionOptions(t)...)
		if err != nil {
			t.Fatal(err)
		}

		c.client = client
	}

	return c.client
}

// CreateTopicAndSubscription creates topicName with one pull subscription named subscriptionName.
func (c *PubsubContainer) CreateTopicAndSubscription(ctx context.Context, t *testing.T, topicName, subscriptionName string) *pubsub.Subscription {
	t.Helper()

	client := c.adminClient(ctx, t)

	topic, err := client.CreateTopic(ctx, topicName)
	if err != nil {
		t.Fatal(err)
	}

	subscription, err := client.CreateSubscription(ctx, subscriptionName, pubsub.SubscriptionConfig{Topic: topic})
	if err != nil {
		t.Fatal(err)
	}

	return subscription
}
