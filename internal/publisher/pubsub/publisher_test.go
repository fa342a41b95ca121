package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client, err := pubsub.NewClient(context.Background(), "apply4me-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublishEncodesPayload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "run-summaries")
	require.NoError(t, err)

	pub := New(client, map[string]string{"service": "apply4me"})
	defer pub.Close()

	id, err := pub.Publish(ctx, "run-summaries", map[string]any{"task_id": "bursary-discovery", "new": 3})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "apply4me", msgs[0].Attributes["service"])
	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "bursary-discovery", got["task_id"])
	assert.EqualValues(t, 3, got["new"])
}

func TestPublishToMissingTopicFails(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	pub := New(client, nil)
	defer pub.Close()

	_, err := pub.Publish(context.Background(), "nowhere", "payload")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish to nowhere")
}

func TestPublishRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	pub := New(&pubsub.Client{}, nil)
	_, err := pub.Publish(context.Background(), "t", func() {})
	require.ErrorContains(t, err, "marshal payload")
}

func TestPublishWithoutClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil).Publish(context.Background(), "t", "x")
	require.Error(t, err)
}
