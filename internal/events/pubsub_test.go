package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pstest.Server, *pubsub.Client) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestEnsureTopicIsIdempotent(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, EnsureTopic(ctx, client, "attachments"))
	require.NoError(t, EnsureTopic(ctx, client, "attachments"))
	require.NoError(t, EnsureTopicWithRetry(ctx, client, "attachments", 3, time.Millisecond))
	require.NoError(t, EnsureSubscription(ctx, client, "attachments", "attachments-pull", ""))
	require.NoError(t, EnsureSubscription(ctx, client, "attachments", "attachments-pull", ""))

	exists, err := client.Topic("attachments").Exists(ctx)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestPubSubPublisher(t *testing.T) {
	srv, client := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, EnsureTopic(ctx, client, "attachments"))

	p := NewPubSubPublisher(client.Topic("attachments"))
	defer p.Stop()

	ev := Event{Kind: KindSave, Attribute: "image", Path: "/public/image/kerb.jpg", URL: "/image/kerb.jpg", Size: 42}
	require.NoError(t, p.Publish(ctx, ev))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "save", msgs[0].Attributes["kind"])
	var got Event
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, ev.URL, got.URL)
	require.EqualValues(t, 42, got.Size)
}

func TestPublisherWithoutTopic(t *testing.T) {
	require.ErrorIs(t, (&PubSubPublisher{}).Publish(context.Background(), Event{}), ErrTopicRequired)
}

func TestMemory(t *testing.T) {
	var m Memory
	require.NoError(t, m.Publish(context.Background(), Event{Kind: KindUpload}))
	require.NoError(t, Discard{}.Publish(context.Background(), Event{}))
	require.NoError(t, LogPublisher{}.Publish(context.Background(), Event{Kind: KindDestroy}))
	require.Len(t, m.Events(), 1)
}
