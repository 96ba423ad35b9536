package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/article-digest/internal/crawler"
)

func newTestClient(t *testing.T) (*pstest.Server, *pubsub.Client) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.CreateTopic(ctx, "digest")
	require.NoError(t, err)
	return srv, client
}

func TestWritePublishesOneMessagePerRecord(t *testing.T) {
	srv, client := newTestClient(t)

	s, err := NewWithClient(client, "digest", nil)
	require.NoError(t, err)

	digest := crawler.Digest{
		RunID: "run-1",
		Articles: []crawler.Record{
			{Site: "OpenAI", Category: "ai", Title: "One", Link: "https://openai.com/blog/one"},
			{Site: "arXiv", Category: "arxiv", Title: "Two", Link: "https://arxiv.org/abs/2"},
		},
	}
	require.NoError(t, s.Write(context.Background(), digest))
	require.NoError(t, s.Close(context.Background()))

	messages := srv.Messages()
	require.Len(t, messages, 2)
	links := map[string]string{}
	for _, m := range messages {
		require.Equal(t, "run-1", m.Attributes["run_id"])
		links[m.Attributes["site"]] = gjson.GetBytes(m.Data, "link").String()
	}
	require.Equal(t, "https://openai.com/blog/one", links["OpenAI"])
	require.Equal(t, "https://arxiv.org/abs/2", links["arXiv"])
}

func TestWriteEmptyDigest(t *testing.T) {
	srv, client := newTestClient(t)

	s, err := NewWithClient(client, "digest", nil)
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), crawler.Digest{RunID: "r"}))
	require.Empty(t, srv.Messages())
}

func TestConstructorValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithClient(nil, "topic", nil)
	require.Error(t, err)
	_, err = New(context.Background(), Config{}, nil)
	require.Error(t, err)
}
