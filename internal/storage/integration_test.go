//go:build integration

package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
)

// startContainer 启动容器并返回首个暴露端口的 host:port
func startContainer(t *testing.T, req testcontainers.ContainerRequest) string {
	t.Helper()
	testcontainers.Logger = log.New(io.Discard, "", 0)

	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Fatal(err)
		}
	})

	endpoint, err := c.Endpoint(ctx, "")
	require.NoError(t, err)
	return endpoint
}

func exercisePostStore(t *testing.T, s PostStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	ok, err := s.Exists(ctx, "100")
	require.NoError(t, err)
	assert.False(t, ok)

	first := Record{
		ID: "100", Text: "Line 2: delays", ProcessedText: "line 2 delays", Category: "LABEL_1", Timestamp: base,
		Meta: &RecordMeta{Author: "TTCnotices", Source: "search", URL: "https://x.com/TTCnotices/status/100"},
	}
	require.NoError(t, s.Insert(ctx, first))
	assert.ErrorIs(t, s.Insert(ctx, first), ErrDuplicate)
	require.NoError(t, s.Insert(ctx, Record{ID: "101", Text: "b", ProcessedText: "b", Category: "LABEL_0", Timestamp: base.Add(time.Hour)}))

	ok, err = s.Exists(ctx, "100")
	require.NoError(t, err)
	assert.True(t, ok)

	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "101", recent[0].ID)
	assert.Equal(t, "100", recent[1].ID)
	require.NotNil(t, recent[1].Meta)
	assert.Equal(t, "search", recent[1].Meta.Source)
}

func TestMongoStoreIntegration(t *testing.T) {
	endpoint := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections"),
	})

	ctx := context.Background()
	s, err := NewMongoStore(ctx, fmt.Sprintf("mongodb://%s/", endpoint), "transit_alerts", "tweets")
	require.NoError(t, err)
	defer s.Close()

	exercisePostStore(t, s)

	// 旧数据以整数保存 id
	_, err = s.coll.InsertOne(ctx, bson.M{"id": int64(555), "text": "legacy", "category": "LABEL_0", "timestamp": time.Now()})
	require.NoError(t, err)
	ok, err := s.Exists(ctx, "555")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGormStoreIntegration(t *testing.T) {
	endpoint := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "transit",
			"POSTGRES_PASSWORD": "transit",
			"POSTGRES_DB":       "transit",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	})

	s, err := NewGormStore(fmt.Sprintf("postgres://transit:transit@%s/transit?sslmode=disable", endpoint))
	require.NoError(t, err)
	defer s.Close()

	exercisePostStore(t, s)
}
