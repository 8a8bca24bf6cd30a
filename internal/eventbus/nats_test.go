package eventbus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.chat/internal/config"
	"sudooom.im.chat/internal/model"
)

// 注意：需要运行中的 NATS，不可用时跳过

func getTestNATSClient(t *testing.T) *Client {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		url = "nats://localhost:4222"
	}

	client, err := NewClient(config.NATSConfig{URL: url, MaxReconnects: 1, ReconnectWait: time.Second})
	if err != nil {
		t.Skipf("跳过测试：无法连接 NATS: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestBuildSubject(t *testing.T) {
	assert.Equal(t, "chat.events.message_created", BuildSubject(TopicMessageCreated))
	assert.Equal(t, "chat.events.group_created", BuildSubject(TopicGroupCreated))
}

func TestNATSBus_CrossNode(t *testing.T) {
	clientA := getTestNATSClient(t)
	clientB := getTestNATSClient(t)

	busA := NewNATSBus(clientA.Conn(), NewLocalBus(8), "node-a")
	busB := NewNATSBus(clientB.Conn(), NewLocalBus(8), "node-b")
	require.NoError(t, busA.Start())
	require.NoError(t, busB.Start())
	defer busA.Stop()
	defer busB.Stop()
	require.NoError(t, clientA.Conn().Flush())
	require.NoError(t, clientB.Conn().Flush())

	subA := busA.Subscribe(TopicMessageCreated)
	subB := busB.Subscribe(TopicMessageCreated)
	defer subA.Close()
	defer subB.Close()

	msg := &model.Message{ID: 9, GroupID: 7, SenderID: 3, Text: "hello"}
	require.NoError(t, busA.Publish(context.Background(), MessageCreated(msg)))

	got := receive(t, subB)
	assert.Equal(t, int64(9), got.Message.ID)
	assert.Equal(t, "hello", got.Message.Text)
	assert.Equal(t, "node-a", got.Origin)

	// 发布节点只收到一次
	assert.Equal(t, int64(9), receive(t, subA).Message.ID)
	assertNoEvent(t, subA)
}
