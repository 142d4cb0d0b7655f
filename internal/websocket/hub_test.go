package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempmail/client/internal/auth"
	"tempmail/client/internal/domain"
	"tempmail/client/internal/inbox"
	"tempmail/client/internal/notify"
)

func newTestHub(t *testing.T, origins []string) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(origins, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws", hub.Handler())
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, server
}

func dial(t *testing.T, hub *Hub, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() >= 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_Broadcast(t *testing.T) {
	t.Run("推送通知", func(t *testing.T) {
		hub, server := newTestHub(t, nil)
		conn := dial(t, hub, server)

		hub.Notify(notify.Info("%d new message(s)", 2))

		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeNotification, msg.Type)
		assert.Equal(t, TopicNotifications, msg.Topic)
		var n notify.Notification
		require.NoError(t, json.Unmarshal(msg.Data, &n))
		assert.Equal(t, notify.KindInfo, n.Kind)
		assert.Equal(t, "2 new message(s)", n.Message)
	})

	t.Run("推送收件箱更新", func(t *testing.T) {
		hub, server := newTestHub(t, nil)
		conn := dial(t, hub, server)

		hub.PublishInbox(inbox.Update{
			Alias:    "abc@example.com",
			Snapshot: domain.MailSnapshot{{ID: "1", Subject: "hi"}},
			Err:      assert.AnError,
		})

		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeInboxUpdate, msg.Type)
		var data map[string]any
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		assert.Equal(t, "abc@example.com", data["alias"])
		assert.Equal(t, assert.AnError.Error(), data["error"])
		assert.Len(t, data["snapshot"], 1)
	})

	t.Run("取消订阅后不再收到该主题", func(t *testing.T) {
		hub, server := newTestHub(t, nil)
		conn := dial(t, hub, server)

		require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeUnsubscribe, Topic: TopicNotifications}))
		ack := readMessage(t, conn)
		require.Equal(t, MessageTypeUnsubscribed, ack.Type)

		hub.Notify(notify.Error("ignored"))
		hub.PublishAuthStatus(auth.StatusAuthenticated)

		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeAuthStatus, msg.Type)
		assert.JSONEq(t, `{"status":"authenticated"}`, string(msg.Data))
	})
}

func TestHub_ClientMessages(t *testing.T) {
	hub, server := newTestHub(t, nil)
	conn := dial(t, hub, server)

	t.Run("回应 ping", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))
		assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)
	})

	t.Run("未知主题", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeSubscribe, Topic: "weather"}))
		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeError, msg.Type)
		assert.Contains(t, msg.Error, "weather")
	})

	t.Run("格式错误的消息", func(t *testing.T) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeError, msg.Type)
	})
}

func TestHub_Unregister(t *testing.T) {
	hub, server := newTestHub(t, nil)
	conn := dial(t, hub, server)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_Origin(t *testing.T) {
	hub, server := newTestHub(t, []string{"http://allowed.test"})
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	header := http.Header{"Origin": []string{"http://evil.test"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	header.Set("Origin", "http://allowed.test")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_Shutdown(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	cancel()
	<-stopped

	assert.NotPanics(t, func() {
		hub.Notify(notify.Info("after shutdown"))
	})
	assert.Zero(t, hub.ClientCount())
}
