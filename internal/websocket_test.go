package internal_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koopa0/system-design/14-realtime-game/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsClient 測試用 WebSocket 客戶端
type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWS(t *testing.T, serverURL string) *wsClient {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(event string, data any) {
	c.t.Helper()
	msg := map[string]any{"event": event}
	if data != nil {
		msg["data"] = data
	}
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

// waitFor 讀取直到收到指定事件（模擬循環的 game_update 可能穿插其間）
func (c *wsClient) waitFor(event string) wireEvent {
	c.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		var ev wireEvent
		require.NoError(c.t, c.conn.ReadJSON(&ev))
		if ev.Event == event {
			return ev
		}
	}
	c.t.Fatalf("等不到事件 %s", event)
	return wireEvent{}
}

func newTestServer(t *testing.T) (*httptest.Server, *internal.Registry) {
	t.Helper()
	logger := testLogger()
	reg := internal.NewRegistry(logger)
	hub := internal.NewHub(logger)
	session := internal.NewSessionHandler(reg, hub, logger)
	hub.Bind(session)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.ServeWS)

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		reg.Stop()
		hub.Stop()
	})
	return srv, reg
}

// TestHub_EndToEnd 測試完整的 wire 流程：
// 連接 → 創建 → 加入 → 開始 → game_update 廣播
func TestHub_EndToEnd(t *testing.T) {
	srv, reg := newTestServer(t)

	// 第一個客戶端：連接並創建房間
	host := dialWS(t, srv.URL)
	connected := host.waitFor(internal.EventConnected)
	var connPayload struct {
		SID string `json:"sid"`
	}
	require.NoError(t, json.Unmarshal(connected.Data, &connPayload))
	assert.NotEmpty(t, connPayload.SID)

	host.send(internal.EventCreateRoom, nil)
	created := host.waitFor(internal.EventRoomCreated)
	var createdPayload struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(created.Data, &createdPayload))
	assert.Regexp(t, `^\d{4}$`, createdPayload.Code)

	// 第二個客戶端：加入，雙方都看到兩人名單
	guest := dialWS(t, srv.URL)
	guest.waitFor(internal.EventConnected)
	guest.send(internal.EventJoinRoom, map[string]any{"code": createdPayload.Code})

	joined := guest.waitFor(internal.EventRoomJoined)
	var joinedPayload struct {
		Code    string   `json:"code"`
		Players []string `json:"players"`
	}
	require.NoError(t, json.Unmarshal(joined.Data, &joinedPayload))
	assert.Equal(t, createdPayload.Code, joinedPayload.Code)
	assert.Len(t, joinedPayload.Players, 2)

	notified := host.waitFor(internal.EventPlayerJoined)
	var notifiedPayload struct {
		Players []string `json:"players"`
	}
	require.NoError(t, json.Unmarshal(notified.Data, &notifiedPayload))
	assert.Len(t, notifiedPayload.Players, 2)

	// 房主開始遊戲，雙方都收到信號與狀態廣播
	host.send(internal.EventStartGame, nil)
	host.waitFor(internal.EventGameStarted)
	guest.waitFor(internal.EventGameStarted)

	update := guest.waitFor(internal.EventGameUpdate)
	var state internal.GameState
	require.NoError(t, json.Unmarshal(update.Data, &state))
	assert.Equal(t, internal.StatusPlaying, state.Status)
	assert.Len(t, state.Players, 2)

	room, found := reg.GetRoom(createdPayload.Code)
	require.True(t, found)
	assert.Equal(t, internal.StatusPlaying, room.Status())
}

// TestHub_RoomError 未知代碼只回覆給發送者
func TestHub_RoomError(t *testing.T) {
	srv, _ := newTestServer(t)

	client := dialWS(t, srv.URL)
	client.waitFor(internal.EventConnected)

	client.send(internal.EventJoinRoom, map[string]any{"code": "0000"})
	errEvent := client.waitFor(internal.EventRoomError)

	var payload struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(errEvent.Data, &payload))
	assert.Equal(t, "Room not found", payload.Error)
}

// TestHub_DisconnectBroadcastsPlayerLeft 斷線觸發離房廣播
func TestHub_DisconnectBroadcastsPlayerLeft(t *testing.T) {
	srv, reg := newTestServer(t)

	host := dialWS(t, srv.URL)
	host.waitFor(internal.EventConnected)
	host.send(internal.EventCreateRoom, nil)
	created := host.waitFor(internal.EventRoomCreated)
	var createdPayload struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(created.Data, &createdPayload))

	guest := dialWS(t, srv.URL)
	guest.waitFor(internal.EventConnected)
	guest.send(internal.EventJoinRoom, map[string]any{"code": createdPayload.Code})
	guest.waitFor(internal.EventRoomJoined)
	host.waitFor(internal.EventPlayerJoined)

	// 關閉 guest 的 socket：host 收到 player_left，房間剩一人
	guest.conn.Close()
	host.waitFor(internal.EventPlayerLeft)

	require.Eventually(t, func() bool {
		room, found := reg.GetRoom(createdPayload.Code)
		return found && room.PlayerCount() == 1
	}, time.Second, 10*time.Millisecond)
}
