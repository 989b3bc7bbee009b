package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何把「具名事件 + 房間廣播組」的傳輸能力架在 WebSocket 上？
//
// 設計方案：
//   ✅ Hub 模式 - 集中管理所有連接與廣播組
//   ✅ 每連接一個緩衝 Send channel - 非阻塞發送，慢客戶端丟訊息不拖累房間
//   ✅ Ping/Pong 心跳（54s/60s）- 檢測死連接
//   ✅ readPump 結束即觸發 disconnect 事件 - 斷線與離房永遠一致

// wireMessage 兩個方向共用的訊息框架：{"event": "...", "data": {...}}
type wireMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hub WebSocket 連接中心，實作核心的 Transport 邊界
//
// 連接映射：
//   - conns:  連接 ID → Connection
//   - groups: 房間代碼 → 成員連接（對應核心的廣播組）
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	session  *SessionHandler

	conns  map[string]*Connection
	groups map[string]map[string]*Connection
	mu     sync.RWMutex
}

// Connection 單一 WebSocket 連接
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	hub       *Hub
	closeOnce sync.Once
}

// NewHub 創建 WebSocket Hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 生產環境應檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns:  make(map[string]*Connection),
		groups: make(map[string]map[string]*Connection),
	}
}

// Bind 綁定事件分派器
//
// Hub 與 SessionHandler 互相依賴（hub 收訊息交給 handler，
// handler 透過 hub 發訊息），先建構再綁定。
func (hub *Hub) Bind(session *SessionHandler) {
	hub.session = session
}

// ServeWS 處理 WebSocket 連接
//
// 升級後分配 session id、註冊連接、啟動讀寫 goroutine，
// 並向客戶端送出 connected 確認。
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	c := &Connection{
		ID:   uuid.NewString(),
		Conn: conn,
		Send: make(chan []byte, 256),
		hub:  hub,
	}

	hub.register(c)

	// 先排入 connected 確認再啟動讀取，客戶端看到的第一則訊息必是它
	hub.session.HandleConnect(c.ID)

	go c.writePump()
	go c.readPump()

	hub.logger.Info("WebSocket 連接建立",
		"conn_id", c.ID,
		"remote", r.RemoteAddr)
}

// RegisterInGroup 把連接加入房間廣播組
func (hub *Hub) RegisterInGroup(connID, code string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	c, ok := hub.conns[connID]
	if !ok {
		return
	}
	if hub.groups[code] == nil {
		hub.groups[code] = make(map[string]*Connection)
	}
	hub.groups[code][connID] = c
}

// EmitTo 單播事件
func (hub *Hub) EmitTo(connID, event string, payload any) {
	msg, err := encodeMessage(event, payload)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "event", event, "error", err)
		return
	}

	hub.mu.RLock()
	c, ok := hub.conns[connID]
	hub.mu.RUnlock()
	if !ok {
		return
	}
	c.queue(msg)
}

// EmitToGroup 廣播事件到房間組，可排除單一連接
//
// 訊息只序列化一次；發送是非阻塞的，排隊失敗的慢客戶端丟掉這則訊息。
func (hub *Hub) EmitToGroup(code, event string, payload any, excludeConnID string) {
	msg, err := encodeMessage(event, payload)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "event", event, "error", err)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for id, c := range hub.groups[code] {
		if id == excludeConnID {
			continue
		}
		c.queue(msg)
	}
}

// Stop 關閉所有連接（伺服器關閉用）
func (hub *Hub) Stop() {
	hub.mu.Lock()
	conns := make([]*Connection, 0, len(hub.conns))
	for _, c := range hub.conns {
		conns = append(conns, c)
	}
	hub.conns = make(map[string]*Connection)
	hub.groups = make(map[string]map[string]*Connection)
	hub.mu.Unlock()

	for _, c := range conns {
		c.closeSend()
		c.Conn.Close()
	}

	hub.logger.Info("WebSocket Hub 已停止", "connections_closed", len(conns))
}

// register 註冊連接
func (hub *Hub) register(c *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.conns[c.ID] = c
}

// unregister 移除連接與其所有組成員身份
func (hub *Hub) unregister(c *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if cur, ok := hub.conns[c.ID]; ok && cur == c {
		delete(hub.conns, c.ID)
	}
	for code, members := range hub.groups {
		if members[c.ID] == c {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(hub.groups, code)
			}
		}
	}
}

// encodeMessage 組出站訊息框架
func encodeMessage(event string, payload any) ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: event, Data: payload})
}

// queue 非阻塞排隊出站訊息
func (c *Connection) queue(msg []byte) {
	select {
	case c.Send <- msg:
	default:
		// 緩衝區滿：丟棄這則訊息，下一個 tick 會帶來完整狀態
		c.hub.logger.Warn("連接緩衝區滿，丟棄訊息", "conn_id", c.ID)
	}
}

// closeSend 關閉 Send channel（只會執行一次）
func (c *Connection) closeSend() {
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

// readPump 讀取客戶端訊息
//
// 心跳（讀取端）：60 秒內沒有任何訊息（含 Pong）就視為死連接。
// 讀取循環結束時觸發 disconnect 事件——不論客戶端是正常關閉、
// 異常斷線還是心跳逾時，離房邏輯都走同一條路徑。
func (c *Connection) readPump() {
	defer func() {
		c.hub.session.HandleDisconnect(c.ID)
		c.hub.unregister(c)
		c.closeSend()
		c.Conn.Close()
	}()

	if err := c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"conn_id", c.ID)
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var msg wireMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.logger.Debug("解析客戶端訊息失敗",
				"error", err,
				"conn_id", c.ID)
			continue
		}

		c.hub.session.Dispatch(c.ID, msg.Event, msg.Data)
	}
}

// writePump 寫入訊息到客戶端
//
// 心跳（發送端）：每 54 秒發一次 Ping，錯開常見的 60 秒代理逾時。
// Send channel 被關閉時送出 Close 訊息後結束。
func (c *Connection) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 順手清掉已排隊的訊息，減少系統呼叫
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
