package internal

import (
	"encoding/json"
	"errors"
	"log/slog"
)

// 事件名稱：進出兩個方向的 wire 格式都由既有客戶端約定，不可改名
const (
	// 出站
	EventConnected    = "connected"
	EventRoomCreated  = "room_created"
	EventRoomJoined   = "room_joined"
	EventPlayerJoined = "player_joined"
	EventRoomError    = "room_error"
	EventPlayerLeft   = "player_left"
	EventGameStarted  = "game_started"
	EventGameUpdate   = "game_update"

	// 入站
	EventCreateRoom = "create_room"
	EventJoinRoom   = "join_room"
	EventStartGame  = "start_game"
	EventPlayerMove = "player_move"
)

// Transport 傳輸邊界
//
// 核心只透過這三個原語對外發話，從不持有 socket。
// 實作端（WebSocket hub）負責連接分組與實際送出；
// 三個方法都不得阻塞呼叫者（慢客戶端在傳輸層丟訊息，不回壓到核心）。
type Transport interface {
	RegisterInGroup(connID, code string)
	EmitTo(connID, event string, payload any)
	EmitToGroup(code, event string, payload any, excludeConnID string)
}

// SessionHandler 事件分派器
//
// 把六種入站事件映射到註冊表／房間操作，並產生對應的出站訊息。
//
// 錯誤策略（刻意保留的寬容設計）：
//   - join_room 的兩種失敗（房間不存在、房間已滿）以 room_error 單播回覆
//   - 其餘非法操作（非房主 start、不在房間的 move、重複 create）
//     一律靜默丟棄，只留 debug 日誌，不回傳錯誤
type SessionHandler struct {
	registry  *Registry
	transport Transport
	logger    *slog.Logger
}

// NewSessionHandler 創建事件分派器
func NewSessionHandler(registry *Registry, transport Transport, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		registry:  registry,
		transport: transport,
		logger:    logger,
	}
}

// 入站 payload
type joinRoomPayload struct {
	Code string `json:"code"`
}

type playerMovePayload struct {
	Position Position `json:"position"`
}

// Dispatch 解析入站事件並分派
//
// 來自傳輸層的統一入口；payload 解析失敗視同非法操作，靜默丟棄。
func (h *SessionHandler) Dispatch(connID, event string, data json.RawMessage) {
	switch event {
	case EventCreateRoom:
		h.HandleCreateRoom(connID)
	case EventJoinRoom:
		var p joinRoomPayload
		if err := json.Unmarshal(data, &p); err != nil || p.Code == "" {
			h.logger.Debug("忽略格式錯誤的 join_room", "conn_id", connID)
			return
		}
		h.HandleJoinRoom(connID, p.Code)
	case EventStartGame:
		h.HandleStartGame(connID)
	case EventPlayerMove:
		var p playerMovePayload
		if err := json.Unmarshal(data, &p); err != nil {
			h.logger.Debug("忽略格式錯誤的 player_move", "conn_id", connID)
			return
		}
		h.HandlePlayerMove(connID, p.Position)
	default:
		h.logger.Debug("收到未知事件",
			"event", event,
			"conn_id", connID)
	}
}

// HandleConnect 連接建立，回覆 session id
func (h *SessionHandler) HandleConnect(connID string) {
	h.transport.EmitTo(connID, EventConnected, map[string]any{"sid": connID})
	h.logger.Info("客戶端已連接", "conn_id", connID)
}

// HandleDisconnect 連接關閉
//
// 從房間移除玩家；房間若還有人，向剩餘成員廣播 player_left。
func (h *SessionHandler) HandleDisconnect(connID string) {
	removal, ok := h.registry.RemovePlayer(connID)
	h.logger.Info("客戶端已斷線", "conn_id", connID)

	if !ok || removal.RoomGone {
		return
	}
	h.transport.EmitToGroup(removal.Code, EventPlayerLeft, map[string]any{"sid": connID}, "")
}

// HandleCreateRoom 創建房間
func (h *SessionHandler) HandleCreateRoom(connID string) {
	room, err := h.registry.CreateRoom(connID)
	if err != nil {
		// 已在房間內或代碼空間耗盡：靜默丟棄
		h.logger.Debug("忽略 create_room",
			"conn_id", connID,
			"reason", err)
		return
	}

	h.transport.RegisterInGroup(connID, room.Code)
	h.transport.EmitTo(connID, EventRoomCreated, map[string]any{"code": room.Code})
}

// HandleJoinRoom 加入房間
func (h *SessionHandler) HandleJoinRoom(connID, code string) {
	players, err := h.registry.JoinRoom(connID, code)
	switch {
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrRoomFull):
		h.transport.EmitTo(connID, EventRoomError, map[string]any{"error": err.Error()})
		return
	case err != nil:
		h.logger.Debug("忽略 join_room",
			"conn_id", connID,
			"reason", err)
		return
	}

	h.transport.RegisterInGroup(connID, code)
	h.transport.EmitTo(connID, EventRoomJoined, map[string]any{
		"code":    code,
		"players": players,
	})
	// 既有成員收到更新後的名單，加入者自己不重複收
	h.transport.EmitToGroup(code, EventPlayerJoined, map[string]any{
		"players": players,
	}, connID)
}

// HandleStartGame 開始遊戲
//
// 順序固定：先廣播 game_started 信號，再啟動模擬循環，
// 最後廣播初始狀態快照（此時成員表已掛進共享狀態）。
func (h *SessionHandler) HandleStartGame(connID string) {
	room, ok := h.registry.RoomOf(connID)
	if !ok {
		h.logger.Debug("忽略 start_game：不在任何房間", "conn_id", connID)
		return
	}

	if !room.StartGame(connID) {
		h.logger.Debug("忽略 start_game：非房主或已開始",
			"conn_id", connID,
			"room_code", room.Code)
		return
	}

	h.logger.Info("遊戲開始",
		"room_code", room.Code,
		"players", room.PlayerCount())

	h.transport.EmitToGroup(room.Code, EventGameStarted, nil, "")
	StartSimulation(room, h.transport, h.logger)
	h.transport.EmitToGroup(room.Code, EventGameUpdate, room.Snapshot(), "")
}

// HandlePlayerMove 更新玩家位置
//
// 不產生即時回覆——新位置與碰撞結果由下一個 tick 的 game_update 帶出。
func (h *SessionHandler) HandlePlayerMove(connID string, pos Position) {
	room, ok := h.registry.RoomOf(connID)
	if !ok {
		return
	}
	room.MovePlayer(connID, pos)
}
