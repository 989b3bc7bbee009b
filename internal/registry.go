package internal

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
)

// Registry 房間註冊表
//
// 房間的唯一擁有者：所有 Room 只能透過註冊表取得，
// 事件處理端不得跨呼叫快取 Room 引用（避免對著已被回收的房間操作）。
//
// 兩張索引在同一把鎖下保持同步：
//   - rooms:    代碼 → 房間
//   - connRoom: 連接 → 代碼（任一連接同時最多屬於一個房間）
//
// 鎖順序固定為 Registry.mu → Room.Mu，模擬循環只取 Room.Mu，不會逆序。
type Registry struct {
	rooms    map[string]*Room
	connRoom map[string]string
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewRegistry 創建房間註冊表
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		connRoom: make(map[string]string),
		logger:   logger,
	}
}

// Removal 一次移除玩家的結果，供呼叫端決定要發哪些通知
type Removal struct {
	Code     string // 玩家原本所在的房間
	NewHost  string // 非空表示房主已遷移
	RoomGone bool   // 房間已空並從註冊表移除
}

// CreateRoom 創建房間，創建者成為唯一玩家與房主
//
// 已在房間內的連接不能再創建（連接同時最多屬於一個房間），
// 呼叫端對這種請求靜默丟棄。
func (reg *Registry) CreateRoom(connID string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if code, ok := reg.connRoom[connID]; ok {
		return nil, fmt.Errorf("連接已在房間 %s 中", code)
	}

	code, err := reg.generateCodeLocked()
	if err != nil {
		return nil, err
	}

	room := NewRoom(code, connID)
	reg.rooms[code] = room
	reg.connRoom[connID] = code

	reg.logger.Info("房間已創建",
		"room_code", code,
		"host", connID)

	return room, nil
}

// JoinRoom 加入房間，回傳更新後的玩家列表（依加入順序）
func (reg *Registry) JoinRoom(connID, code string) ([]string, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if existing, ok := reg.connRoom[connID]; ok {
		return nil, fmt.Errorf("連接已在房間 %s 中", existing)
	}

	room, ok := reg.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}

	players, err := room.AddPlayer(connID)
	if err != nil {
		return nil, err
	}

	reg.connRoom[connID] = code

	reg.logger.Info("玩家加入房間",
		"room_code", code,
		"conn_id", connID,
		"players", len(players))

	return players, nil
}

// RemovePlayer 把連接從其所在房間移除
//
// 連接不在任何房間時回傳 ok=false（no-op）。
// 最後一名玩家離開時：狀態被標為 ended（模擬循環的停止信號）、
// 房間從註冊表刪除、循環被顯式取消——刪除後的房間最多再被 tick 一次。
func (reg *Registry) RemovePlayer(connID string) (Removal, bool) {
	reg.mu.Lock()

	code, ok := reg.connRoom[connID]
	if !ok {
		reg.mu.Unlock()
		return Removal{}, false
	}
	delete(reg.connRoom, connID)

	room := reg.rooms[code]
	newHost, empty := room.RemovePlayer(connID)
	if empty {
		delete(reg.rooms, code)
	}
	reg.mu.Unlock()

	if empty {
		// 在註冊表鎖外取消並等待循環退出
		room.StopLoop()
		reg.logger.Info("房間已移除", "room_code", code)
	} else if newHost != "" {
		reg.logger.Info("房主已遷移",
			"room_code", code,
			"new_host", newHost)
	}

	return Removal{Code: code, NewHost: newHost, RoomGone: empty}, true
}

// GetRoom 依代碼查找房間
//
// 回傳的是活的共享引用：對它的修改會立即被模擬循環看到。
func (reg *Registry) GetRoom(code string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[code]
	return room, ok
}

// RoomOf 查找連接所在的房間
func (reg *Registry) RoomOf(connID string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	code, ok := reg.connRoom[connID]
	if !ok {
		return nil, false
	}
	room, ok := reg.rooms[code]
	return room, ok
}

// Stop 停止所有房間的模擬循環（伺服器關閉用）
func (reg *Registry) Stop() {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.rooms = make(map[string]*Room)
	reg.connRoom = make(map[string]string)
	reg.mu.Unlock()

	for _, room := range rooms {
		room.StopLoop()
	}

	reg.logger.Info("房間註冊表已停止", "rooms_closed", len(rooms))
}

// Stats 統計資訊
func (reg *Registry) Stats() map[string]any {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	statusCount := make(map[RoomStatus]int)
	totalPlayers := 0
	for _, room := range reg.rooms {
		statusCount[room.Status()]++
		totalPlayers += room.PlayerCount()
	}

	return map[string]any{
		"total_rooms":   len(reg.rooms),
		"total_players": totalPlayers,
		"by_status":     statusCount,
	}
}

// 代碼空間只有 9000 個，碰撞必須偵測重試而不是覆蓋現有房間
const maxCodeAttempts = 100

// generateCodeLocked 生成 4 位數字房間代碼（1000-9999）
//
// 格式是既有客戶端的輸入約定，不可改。需要持有 reg.mu。
func (reg *Registry) generateCodeLocked() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(9000))
		if err != nil {
			return "", fmt.Errorf("生成房間代碼失敗: %w", err)
		}
		code := fmt.Sprintf("%d", n.Int64()+1000)
		if _, exists := reg.rooms[code]; !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("房間代碼空間耗盡：重試 %d 次皆碰撞", maxCodeAttempts)
}
