package internal

import (
	"context"
	"errors"
	"sync"
)

// 系統設計問題：
//   如何讓多個玩家即時共享同一個權威物理模擬？
//
// 核心挑戰：
//   1. 並發修改：玩家事件（移動、離開）與背景模擬循環同時讀寫球與玩家狀態
//   2. 生命週期：模擬循環必須與「房間有玩家且在進行中」嚴格綁定
//   3. 房主遷移：房主離開時，開始遊戲的權限要轉移給最早加入的玩家
//   4. 廣播一致性：每個 tick 送出的必須是一份完整、不會再被改動的快照
//
// 設計方案：
//   ✅ 每房間一把 RWMutex - 讀寫共享狀態的唯一互斥範圍
//   ✅ 狀態機（waiting → playing → ended）- 模擬循環以狀態為準
//   ✅ 加入序號 - 房主繼承順序明確可測
//   ✅ 快照廣播 - 鎖內複製、鎖外發送，鎖內絕不做 I/O

// RoomStatus 房間狀態
//
// 狀態轉換規則：
//   - waiting → playing：房主送出 start_game
//   - playing → ended：最後一名玩家離開（房間同時從註冊表移除）
//
// 不變量：模擬循環運行 iff 狀態為 playing。
// 循環每個 tick 重新檢查狀態，所以狀態一旦離開 playing，
// 循環最多再過一個 tick 就會自行退出。
type RoomStatus string

const (
	StatusWaiting RoomStatus = "waiting" // 等待房主開始
	StatusPlaying RoomStatus = "playing" // 模擬進行中
	StatusEnded   RoomStatus = "ended"   // 已結束，等待回收
)

// 錯誤字串同時是送往客戶端的 room_error 內容，由既有客戶端約定，不可改。
var (
	ErrRoomNotFound = errors.New("Room not found")
	ErrRoomFull     = errors.New("Room full")
)

// Player 房間內的玩家
//
// Position 是客戶端回報的原始座標：伺服器不做範圍夾制或合法性驗證
// （信任客戶端的既有設計，未來若加驗證層需兩端一起評估）。
type Player struct {
	ID       string   `json:"-"`
	Position Position `json:"position"`

	joinOrder int // 房主繼承順序
}

// GameState 廣播給客戶端的共享遊戲狀態
//
// Players 在 waiting 期間是空的；start_game 時直接掛上房間的成員表
// （同一張 map），之後的移動與中途加入都會直接反映在每個 tick 的廣播裡。
type GameState struct {
	Players map[string]*Player `json:"players"`
	Ball    Ball               `json:"ball"`
	Status  RoomStatus         `json:"status"`
}

// Room 遊戲房間
//
// 並發契約：Players 與 State（含球與狀態）同時被兩個情境讀寫——
// 事件處理（加入、移動、離開）與模擬循環的 tick。
// 所有讀寫都必須在 Mu 的保護下進行，且持鎖期間只做欄位操作，
// 不做網路 I/O，鎖的持有時間有界。
type Room struct {
	Code   string // 不可變，分配後即是房間的唯一識別
	HostID string // 有權開始遊戲的連接

	Players map[string]*Player
	State   GameState

	Mu sync.RWMutex

	nextJoin int
	cancel   context.CancelFunc // 模擬循環的取消把手
	done     chan struct{}      // 循環退出時關閉
}

// NewRoom 創建房間，創建者自動成為唯一玩家與房主
func NewRoom(code, hostID string) *Room {
	r := &Room{
		Code:    code,
		HostID:  hostID,
		Players: make(map[string]*Player),
		State: GameState{
			Players: make(map[string]*Player),
			Ball:    Ball{X: BallResetX, Y: BallResetY},
			Status:  StatusWaiting,
		},
	}
	r.addPlayerLocked(hostID)
	return r
}

// AddPlayer 加入玩家
//
// 只檢查容量，不檢查狀態：遊戲進行中仍可加入
// （共享狀態與成員表是同一張 map，下一個 tick 就會廣播到新玩家）。
func (r *Room) AddPlayer(connID string) ([]string, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if len(r.Players) >= MaxPlayers {
		return nil, ErrRoomFull
	}

	r.addPlayerLocked(connID)
	return r.playerIDsLocked(), nil
}

func (r *Room) addPlayerLocked(connID string) {
	r.Players[connID] = &Player{
		ID:        connID,
		Position:  Position{X: SpawnX, Y: SpawnY},
		joinOrder: r.nextJoin,
	}
	r.nextJoin++
}

// RemovePlayer 移除玩家
//
// 回傳新房主的 ID（若發生遷移）與房間是否已空。
// 房間變空時狀態被設為 ended——這是模擬循環的停止信號，
// 循環在下一個 tick 檢查狀態時就會退出。
func (r *Room) RemovePlayer(connID string) (newHost string, empty bool) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if _, ok := r.Players[connID]; !ok {
		return "", len(r.Players) == 0
	}

	delete(r.Players, connID)
	// waiting 期間共享狀態還是獨立的空 map，start 之後兩者是同一張 map
	delete(r.State.Players, connID)

	if len(r.Players) == 0 {
		if r.State.Status == StatusPlaying {
			r.State.Status = StatusEnded
		}
		return "", true
	}

	if r.HostID == connID {
		// 房主遷移：剩餘玩家中加入序號最小者
		var earliest *Player
		for _, p := range r.Players {
			if earliest == nil || p.joinOrder < earliest.joinOrder {
				earliest = p
			}
		}
		r.HostID = earliest.ID
		newHost = earliest.ID
	}

	return newHost, false
}

// StartGame 開始遊戲
//
// 只有房主、且房間仍在 waiting 才能開始。以狀態轉換作為防重入守衛：
// 同房間的兩個併發 start_game 只有一個能完成 waiting → playing，
// 所以每個房間最多只會啟動一個模擬循環。
func (r *Room) StartGame(connID string) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if connID != r.HostID || r.State.Status != StatusWaiting {
		return false
	}

	r.State.Status = StatusPlaying
	// 掛上同一張 map：之後的移動與中途加入直接出現在廣播狀態中
	r.State.Players = r.Players
	return true
}

// MovePlayer 更新玩家位置並結算與球的碰撞
//
// 位置寫入與踢球判定在同一個臨界區內完成，
// 兩個玩家同時踢球時力道依序疊加、不會互相覆蓋。
// 非 playing 狀態或玩家不在共享狀態中時靜默忽略。
func (r *Room) MovePlayer(connID string, pos Position) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.State.Status != StatusPlaying {
		return false
	}

	p, ok := r.State.Players[connID]
	if !ok {
		return false
	}

	p.Position = pos
	r.State.Ball = ApplyKick(pos, r.State.Ball)
	return true
}

// Tick 推進一個 tick 並回傳廣播用的快照
//
// 狀態已離開 playing 時回傳 false，模擬循環以此自行終止。
func (r *Room) Tick() (GameState, bool) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.State.Status != StatusPlaying {
		return GameState{}, false
	}

	r.State.Ball = StepBall(r.State.Ball)
	return r.snapshotLocked(), true
}

// Snapshot 取得共享狀態的深拷貝
func (r *Room) Snapshot() GameState {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() GameState {
	players := make(map[string]*Player, len(r.State.Players))
	for id, p := range r.State.Players {
		cp := *p
		players[id] = &cp
	}
	return GameState{
		Players: players,
		Ball:    r.State.Ball,
		Status:  r.State.Status,
	}
}

// Status 當前房間狀態
func (r *Room) Status() RoomStatus {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return r.State.Status
}

// PlayerCount 當前玩家數量
func (r *Room) PlayerCount() int {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return len(r.Players)
}

// PlayerIDs 玩家 ID 列表（依加入順序）
func (r *Room) PlayerIDs() []string {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return r.playerIDsLocked()
}

func (r *Room) playerIDsLocked() []string {
	ids := make([]string, 0, len(r.Players))
	for id := range r.Players {
		ids = append(ids, id)
	}
	// map 遍歷無序，依加入序號還原順序（人數上限 4，插入排序足夠）
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && r.Players[ids[j]].joinOrder < r.Players[ids[j-1]].joinOrder; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// attachLoop 綁定模擬循環的取消把手
func (r *Room) attachLoop(cancel context.CancelFunc, done chan struct{}) {
	r.Mu.Lock()
	r.cancel = cancel
	r.done = done
	r.Mu.Unlock()
}

// StopLoop 取消模擬循環並等待其退出
//
// 沒有循環在跑時是 no-op。取消與狀態輪詢是兩條獨立的停止路徑，
// 任一條生效循環都會在一個 tick 內停止廣播。
func (r *Room) StopLoop() {
	r.Mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.done = nil
	r.Mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
