package internal

import "time"

// 遊戲常數
//
// 數值由遊戲設計決定：球場 600x400，邊界內縮 10 作為反彈線。
// 這些數字同時被客戶端渲染端假設，修改前需要兩端同步。
const (
	// 球場反彈邊界
	MinX = 10.0
	MaxX = 590.0
	MinY = 10.0
	MaxY = 390.0

	// 球的初始位置（球場中心）
	BallResetX = 300.0
	BallResetY = 200.0

	// 玩家預設出生點
	SpawnX = 100.0
	SpawnY = 100.0

	// Friction 摩擦係數，每個 tick 對速度套用一次
	Friction = 0.98

	// CollisionDistance 玩家與球的碰撞半徑
	CollisionDistance = 25.0

	// KickForce 踢球力度係數
	KickForce = 0.1

	// MaxPlayers 單房間最大玩家數
	MaxPlayers = 4

	// TickInterval 模擬循環的節奏（60Hz）
	TickInterval = time.Second / 60
)

// Position 平面座標
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Ball 球的位置與速度
type Ball struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// StepBall 推進一個 tick 的球體運動
//
// 純函數：不碰房間、不碰鎖，單元測試與並發呼叫都安全。
//
// 計算順序固定：先位移、再摩擦、最後邊界反彈。
// 反彈只反轉速度，不把位置夾回界內，球可能短暫越過邊界
// 再彈回來——客戶端動畫依賴這個行為，不要「修正」成 clamp。
func StepBall(b Ball) Ball {
	b.X += b.VX
	b.Y += b.VY

	b.VX *= Friction
	b.VY *= Friction

	if b.X < MinX || b.X > MaxX {
		b.VX = -b.VX
	}
	if b.Y < MinY || b.Y > MaxY {
		b.VY = -b.VY
	}

	return b
}

// ApplyKick 處理玩家與球的碰撞
//
// 距離嚴格小於 CollisionDistance 才算碰撞。施力方向遠離玩家
// （對速度做減法），力度與玩家到球的向量成正比。
// 沒有冷卻機制：玩家停在碰撞半徑內，每次 move 事件都會再施力一次。
func ApplyKick(p Position, b Ball) Ball {
	dx := p.X - b.X
	dy := p.Y - b.Y

	if dx*dx+dy*dy >= CollisionDistance*CollisionDistance {
		return b
	}

	b.VX -= dx * KickForce
	b.VY -= dy * KickForce
	return b
}
