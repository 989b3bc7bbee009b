package internal_test

import (
	"testing"

	"github.com/koopa0/system-design/14-realtime-game/internal"
	"github.com/stretchr/testify/assert"
)

// TestStepBall 測試球體運動的單步推進
//
// 期望值一律由輸入在運行期算出（而非編譯期常數摺疊），
// 確保與引擎做的是同一串浮點運算、逐位元一致。
func TestStepBall(t *testing.T) {
	tests := []struct {
		name     string
		ball     internal.Ball
		validate func(t *testing.T, in, out internal.Ball)
	}{
		{
			name: "position advances then friction applies",
			ball: internal.Ball{X: 300, Y: 200, VX: 5, VY: -3},
			validate: func(t *testing.T, in, out internal.Ball) {
				assert.Equal(t, 305.0, out.X)
				assert.Equal(t, 197.0, out.Y)
				// 摩擦在位移之後套用，係數精確為 0.98
				assert.Equal(t, in.VX*internal.Friction, out.VX)
				assert.Equal(t, in.VY*internal.Friction, out.VY)
			},
		},
		{
			name: "stationary ball stays put",
			ball: internal.Ball{X: 300, Y: 200},
			validate: func(t *testing.T, in, out internal.Ball) {
				assert.Equal(t, in, out)
			},
		},
		{
			name: "bounce off right wall without clamping position",
			ball: internal.Ball{X: 585, Y: 200, VX: 10},
			validate: func(t *testing.T, in, out internal.Ball) {
				// 位置越界後不被夾回界內，僅速度反轉
				assert.Equal(t, 595.0, out.X)
				assert.Equal(t, -(in.VX * internal.Friction), out.VX)
			},
		},
		{
			name: "bounce off left wall",
			ball: internal.Ball{X: 12, Y: 200, VX: -5},
			validate: func(t *testing.T, in, out internal.Ball) {
				assert.Equal(t, 7.0, out.X)
				assert.Equal(t, -(in.VX * internal.Friction), out.VX)
			},
		},
		{
			name: "bounce off bottom wall",
			ball: internal.Ball{X: 300, Y: 388, VY: 6},
			validate: func(t *testing.T, in, out internal.Ball) {
				assert.Equal(t, 394.0, out.Y)
				assert.Equal(t, -(in.VY * internal.Friction), out.VY)
			},
		},
		{
			name: "bounce off top wall",
			ball: internal.Ball{X: 300, Y: 11, VY: -4},
			validate: func(t *testing.T, in, out internal.Ball) {
				assert.Equal(t, 7.0, out.Y)
				assert.Equal(t, -(in.VY * internal.Friction), out.VY)
			},
		},
		{
			name: "friction applies even on bounce tick",
			ball: internal.Ball{X: 589, Y: 389, VX: 3, VY: 3},
			validate: func(t *testing.T, in, out internal.Ball) {
				// 反彈與否不影響摩擦：速度大小都是 0.98 倍
				assert.Equal(t, -(in.VX * internal.Friction), out.VX)
				assert.Equal(t, -(in.VY * internal.Friction), out.VY)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, tt.ball, internal.StepBall(tt.ball))
		})
	}
}

// TestApplyKick 測試玩家與球的碰撞結算
func TestApplyKick(t *testing.T) {
	tests := []struct {
		name     string
		player   internal.Position
		ball     internal.Ball
		validate func(t *testing.T, in, out internal.Ball)
	}{
		{
			name:   "inside collision radius applies kick",
			player: internal.Position{X: 290, Y: 200},
			ball:   internal.Ball{X: 300, Y: 200},
			validate: func(t *testing.T, in, out internal.Ball) {
				// dx = -10，vx -= dx*0.1 → 球被推離玩家（向右）
				assert.Equal(t, -((290.0 - in.X) * internal.KickForce), out.VX)
				assert.Equal(t, 0.0, out.VY)
				assert.Positive(t, out.VX)
			},
		},
		{
			name:   "kick direction is away from player",
			player: internal.Position{X: 305, Y: 210},
			ball:   internal.Ball{X: 300, Y: 200},
			validate: func(t *testing.T, in, out internal.Ball) {
				// 玩家在球的右下方，球被推向左上
				assert.Negative(t, out.VX)
				assert.Negative(t, out.VY)
			},
		},
		{
			name:   "outside collision radius does nothing",
			player: internal.Position{X: 400, Y: 200},
			ball:   internal.Ball{X: 300, Y: 200, VX: 1, VY: 2},
			validate: func(t *testing.T, in, out internal.Ball) {
				assert.Equal(t, in, out)
			},
		},
		{
			name:   "exactly at collision distance does nothing",
			player: internal.Position{X: 300 + internal.CollisionDistance, Y: 200},
			ball:   internal.Ball{X: 300, Y: 200},
			validate: func(t *testing.T, in, out internal.Ball) {
				// 嚴格小於才算碰撞
				assert.Equal(t, in, out)
			},
		},
		{
			name:   "kick accumulates on existing velocity",
			player: internal.Position{X: 295, Y: 195},
			ball:   internal.Ball{X: 300, Y: 200, VX: 1, VY: 1},
			validate: func(t *testing.T, in, out internal.Ball) {
				assert.Equal(t, in.VX-(295.0-in.X)*internal.KickForce, out.VX)
				assert.Equal(t, in.VY-(195.0-in.Y)*internal.KickForce, out.VY)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, tt.ball, internal.ApplyKick(tt.player, tt.ball))
		})
	}
}
