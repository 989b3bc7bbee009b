package internal

import (
	"context"
	"log/slog"
	"time"
)

// 系統設計問題：
//   權威模擬要在伺服器端以固定節奏推進，
//   如何讓每個房間的背景循環與房間生命週期嚴格綁定？
//
// 設計方案：
//   ✅ 每個 playing 房間一個 goroutine，由 Room 透過 cancel 把手持有
//   ✅ 雙重停止路徑：context 取消（註冊表回收）+ 每 tick 輪詢房間狀態
//   ✅ 鎖內只做物理推進與快照，廣播在鎖外
//   ✅ panic 隔離：單一房間的循環崩潰不影響其他房間與註冊表

// SimulationLoop 單一房間的模擬循環
type SimulationLoop struct {
	room      *Room
	transport Transport
	logger    *slog.Logger
	interval  time.Duration
}

// StartSimulation 為房間啟動模擬循環
//
// 呼叫端必須先完成 waiting → playing 的狀態轉換（StartGame）——
// 防止重複啟動的守衛在狀態轉換上，不在這裡。
func StartSimulation(room *Room, transport Transport, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	room.attachLoop(cancel, done)

	loop := &SimulationLoop{
		room:      room,
		transport: transport,
		logger:    logger,
		interval:  TickInterval,
	}
	go loop.run(ctx, done)
}

// run 模擬循環主體
//
// 每個 tick：檢查狀態 → 推進物理 → 鎖外廣播完整快照。
// 狀態離開 playing 或 context 被取消時退出，
// 兩條路徑都保證在一個 tick 間隔內停止廣播。
func (l *SimulationLoop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := recover(); err != nil {
			l.logger.Error("模擬循環發生 panic",
				"room_code", l.room.Code,
				"error", err)
		}
	}()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("模擬循環啟動",
		"room_code", l.room.Code,
		"interval", l.interval)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("模擬循環已取消", "room_code", l.room.Code)
			return
		case <-ticker.C:
			state, ok := l.room.Tick()
			if !ok {
				l.logger.Info("模擬循環結束", "room_code", l.room.Code)
				return
			}
			l.transport.EmitToGroup(l.room.Code, EventGameUpdate, state, "")
		}
	}
}
