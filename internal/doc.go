// Package internal 實現了一個多人即時球類遊戲的會話伺服器核心。
//
// 客戶端透過 WebSocket 連接，以 4 位數字代碼創建或加入房間，
// 共享一個由伺服器權威推進的物理場景（一顆受摩擦力與玩家踢擊
// 影響的球），狀態以固定 60Hz 的節奏廣播給房間內所有連接。
//
// 架構分層（由內而外）：
//   - 物理引擎（physics.go）：純函數的球體運動與碰撞結算，
//     不知道房間與傳輸的存在
//   - 房間（room.go）：玩家集合、共享遊戲狀態、狀態機與
//     模擬循環的取消把手，一把 RWMutex 保護全部共享狀態
//   - 註冊表（registry.go）：房間代碼與連接索引的唯一擁有者，
//     創建、查找、回收、房主遷移
//   - 模擬循環（loop.go）：每個進行中的房間一個背景 goroutine，
//     推進物理並廣播快照，與玩家在場嚴格綁定
//   - 事件分派（session.go）：入站事件 → 註冊表／房間操作 →
//     出站單播／廣播指令，透過 Transport 介面與傳輸層解耦
//   - WebSocket Hub（websocket.go）：Transport 的實作，
//     連接管理、廣播組、心跳
//
// 並發模型：
//
// 同一個房間的狀態會被兩種情境同時讀寫——為每則入站訊息調用的
// 事件處理，以及房間自己的模擬循環。所有讀寫都收斂在每房間一把
// RWMutex 的臨界區內，持鎖期間只做欄位操作，廣播永遠在鎖外。
// 最後一名玩家離開時，房間從註冊表刪除並取消模擬循環；
// 循環同時在每個 tick 輪詢房間狀態，兩條停止路徑互為保險，
// 不會出現對著零玩家房間繼續 tick 的孤兒循環。
package internal
