package model

import "time"

// Event は上流から受信した1件のEventSub通知を表す。
// Payloadは受信エンベロープ全体をそのまま保持し、配信時も加工しない。
// CreatedAtは挿入時にデータベースが付与し、ユーザーごとの配信順序キーになる。
// 更新操作は存在せず、クレーム成功の瞬間に行ごと削除される。
type Event struct {
	ID        string
	UserID    string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}
