package notification

import (
	"sync"
)

// PushMessage はライブ配信チャネルでクライアントへ送るメッセージ。
type PushMessage struct {
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// Link は通知に関連する画面へのリンク。
	Link string `json:"link,omitempty"`
}

// hubChannelBuffer は接続ごとの配信バッファサイズ。
// バッファが満杯の接続への送信はスキップされる（配信は最善努力）。
const hubChannelBuffer = 16

// Hub は接続中クライアントへのライブ配信を管理するレジストリ。
// ユーザーIDから有効な接続の集合へのルーティングテーブルであり、
// 通知の所有関係は持たない。プロセス起動時に生成し、Serverが所有する。
// 全メソッドは並行呼び出しに対して安全。
type Hub struct {
	// mu はconnsとownersを保護する。
	mu sync.RWMutex
	// conns はユーザーIDから接続ID→配信チャネルへのマップ。
	conns map[int64]map[string]chan PushMessage
	// owners は接続IDから所有ユーザーIDへの逆引きマップ。
	owners map[string]int64
}

// NewHub は空のレジストリを生成する。
func NewHub() *Hub {
	return &Hub{
		conns:  make(map[int64]map[string]chan PushMessage),
		owners: make(map[string]int64),
	}
}

// Register は接続をユーザーの配信先として登録し、受信チャネルを返す。
// 同一の(userID, connID)ペアによる再登録は既存のチャネルを返す（冪等）。
func (h *Hub) Register(userID int64, connID string) <-chan PushMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.conns[userID][connID]; ok {
		return existing
	}

	if h.conns[userID] == nil {
		h.conns[userID] = make(map[string]chan PushMessage)
	}
	ch := make(chan PushMessage, hubChannelBuffer)
	h.conns[userID][connID] = ch
	h.owners[connID] = userID
	return ch
}

// Unregister は接続を登録から外し、その配信チャネルを閉じる。
// 未登録の接続IDに対しては何もしない。
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID, ok := h.owners[connID]
	if !ok {
		return
	}
	delete(h.owners, connID)

	ch := h.conns[userID][connID]
	delete(h.conns[userID], connID)
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
	close(ch)
}

// Push は呼び出し時点で登録されているユーザーの全接続へメッセージを送り、
// 送信を試みた接続数を返す。配信は送達確認なしの最善努力であり、
// 登録済み接続がない場合は0を返す（エラーではない）。
func (h *Hub) Push(userID int64, msg PushMessage) int {
	// 送信は非ブロッキングなのでロックを保持したまま行う。
	// UnregisterやShutdownによるチャネルのcloseと競合させないため。
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.conns[userID] {
		select {
		case ch <- msg:
		default:
			// バッファ満杯の接続はスキップする。遅いクライアントが
			// 送信側を停止させないための措置で、欠落分は次回の
			// 一覧取得で補われる。
		}
	}
	return len(h.conns[userID])
}

// ConnectionCount は指定ユーザーの現在の接続数を返す。
func (h *Hub) ConnectionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Shutdown は全接続の配信チャネルを閉じ、レジストリを空にする。
// プロセス終了時に呼び出す。
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conns := range h.conns {
		for _, ch := range conns {
			close(ch)
		}
	}
	h.conns = make(map[int64]map[string]chan PushMessage)
	h.owners = make(map[string]int64)
}
