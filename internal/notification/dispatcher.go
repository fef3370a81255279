package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/markethub/pkg/event"
	"github.com/nao1215/markethub/pkg/httpclient"
)

// ErrValidation は通知作成リクエストの検証失敗を表す。
var ErrValidation = errors.New("リクエストが不正です")

// CreateRequest は通知作成のリクエスト。
// APIハンドラとイベントアダプタの両方からDispatcherへ渡される正規化形。
type CreateRequest struct {
	// UserID は通知先のユーザーID。正の整数でなければならない。
	UserID int64 `json:"user_id"`
	// Title は通知のタイトル。空にできない。
	Title string `json:"title"`
	// Message は通知メッセージ。空にできない。
	Message string `json:"message"`
	// Source は通知の発生元サービス（省略可）。
	Source string `json:"source"`
	// Link は通知に関連する画面へのリンク（省略可）。
	Link string `json:"link"`
}

// appendEventRequest はEvent Storeへのイベント追記リクエストのJSON構造。
type appendEventRequest struct {
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType string `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType string `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data any `json:"data"`
}

// Dispatcher は「永続化してから配信する」一連の流れを調停する。
// 永続化が信頼性の源泉であり、ライブ配信はその補助的なシグナルにすぎない。
// 永続化の失敗は呼び出し元へ返すが、配信の失敗はログに記録して握りつぶす。
type Dispatcher struct {
	// store は通知の永続化先。
	store *Store
	// hub はSSE接続へのライブ配信レジストリ。
	hub *Hub
	// webpush はWeb Push送信器。nilの場合はWeb Push配信を行わない。
	webpush *WebPushSender
	// eventStoreClient はEvent Storeサービスへの通信クライアント。
	// nilの場合はイベント追記を行わない。
	eventStoreClient *httpclient.Client
}

// NewDispatcher は新しいDispatcherを生成する。
// webpushとeventStoreClientはnilを許容する（該当の配信経路が無効になる）。
func NewDispatcher(store *Store, hub *Hub, webpush *WebPushSender, eventStoreClient *httpclient.Client) *Dispatcher {
	return &Dispatcher{
		store:            store,
		hub:              hub,
		webpush:          webpush,
		eventStoreClient: eventStoreClient,
	}
}

// validate はリクエストを検証する。失敗時は副作用を一切起こさない。
func validate(req CreateRequest) error {
	if req.UserID <= 0 {
		return fmt.Errorf("%w: user_idは正の整数が必要です", ErrValidation)
	}
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("%w: titleは必須です", ErrValidation)
	}
	if strings.TrimSpace(req.Message) == "" {
		return fmt.Errorf("%w: messageは必須です", ErrValidation)
	}
	return nil
}

// CreateAndNotify は通知を永続化し、接続中のクライアントへ配信する。
//
// 永続化に失敗した場合は配信を試みずエラーを返す。永続化に成功した後の
// 配信失敗（SSE・Web Push・イベント追記）は操作の失敗とせず、ログに
// 記録するのみ。通知は既に保存されており、次回の一覧取得で参照できる。
// ctxのキャンセルは永続化完了まで有効で、完了後の配信には影響しない。
func (d *Dispatcher) CreateAndNotify(ctx context.Context, req CreateRequest) (*Notification, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	n := &Notification{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Title:     req.Title,
		Message:   req.Message,
		Source:    req.Source,
		Link:      req.Link,
		CreatedAt: time.Now().UTC(),
	}

	if err := d.store.Create(ctx, n); err != nil {
		return nil, err
	}
	metricNotificationsCreated.Inc()

	// 永続化済みのため、呼び出し元のキャンセルから切り離して配信する
	d.fanout(context.WithoutCancel(ctx), n)

	return n, nil
}

// fanout は配信経路すべてへベストエフォートで送信する。
// いかなる失敗も呼び出し元へ伝播しない。
func (d *Dispatcher) fanout(ctx context.Context, n *Notification) {
	msg := PushMessage{
		Title:   n.Title,
		Message: n.Message,
		Link:    n.Link,
	}

	delivered := d.hub.Push(n.UserID, msg)
	metricLivePushAttempts.Add(float64(delivered))
	if delivered == 0 {
		log.Printf("[Dispatcher] ライブ接続なし: user_id=%d, id=%s", n.UserID, n.ID)
	}

	if d.webpush != nil {
		if _, err := d.webpush.Send(ctx, n.UserID, msg); err != nil {
			log.Printf("[Dispatcher] Web Push送信に失敗: %v", err)
		}
	}

	if d.eventStoreClient != nil {
		d.appendSentEvent(ctx, n)
	}
}

// appendSentEvent はNotificationSentイベントをEvent Storeに追記する。
// 追記に失敗してもログに記録し、通知自体は成功として扱う。
func (d *Dispatcher) appendSentEvent(ctx context.Context, n *Notification) {
	eventReq := appendEventRequest{
		AggregateID:   fmt.Sprintf("notification-%s", n.ID),
		AggregateType: string(event.AggregateTypeUser),
		EventType:     string(event.TypeNotificationSent),
		Data: event.NotificationSentData{
			NotificationID: n.ID,
			UserID:         n.UserID,
			Title:          n.Title,
			Message:        n.Message,
		},
	}

	var eventResp map[string]any
	if err := d.eventStoreClient.PostJSON(ctx, "/api/v1/events", eventReq, &eventResp); err != nil {
		log.Printf("[Dispatcher] NotificationSentイベントの追記に失敗: %v", err)
	}
}

// MarkRead は通知を既読にする。ストアへの単純な委譲であり、配信は行わない。
func (d *Dispatcher) MarkRead(ctx context.Context, id string) error {
	return d.store.MarkRead(ctx, id)
}
