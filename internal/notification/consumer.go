package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nao1215/markethub/pkg/event"
)

// consumerDispatchTimeout は1イベントの処理に許容する時間。
const consumerDispatchTimeout = 10 * time.Second

// Consumer は各サービスが発行するドメインイベントをRedisのpub/subから
// 受信し、通知作成リクエストへ変換してDispatcherへ渡すアダプタ。
// 再配送やイベントの重複排除はブローカー側の責務とし、ここでは
// 解釈できないペイロードをログに記録して読み捨てる。
type Consumer struct {
	// client はRedisクライアント。
	client *redis.Client
	// dispatcher は変換後のリクエストの送り先。
	dispatcher *Dispatcher
}

// NewConsumer は新しいイベントコンシューマを生成する。
func NewConsumer(client *redis.Client, dispatcher *Dispatcher) *Consumer {
	return &Consumer{
		client:     client,
		dispatcher: dispatcher,
	}
}

// Start は全ドメインイベントチャネルの購読を開始し、受信ループに入る。
// バックグラウンドgoroutineとして呼び出されることを想定している。
// ctxのキャンセルで購読を解除して戻る。
func (c *Consumer) Start(ctx context.Context) error {
	pubsub := c.client.Subscribe(ctx, event.Channels...)
	defer pubsub.Close()

	// 購読の成立を確認してからループに入る
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("チャネルの購読に失敗: %w", err)
	}
	log.Printf("[Consumer] イベント購読を開始しました: channels=%v", event.Channels)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.handleMessage(msg.Channel, []byte(msg.Payload))
		}
	}
}

// handleMessage は受信した1件のペイロードを処理する。
// デコード失敗・変換失敗・永続化失敗のいずれもログに記録して読み捨てる。
func (c *Consumer) handleMessage(channel string, payload []byte) {
	metricEventsConsumed.WithLabelValues(channel).Inc()

	var ev event.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Printf("[Consumer] ペイロードのデコードに失敗: channel=%s, err=%v", channel, err)
		return
	}

	req, err := mapEventToRequest(&ev)
	if err != nil {
		log.Printf("[Consumer] イベントの変換に失敗: channel=%s, type=%s, err=%v", channel, ev.EventType, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), consumerDispatchTimeout)
	defer cancel()

	if _, err := c.dispatcher.CreateAndNotify(ctx, req); err != nil {
		log.Printf("[Consumer] 通知の作成に失敗: type=%s, user_id=%d, err=%v", ev.EventType, req.UserID, err)
	}
}

// errUnsupportedEvent は通知対象外のイベント種類を表す。
var errUnsupportedEvent = errors.New("通知対象外のイベント種類")

// mapEventToRequest はドメインイベントを通知作成リクエストの正規化形
// {宛先ユーザー, タイトル, メッセージ, 発生元, リンク} へ変換する。
func mapEventToRequest(ev *event.Event) (CreateRequest, error) {
	switch ev.EventType {
	case event.TypeRatingCreated:
		data, err := event.DecodeData[event.RatingCreatedData](ev)
		if err != nil {
			return CreateRequest{}, err
		}
		return CreateRequest{
			UserID:  ev.RecipientUserID,
			Title:   "新しい評価が届きました",
			Message: fmt.Sprintf("星%dの評価が投稿されました", data.Stars),
			Source:  "rating",
			Link:    "/ratings/" + data.RatingID,
		}, nil

	case event.TypeComplaintStatusChanged:
		data, err := event.DecodeData[event.ComplaintStatusChangedData](ev)
		if err != nil {
			return CreateRequest{}, err
		}
		return CreateRequest{
			UserID:  ev.RecipientUserID,
			Title:   "苦情のステータスが更新されました",
			Message: fmt.Sprintf("苦情のステータスが「%s」に変わりました", data.Status),
			Source:  "complaint",
			Link:    "/complaints/" + data.ComplaintID,
		}, nil

	case event.TypeAuctionOutbid:
		data, err := event.DecodeData[event.AuctionOutbidData](ev)
		if err != nil {
			return CreateRequest{}, err
		}
		return CreateRequest{
			UserID:  ev.RecipientUserID,
			Title:   "上位入札がありました",
			Message: fmt.Sprintf("「%s」に%d円の入札がありました", data.ItemName, data.NewHighestBid),
			Source:  "auction",
			Link:    "/auctions/" + data.AuctionID,
		}, nil

	case event.TypeOrderPaid:
		data, err := event.DecodeData[event.OrderPaidData](ev)
		if err != nil {
			return CreateRequest{}, err
		}
		return CreateRequest{
			UserID:  ev.RecipientUserID,
			Title:   "支払いが完了しました",
			Message: fmt.Sprintf("注文の支払い（%d円）が完了しました", data.Amount),
			Source:  "order",
			Link:    "/orders/" + data.OrderID,
		}, nil

	case event.TypePaymentRefunded:
		data, err := event.DecodeData[event.PaymentRefundedData](ev)
		if err != nil {
			return CreateRequest{}, err
		}
		return CreateRequest{
			UserID:  ev.RecipientUserID,
			Title:   "返金が完了しました",
			Message: fmt.Sprintf("注文の返金（%d円）が完了しました: %s", data.Amount, data.Reason),
			Source:  "payment",
			Link:    "/orders/" + data.OrderID,
		}, nil

	case event.TypeIdentityPasswordChanged:
		if _, err := event.DecodeData[event.IdentityPasswordChangedData](ev); err != nil {
			return CreateRequest{}, err
		}
		return CreateRequest{
			UserID:  ev.RecipientUserID,
			Title:   "パスワードが変更されました",
			Message: "アカウントのパスワードが変更されました。心当たりがない場合はサポートへ連絡してください",
			Source:  "identity",
		}, nil

	default:
		return CreateRequest{}, fmt.Errorf("%w: %s", errUnsupportedEvent, ev.EventType)
	}
}
