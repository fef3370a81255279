package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
)

// webPushTTL はプッシュサービス側でメッセージを保持する秒数。
const webPushTTL = 30

// WebPushSender は保存済みの購読情報へWeb Pushを送信する。
// VAPID鍵ペアで署名し、無効になった購読は送信時に削除する。
type WebPushSender struct {
	// store は購読情報の取得・削除に使用するストア。
	store *Store
	// vapidPublicKey はVAPID公開鍵。
	vapidPublicKey string
	// vapidPrivateKey はVAPID秘密鍵。
	vapidPrivateKey string
	// subscriber はVAPIDのSubscriberクレーム（mailto: URI）。
	subscriber string
}

// NewWebPushSender は新しいWeb Push送信器を生成する。
// 鍵ペアが空の場合は新規に生成し、ログに出力する。
func NewWebPushSender(store *Store, publicKey, privateKey, subscriber string) (*WebPushSender, error) {
	if publicKey == "" || privateKey == "" {
		log.Println("[WebPush] VAPID鍵が未設定のため新規に生成します")
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			return nil, fmt.Errorf("VAPID鍵の生成に失敗: %w", err)
		}
		privateKey, publicKey = priv, pub
		log.Printf("[WebPush] 生成した鍵を環境変数に設定すると永続化できます:\nVAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s", pub, priv)
	}

	return &WebPushSender{
		store:           store,
		vapidPublicKey:  publicKey,
		vapidPrivateKey: privateKey,
		subscriber:      subscriber,
	}, nil
}

// PublicKey はクライアントが購読登録に使用するVAPID公開鍵を返す。
func (w *WebPushSender) PublicKey() string {
	return w.vapidPublicKey
}

// Send は指定ユーザーの全購読へメッセージを送信し、成功数を返す。
// プッシュサービスが購読の失効を返した場合（404/410）、その購読を削除する。
func (w *WebPushSender) Send(ctx context.Context, userID int64, msg PushMessage) (int, error) {
	subs, err := w.store.ListPushSubscriptions(ctx, userID)
	if err != nil {
		return 0, err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("ペイロードのシリアライズに失敗: %w", err)
	}

	sent := 0
	for _, sub := range subs {
		s := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}

		resp, err := webpush.SendNotificationWithContext(ctx, payload, s, &webpush.Options{
			Subscriber:      w.subscriber,
			VAPIDPublicKey:  w.vapidPublicKey,
			VAPIDPrivateKey: w.vapidPrivateKey,
			TTL:             webPushTTL,
		})
		if err != nil {
			metricWebPushFailed.Inc()
			log.Printf("[WebPush] 送信に失敗: endpoint=%s, err=%v", sub.Endpoint, err)
			continue
		}

		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			// 失効した購読は次回以降の送信対象から外す
			if err := w.store.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
				log.Printf("[WebPush] 失効購読の削除に失敗: %v", err)
			}
			metricWebPushFailed.Inc()
		} else {
			metricWebPushSent.Inc()
			sent++
		}
		resp.Body.Close()
	}

	return sent, nil
}
