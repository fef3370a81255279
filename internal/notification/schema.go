package notification

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// スキーマ定義。起動時に冪等に適用される。
const schema = `
CREATE TABLE IF NOT EXISTS notifications (
    -- 通知の一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- 通知先のユーザーID
    user_id INTEGER NOT NULL,
    -- 通知のタイトル
    title TEXT NOT NULL,
    -- 通知メッセージ
    message TEXT NOT NULL,
    -- 通知の発生元サービス（rating, complaint, auction, order, identity）
    source TEXT NOT NULL DEFAULT '',
    -- 通知に関連する画面へのリンク
    link TEXT NOT NULL DEFAULT '',
    -- 通知の作成日時
    created_at DATETIME NOT NULL,
    -- 既読日時。NULLは未読を表す。一度設定されたら変更しない。
    read_at DATETIME
);

-- ユーザーIDでの検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_notifications_user_id
    ON notifications(user_id);

-- 未読通知の検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_notifications_unread
    ON notifications(user_id, read_at) WHERE read_at IS NULL;

CREATE TABLE IF NOT EXISTS push_subscriptions (
    -- プッシュサービスのエンドポイントURL（購読ごとに一意）
    endpoint TEXT PRIMARY KEY,
    -- 購読者のユーザーID
    user_id INTEGER NOT NULL,
    -- クライアントの公開鍵（P-256 ECDH）
    p256dh TEXT NOT NULL,
    -- 認証シークレット
    auth TEXT NOT NULL,
    -- 購読の登録日時
    created_at DATETIME NOT NULL
);

-- ユーザーIDでの購読検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_push_subscriptions_user_id
    ON push_subscriptions(user_id);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sqlx.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
