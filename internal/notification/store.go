package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound は指定された識別子の通知が存在しないことを表す。
var ErrNotFound = errors.New("通知が見つかりません")

// Notification はユーザー宛ての永続化された通知を表す。
// 作成後に変更できるのはReadAtのみ（未読→既読の一方向遷移）。
type Notification struct {
	// ID は通知の一意識別子（UUID）。
	ID string `db:"id" json:"id"`
	// UserID は通知先のユーザーID。
	UserID int64 `db:"user_id" json:"user_id"`
	// Title は通知のタイトル。
	Title string `db:"title" json:"title"`
	// Message は通知メッセージ。
	Message string `db:"message" json:"message"`
	// Source は通知の発生元サービス。
	Source string `db:"source" json:"source,omitempty"`
	// Link は通知に関連する画面へのリンク。
	Link string `db:"link" json:"link,omitempty"`
	// CreatedAt は通知の作成日時。
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	// ReadAt は既読日時。nilは未読を表す。
	ReadAt *time.Time `db:"read_at" json:"read_at"`
}

// PushSubscription はブラウザのWeb Push購読情報を表す。
type PushSubscription struct {
	// Endpoint はプッシュサービスのエンドポイントURL。
	Endpoint string `db:"endpoint" json:"endpoint"`
	// UserID は購読者のユーザーID。
	UserID int64 `db:"user_id" json:"user_id"`
	// P256dh はクライアントの公開鍵。
	P256dh string `db:"p256dh" json:"p256dh"`
	// Auth は認証シークレット。
	Auth string `db:"auth" json:"auth"`
	// CreatedAt は購読の登録日時。
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Store は通知と購読情報のSQLiteストア。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sqlx.DB
}

// NewStore は指定されたDSNでSQLiteストアを生成する。
// WALモードを有効にし、スキーマを適用する。
func NewStore(dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("WALモードの有効化に失敗: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Create は新しい通知を挿入する。
// タイトル・メッセージ・宛先の検証は呼び出し側（Dispatcher）の責務。
func (s *Store) Create(ctx context.Context, n *Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, source, link, created_at, read_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		n.ID, n.UserID, n.Title, n.Message, n.Source, n.Link, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("通知の保存に失敗: %w", err)
	}
	return nil
}

// ListByUser は指定ユーザーの全通知を新しい順に返す。
// 作成日時が同一の場合はIDの降順で順序を固定する。
func (s *Store) ListByUser(ctx context.Context, userID int64) ([]Notification, error) {
	notifications := []Notification{}
	err := s.db.SelectContext(ctx, &notifications, `
		SELECT id, user_id, title, message, source, link, created_at, read_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	return notifications, nil
}

// ListUnreadByUser は指定ユーザーの未読通知を新しい順に返す。
func (s *Store) ListUnreadByUser(ctx context.Context, userID int64) ([]Notification, error) {
	notifications := []Notification{}
	err := s.db.SelectContext(ctx, &notifications, `
		SELECT id, user_id, title, message, source, link, created_at, read_at
		FROM notifications
		WHERE user_id = ? AND read_at IS NULL
		ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("未読通知一覧の取得に失敗: %w", err)
	}
	return notifications, nil
}

// GetByID は指定された識別子の通知を返す。
// 存在しない場合はErrNotFoundを返す。
func (s *Store) GetByID(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	err := s.db.GetContext(ctx, &n, `
		SELECT id, user_id, title, message, source, link, created_at, read_at
		FROM notifications
		WHERE id = ?`,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	return &n, nil
}

// MarkRead は通知を既読にする。read_atは一度だけ設定され、取り消せない。
// 既読済みの通知に対する呼び出しは何もせず成功を返す（冪等）。
// 通知が存在しない場合はErrNotFoundを返す。
func (s *Store) MarkRead(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = ?
		WHERE id = ? AND read_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("通知の既読処理に失敗: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// 更新されなかった場合、既読済み（冪等に成功）か未存在（NotFound）かを区別する
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return nil
}

// MarkAllRead は指定ユーザーの全未読通知を既読にする。
func (s *Store) MarkAllRead(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = ?
		WHERE user_id = ? AND read_at IS NULL`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("全通知の既読処理に失敗: %w", err)
	}
	return nil
}

// SavePushSubscription はWeb Push購読情報を保存する。
// 同一エンドポイントの再登録は上書きする（冪等）。
func (s *Store) SavePushSubscription(ctx context.Context, sub *PushSubscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO push_subscriptions (endpoint, user_id, p256dh, auth, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sub.Endpoint, sub.UserID, sub.P256dh, sub.Auth, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("購読情報の保存に失敗: %w", err)
	}
	return nil
}

// ListPushSubscriptions は指定ユーザーの全Web Push購読を返す。
func (s *Store) ListPushSubscriptions(ctx context.Context, userID int64) ([]PushSubscription, error) {
	subs := []PushSubscription{}
	err := s.db.SelectContext(ctx, &subs, `
		SELECT endpoint, user_id, p256dh, auth, created_at
		FROM push_subscriptions
		WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("購読一覧の取得に失敗: %w", err)
	}
	return subs, nil
}

// DeletePushSubscription は指定エンドポイントの購読を削除する。
// 存在しない場合は何もしない。
func (s *Store) DeletePushSubscription(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("購読情報の削除に失敗: %w", err)
	}
	return nil
}
