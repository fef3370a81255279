package notification

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nao1215/markethub/pkg/httpclient"
)

// setupTestDispatcher はテスト用のDispatcherを構築する。
// Web Pushは無効、Event Storeはモックサーバーを使用する。
func setupTestDispatcher(t *testing.T) (*Dispatcher, *Store, *Hub) {
	t.Helper()

	store := setupTestStore(t)
	hub := NewHub()

	eventStore := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"mock-event-id"}`)
	}))
	t.Cleanup(eventStore.Close)

	d := NewDispatcher(store, hub, nil, httpclient.New(eventStore.URL))
	return d, store, hub
}

// TestDispatcherValidation はリクエスト検証と副作用のなさを検証する。
func TestDispatcherValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{
			name: "user_idが0の場合は拒否されること",
			req:  CreateRequest{UserID: 0, Title: "T", Message: "M"},
		},
		{
			name: "user_idが負の場合は拒否されること",
			req:  CreateRequest{UserID: -5, Title: "T", Message: "M"},
		},
		{
			name: "titleが空の場合は拒否されること",
			req:  CreateRequest{UserID: 1, Title: "", Message: "M"},
		},
		{
			name: "titleが空白のみの場合は拒否されること",
			req:  CreateRequest{UserID: 1, Title: "   ", Message: "M"},
		},
		{
			name: "messageが空の場合は拒否されること",
			req:  CreateRequest{UserID: 1, Title: "T", Message: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, store, _ := setupTestDispatcher(t)

			_, err := d.CreateAndNotify(t.Context(), tt.req)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}

			// 検証失敗時は何も永続化されないこと
			userID := tt.req.UserID
			if userID <= 0 {
				userID = 1
			}
			notifications, listErr := store.ListByUser(t.Context(), userID)
			if listErr != nil {
				t.Fatalf("ListByUser()でエラーが発生: %v", listErr)
			}
			if len(notifications) != 0 {
				t.Errorf("検証失敗後の通知数: got %d, want 0", len(notifications))
			}
		})
	}
}

// TestDispatcherCreateAndNotify は永続化と配信の流れを検証する。
func TestDispatcherCreateAndNotify(t *testing.T) {
	t.Parallel()

	t.Run("作成した通知が一覧の先頭に現れること", func(t *testing.T) {
		t.Parallel()
		d, store, _ := setupTestDispatcher(t)

		if _, err := d.CreateAndNotify(t.Context(), CreateRequest{
			UserID: 1, Title: "最初の通知", Message: "M",
		}); err != nil {
			t.Fatalf("1回目のCreateAndNotify()でエラーが発生: %v", err)
		}

		n, err := d.CreateAndNotify(t.Context(), CreateRequest{
			UserID: 1, Title: "最新の通知", Message: "M",
		})
		if err != nil {
			t.Fatalf("2回目のCreateAndNotify()でエラーが発生: %v", err)
		}

		notifications, err := store.ListByUser(t.Context(), 1)
		if err != nil {
			t.Fatalf("ListByUser()でエラーが発生: %v", err)
		}
		if len(notifications) != 2 {
			t.Fatalf("通知の数: got %d, want 2", len(notifications))
		}
		if notifications[0].ID != n.ID {
			t.Errorf("先頭の通知ID = %q, want %q", notifications[0].ID, n.ID)
		}
	})

	t.Run("接続中のクライアントにライブ配信されること", func(t *testing.T) {
		t.Parallel()
		d, _, hub := setupTestDispatcher(t)

		ch := hub.Register(1, "conn-1")

		if _, err := d.CreateAndNotify(t.Context(), CreateRequest{
			UserID: 1, Title: "ライブ配信", Message: "接続中です", Link: "/items/1",
		}); err != nil {
			t.Fatalf("CreateAndNotify()でエラーが発生: %v", err)
		}

		select {
		case msg := <-ch:
			if msg.Title != "ライブ配信" {
				t.Errorf("Title = %q, want ライブ配信", msg.Title)
			}
			if msg.Link != "/items/1" {
				t.Errorf("Link = %q, want /items/1", msg.Link)
			}
		default:
			t.Error("ライブ配信メッセージが届いていない")
		}
	})

	t.Run("接続がないユーザーへの作成も成功し重複しないこと", func(t *testing.T) {
		t.Parallel()
		d, store, hub := setupTestDispatcher(t)

		// ユーザー42は未接続の状態で作成する
		if _, err := d.CreateAndNotify(t.Context(), CreateRequest{
			UserID:  42,
			Title:   "入札更新",
			Message: "上位入札がありました",
			Source:  "auction",
			Link:    "/auctions/7",
		}); err != nil {
			t.Fatalf("CreateAndNotify()でエラーが発生: %v", err)
		}

		notifications, err := store.ListByUser(t.Context(), 42)
		if err != nil {
			t.Fatalf("ListByUser()でエラーが発生: %v", err)
		}
		if len(notifications) != 1 {
			t.Fatalf("通知の数: got %d, want 1", len(notifications))
		}
		if notifications[0].ReadAt != nil {
			t.Errorf("ReadAt = %v, want nil（未読）", notifications[0].ReadAt)
		}

		// 後から接続しても通知が重複しないこと
		hub.Register(42, "late-conn")
		again, err := store.ListByUser(t.Context(), 42)
		if err != nil {
			t.Fatalf("再取得のListByUser()でエラーが発生: %v", err)
		}
		if len(again) != 1 {
			t.Errorf("再取得後の通知数: got %d, want 1", len(again))
		}
	})

	t.Run("Event Storeが失敗しても通知の作成は成功すること", func(t *testing.T) {
		t.Parallel()
		store := setupTestStore(t)
		hub := NewHub()

		// 常に500を返すEvent Storeモック
		eventStore := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(eventStore.Close)

		d := NewDispatcher(store, hub, nil, httpclient.New(eventStore.URL))

		n, err := d.CreateAndNotify(t.Context(), CreateRequest{
			UserID: 1, Title: "追記失敗テスト", Message: "M",
		})
		if err != nil {
			t.Fatalf("CreateAndNotify()でエラーが発生: %v", err)
		}

		if _, err := store.GetByID(t.Context(), n.ID); err != nil {
			t.Errorf("通知が永続化されていない: %v", err)
		}
	})

	t.Run("連続作成した通知のIDが異なること", func(t *testing.T) {
		t.Parallel()
		d, _, _ := setupTestDispatcher(t)

		n1, err := d.CreateAndNotify(t.Context(), CreateRequest{UserID: 1, Title: "T", Message: "M"})
		if err != nil {
			t.Fatalf("1回目のCreateAndNotify()でエラーが発生: %v", err)
		}
		n2, err := d.CreateAndNotify(t.Context(), CreateRequest{UserID: 1, Title: "T", Message: "M"})
		if err != nil {
			t.Fatalf("2回目のCreateAndNotify()でエラーが発生: %v", err)
		}

		if n1.ID == n2.ID {
			t.Errorf("連続作成した通知のIDが同一: %q", n1.ID)
		}
	})
}

// TestDispatcherMarkRead は既読処理の委譲を検証する。
func TestDispatcherMarkRead(t *testing.T) {
	t.Parallel()

	t.Run("作成した通知を既読にできること", func(t *testing.T) {
		t.Parallel()
		d, store, _ := setupTestDispatcher(t)

		n, err := d.CreateAndNotify(t.Context(), CreateRequest{UserID: 1, Title: "T", Message: "M"})
		if err != nil {
			t.Fatalf("CreateAndNotify()でエラーが発生: %v", err)
		}

		if err := d.MarkRead(t.Context(), n.ID); err != nil {
			t.Fatalf("MarkRead()でエラーが発生: %v", err)
		}

		got, err := store.GetByID(t.Context(), n.ID)
		if err != nil {
			t.Fatalf("GetByID()でエラーが発生: %v", err)
		}
		if got.ReadAt == nil {
			t.Error("ReadAtがnilのまま")
		}
	})

	t.Run("存在しない通知の場合はErrNotFoundを返すこと", func(t *testing.T) {
		t.Parallel()
		d, _, _ := setupTestDispatcher(t)

		if err := d.MarkRead(t.Context(), "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}
