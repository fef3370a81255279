package notification

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/markethub/pkg/httpclient"
	"github.com/nao1215/markethub/pkg/middleware"
)

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store は通知と購読情報のストア。
	store *Store
	// hub はSSE接続のレジストリ。
	hub *Hub
	// dispatcher は通知の作成と配信を調停する。
	dispatcher *Dispatcher
	// webpush はWeb Push送信器。
	webpush *WebPushSender
}

// NewServer は新しい通知サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	dbPath := getEnvOr("NOTIFICATION_DB_PATH", "/data/notification.db?_journal_mode=WAL&_busy_timeout=5000")
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, err
	}

	webpush, err := NewWebPushSender(
		store,
		os.Getenv("VAPID_PUBLIC_KEY"),
		os.Getenv("VAPID_PRIVATE_KEY"),
		getEnvOr("VAPID_SUBSCRIBER", "mailto:support@markethub.example.com"),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	hub := NewHub()
	eventStoreClient := httpclient.New(getEnvOr("EVENTSTORE_URL", "http://localhost:8084"))

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:     router,
		port:       port,
		store:      store,
		hub:        hub,
		dispatcher: NewDispatcher(store, hub, webpush, eventStoreClient),
		webpush:    webpush,
	}
	s.setupRoutes()

	return s, nil
}

// getEnvOr は環境変数の値を返す。未設定の場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// Dispatcher はイベントコンシューマの接続先となるDispatcherを返す。
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// Shutdown はライブ接続とデータベース接続を閉じる。
func (s *Server) Shutdown() error {
	s.hub.Shutdown()
	return s.store.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-secret-key"
	}

	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(jwtSecret))
	{
		notifications := api.Group("/notifications")
		{
			// ユーザー別の通知一覧取得
			notifications.GET("/user/:user_id", s.handleListByUser())
			// ユーザー別の未読通知一覧取得
			notifications.GET("/user/:user_id/unread", s.handleListUnreadByUser())
			// 通知を既読にする
			notifications.PATCH("/:id/read", s.handleMarkRead())
			// 全通知を既読にする
			notifications.PUT("/read-all", s.handleMarkAllRead())
		}

		// 通知送信（内部API - 他サービスから呼び出される）
		internal := api.Group("/internal")
		{
			internal.POST("/send", s.handleSend())
		}

		// Web Push購読の登録
		api.POST("/push/subscribe", s.handleSubscribePush())
	}

	// SSEライブ配信。EventSourceはAuthorizationヘッダーを設定できないため
	// 認証グループの外に置き、接続時のuser_idパラメータで宛先を識別する。
	s.router.GET("/api/v1/notifications/stream", s.handleStream())

	// VAPID公開鍵の配布
	s.router.GET("/api/v1/push/vapid-key", s.handleVAPIDKey())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
	})

	// Prometheusメトリクス
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// notificationResponse は通知のJSONレスポンス構造。
type notificationResponse struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// UserID は通知先のユーザーID。
	UserID int64 `json:"user_id"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// Source は通知の発生元サービス。
	Source string `json:"source,omitempty"`
	// Link は通知に関連する画面へのリンク。
	Link string `json:"link,omitempty"`
	// CreatedAt は通知の作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
	// ReadAt は既読日時（RFC3339形式）。未読の場合はnull。
	ReadAt *string `json:"read_at"`
}

// toNotificationResponse は通知エンティティをJSONレスポンスに変換する。
func toNotificationResponse(n Notification) notificationResponse {
	resp := notificationResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Source:    n.Source,
		Link:      n.Link,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
	if n.ReadAt != nil {
		readAt := n.ReadAt.Format(time.RFC3339)
		resp.ReadAt = &readAt
	}
	return resp
}

// toNotificationResponses は通知のスライスをJSONレスポンスのスライスに変換する。
func toNotificationResponses(notifications []Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, toNotificationResponse(n))
	}
	return responses
}

// pathUserID はパスパラメータのユーザーIDを検証付きで取得する。
// 認証済みユーザーと一致しない場合は403を返してfalseを返す。
func pathUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ユーザーIDが不正です"})
		return 0, false
	}

	requester := middleware.GetUserID(c)
	if requester == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
		return 0, false
	}
	if requester != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "この通知を参照する権限がありません"})
		return 0, false
	}
	return userID, true
}

// handleListByUser は指定ユーザーの通知一覧を新しい順に返すハンドラ。
func (s *Server) handleListByUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := pathUserID(c)
		if !ok {
			return
		}

		notifications, err := s.store.ListByUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			log.Printf("通知一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toNotificationResponses(notifications))
	}
}

// handleListUnreadByUser は指定ユーザーの未読通知一覧を返すハンドラ。
func (s *Server) handleListUnreadByUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := pathUserID(c)
		if !ok {
			return
		}

		notifications, err := s.store.ListUnreadByUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読通知一覧の取得に失敗しました"})
			log.Printf("未読通知一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toNotificationResponses(notifications))
	}
}

// handleMarkRead は指定された通知を既読にするハンドラ。
// 既読済みの通知への再実行も成功として204を返す（冪等）。
func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		notificationID := c.Param("id")
		if notificationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "通知IDが必要です"})
			return
		}

		// 通知の存在確認と所有者チェック
		n, err := s.store.GetByID(c.Request.Context(), notificationID)
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の取得に失敗しました"})
			log.Printf("通知取得エラー: %v", err)
			return
		}

		if n.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "この通知を操作する権限がありません"})
			return
		}

		if err := s.dispatcher.MarkRead(c.Request.Context(), notificationID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読処理に失敗しました"})
			log.Printf("通知既読処理エラー: %v", err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// handleMarkAllRead は認証済みユーザーの全通知を既読にするハンドラ。
func (s *Server) handleMarkAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		if err := s.store.MarkAllRead(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "全通知の既読処理に失敗しました"})
			log.Printf("全通知既読処理エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "全通知を既読にしました"})
	}
}

// handleSend は通知を作成し接続中のクライアントへ配信するハンドラ。
// 内部API（各サービスおよびイベントアダプタ経由で呼び出される）。
func (s *Server) handleSend() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		n, err := s.dispatcher.CreateAndNotify(c.Request.Context(), req)
		if errors.Is(err, ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の作成に失敗しました"})
			log.Printf("通知作成エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, toNotificationResponse(*n))
	}
}

// handleStream はSSEでライブ配信を行うハンドラ。
// 接続時にレジストリへ登録し、切断時に登録を解除する。
func (s *Server) handleStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
		if err != nil || userID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_idパラメータが必要です"})
			return
		}

		connID := uuid.New().String()
		ch := s.hub.Register(userID, connID)
		defer s.hub.Unregister(connID)

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		// 接続確立をクライアントへ通知する
		c.SSEvent("connected", gin.H{"connection_id": connID})
		c.Writer.Flush()

		c.Stream(func(_ io.Writer) bool {
			select {
			case msg, ok := <-ch:
				if !ok {
					return false
				}
				c.SSEvent("new_notification", msg)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}

// subscribePushRequest はWeb Push購読登録リクエストのJSON構造。
// ブラウザのPushSubscription.toJSON()の形式に対応する。
type subscribePushRequest struct {
	// Endpoint はプッシュサービスのエンドポイントURL。
	Endpoint string `json:"endpoint" binding:"required"`
	// Keys は暗号化に使用する鍵のペア。
	Keys struct {
		// P256dh はクライアントの公開鍵。
		P256dh string `json:"p256dh" binding:"required"`
		// Auth は認証シークレット。
		Auth string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

// handleSubscribePush はWeb Push購読を保存するハンドラ。
func (s *Server) handleSubscribePush() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var req subscribePushRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		sub := &PushSubscription{
			Endpoint: req.Endpoint,
			UserID:   userID,
			P256dh:   req.Keys.P256dh,
			Auth:     req.Keys.Auth,
		}
		if err := s.store.SavePushSubscription(c.Request.Context(), sub); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "購読情報の保存に失敗しました"})
			log.Printf("購読保存エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"message": "購読を登録しました"})
	}
}

// handleVAPIDKey はWeb Push購読に必要なVAPID公開鍵を返すハンドラ。
func (s *Server) handleVAPIDKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"public_key": s.webpush.PublicKey()})
	}
}
