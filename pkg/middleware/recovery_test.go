package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// TestRecovery はRecoveryミドルウェアを検証する。
func TestRecovery(t *testing.T) {
	t.Parallel()

	t.Run("パニックが発生した場合500が返ること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(Recovery())
		router.GET("/panic", func(_ *gin.Context) {
			panic("テスト用パニック")
		})

		req := httptest.NewRequest(http.MethodGet, "/panic", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
		}

		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["error"] != "内部サーバーエラーが発生しました" {
			t.Errorf("error = %q, want %q", body["error"], "内部サーバーエラーが発生しました")
		}
	})

	t.Run("パニックが発生しない場合は正常にレスポンスが返ること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(Recovery())
		router.GET("/ok", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})
}
