// 通知サービスのエントリポイント。
// 各サービスが発行するドメインイベントをRedis経由で受信し、
// ユーザーへの通知として永続化・配信する。
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nao1215/markethub/internal/notification"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println(".envファイルが見つからないためデフォルト値を使用します")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8086"
	}

	server, err := notification.NewServer(port)
	if err != nil {
		log.Fatalf("通知サーバーの初期化に失敗: %v", err)
	}
	defer server.Shutdown()

	// Redisイベントコンシューマをバックグラウンドで起動する
	rdb := redis.NewClient(&redis.Options{
		Addr:     getEnvOr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
	})
	consumer := notification.NewConsumer(rdb, server.Dispatcher())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("イベントコンシューマが停止しました: %v", err)
		}
	}()

	log.Printf("通知サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("通知サービスの起動に失敗: %v", err)
	}
}

// getEnvOr は環境変数の値を返す。未設定の場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// envInt は環境変数を整数として返す。未設定・不正な場合はデフォルト値を返す。
func envInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
