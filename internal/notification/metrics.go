package notification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheusメトリクス。/metricsエンドポイントで公開される。
var (
	// metricNotificationsCreated は永続化に成功した通知の累計数。
	metricNotificationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "markethub_notifications_created_total",
		Help: "永続化に成功した通知の数",
	})

	// metricLivePushAttempts はSSE経由で送信を試みた接続の累計数。
	metricLivePushAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "markethub_live_push_attempts_total",
		Help: "SSEで送信を試みた接続の数（送達確認なし）",
	})

	// metricWebPushSent はWeb Push送信の成功数。
	metricWebPushSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "markethub_webpush_sent_total",
		Help: "Web Push送信の成功数",
	})

	// metricWebPushFailed はWeb Push送信の失敗数。
	metricWebPushFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "markethub_webpush_failed_total",
		Help: "Web Push送信の失敗数",
	})

	// metricEventsConsumed はRedisチャネルから受信したイベント数（チャネル別）。
	metricEventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "markethub_events_consumed_total",
		Help: "Redisチャネルから受信したイベントの数",
	}, []string{"channel"})
)
