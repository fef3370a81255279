// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// 通知サービスがEvent StoreへNotificationSentイベントを追記する際や、
// 他のマーケットプレイスサービスのAPIを呼び出す際に使用する。
package httpclient
