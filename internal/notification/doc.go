// Package notification は通知サービスの内部実装を提供する。
//
// マーケットプレイスの各サービス（評価、苦情、オークション、注文、
// アカウント）が発行するドメインイベントを受信し、ユーザー宛ての
// 通知として永続化する。永続化に成功した通知は、接続中のクライアントへ
// SSEとWeb Pushでベストエフォート配信される。通知の一覧取得や
// 既読管理も行う。
package notification
