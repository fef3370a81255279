package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeRating は評価エンティティを表す。
	AggregateTypeRating AggregateType = "Rating"
	// AggregateTypeComplaint は苦情エンティティを表す。
	AggregateTypeComplaint AggregateType = "Complaint"
	// AggregateTypeAuction はオークションエンティティを表す。
	AggregateTypeAuction AggregateType = "Auction"
	// AggregateTypeOrder は注文エンティティを表す。
	AggregateTypeOrder AggregateType = "Order"
	// AggregateTypeUser はユーザーエンティティを表す。
	AggregateTypeUser AggregateType = "User"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeRatingCreated は出品者への評価が投稿されたことを表す。
	TypeRatingCreated Type = "RatingCreated"
	// TypeComplaintStatusChanged は苦情のステータスが変更されたことを表す。
	TypeComplaintStatusChanged Type = "ComplaintStatusChanged"
	// TypeAuctionOutbid はオークションで上位入札されたことを表す。
	TypeAuctionOutbid Type = "AuctionOutbid"
	// TypeOrderPaid は注文の支払いが完了したことを表す。
	TypeOrderPaid Type = "OrderPaid"
	// TypePaymentRefunded は支払いが返金されたことを表す。
	TypePaymentRefunded Type = "PaymentRefunded"
	// TypeIdentityPasswordChanged はアカウントのパスワードが変更されたことを表す。
	TypeIdentityPasswordChanged Type = "IdentityPasswordChanged"

	// TypeNotificationSent は通知が送信されたことを表す。
	TypeNotificationSent Type = "NotificationSent"
)

// Redisのpub/subチャネル名。各サービスがドメインイベントを発行する先。
const (
	// ChannelRatingEvents は評価サービスのイベントチャネル。
	ChannelRatingEvents = "rating.events"
	// ChannelComplaintEvents は苦情サービスのイベントチャネル。
	ChannelComplaintEvents = "complaint.events"
	// ChannelAuctionEvents はオークションサービスのイベントチャネル。
	ChannelAuctionEvents = "auction.events"
	// ChannelOrderEvents は注文・決済サービスのイベントチャネル。
	ChannelOrderEvents = "order.events"
	// ChannelIdentityEvents はアカウントサービスのイベントチャネル。
	ChannelIdentityEvents = "identity.events"
)

// Channels は通知サービスが購読する全チャネルの一覧。
var Channels = []string{
	ChannelRatingEvents,
	ChannelComplaintEvents,
	ChannelAuctionEvents,
	ChannelOrderEvents,
	ChannelIdentityEvents,
}

// Event はサービス間で受け渡される不変のイベントレコードを表す。
// Redisチャネル上のペイロード、およびEvent Storeへの追記に使用する。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// RecipientUserID は通知先となるユーザーのID。
	RecipientUserID int64 `json:"recipient_user_id"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// RatingCreatedData はRatingCreatedイベントのデータ。
type RatingCreatedData struct {
	// Stars は評価の星の数（1〜5）。
	Stars int `json:"stars"`
	// Comment は評価コメント。
	Comment string `json:"comment"`
	// RatingID は評価の識別子。
	RatingID string `json:"rating_id"`
}

// ComplaintStatusChangedData はComplaintStatusChangedイベントのデータ。
type ComplaintStatusChangedData struct {
	// ComplaintID は苦情の識別子。
	ComplaintID string `json:"complaint_id"`
	// Status は変更後のステータス。
	Status string `json:"status"`
}

// AuctionOutbidData はAuctionOutbidイベントのデータ。
type AuctionOutbidData struct {
	// AuctionID はオークションの識別子。
	AuctionID string `json:"auction_id"`
	// ItemName は出品物の名前。
	ItemName string `json:"item_name"`
	// NewHighestBid は新しい最高入札額。
	NewHighestBid int64 `json:"new_highest_bid"`
}

// OrderPaidData はOrderPaidイベントのデータ。
type OrderPaidData struct {
	// OrderID は注文の識別子。
	OrderID string `json:"order_id"`
	// Amount は支払金額。
	Amount int64 `json:"amount"`
}

// PaymentRefundedData はPaymentRefundedイベントのデータ。
type PaymentRefundedData struct {
	// OrderID は対象注文の識別子。
	OrderID string `json:"order_id"`
	// Amount は返金額。
	Amount int64 `json:"amount"`
	// Reason は返金理由。
	Reason string `json:"reason"`
}

// IdentityPasswordChangedData はIdentityPasswordChangedイベントのデータ。
type IdentityPasswordChangedData struct {
	// Email は対象アカウントのメールアドレス。
	Email string `json:"email"`
}

// NotificationSentData はNotificationSentイベントのデータ。
type NotificationSentData struct {
	// NotificationID は作成された通知の識別子。
	NotificationID string `json:"notification_id"`
	// UserID は通知先のユーザーID。
	UserID int64 `json:"user_id"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
}
