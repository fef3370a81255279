package event

import (
	"encoding/json"
	"testing"
	"time"
)

// TestAggregateTypeConstants はAggregateType定数の値を検証する。
func TestAggregateTypeConstants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  AggregateType
		want string
	}{
		{
			name: "AggregateTypeRatingの値が正しいこと",
			got:  AggregateTypeRating,
			want: "Rating",
		},
		{
			name: "AggregateTypeComplaintの値が正しいこと",
			got:  AggregateTypeComplaint,
			want: "Complaint",
		},
		{
			name: "AggregateTypeAuctionの値が正しいこと",
			got:  AggregateTypeAuction,
			want: "Auction",
		},
		{
			name: "AggregateTypeOrderの値が正しいこと",
			got:  AggregateTypeOrder,
			want: "Order",
		},
		{
			name: "AggregateTypeUserの値が正しいこと",
			got:  AggregateTypeUser,
			want: "User",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if string(tt.got) != tt.want {
				t.Errorf("AggregateType = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

// TestTypeConstants はType定数の値を検証する。
func TestTypeConstants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  Type
		want string
	}{
		{
			name: "TypeRatingCreatedの値が正しいこと",
			got:  TypeRatingCreated,
			want: "RatingCreated",
		},
		{
			name: "TypeComplaintStatusChangedの値が正しいこと",
			got:  TypeComplaintStatusChanged,
			want: "ComplaintStatusChanged",
		},
		{
			name: "TypeAuctionOutbidの値が正しいこと",
			got:  TypeAuctionOutbid,
			want: "AuctionOutbid",
		},
		{
			name: "TypeOrderPaidの値が正しいこと",
			got:  TypeOrderPaid,
			want: "OrderPaid",
		},
		{
			name: "TypePaymentRefundedの値が正しいこと",
			got:  TypePaymentRefunded,
			want: "PaymentRefunded",
		},
		{
			name: "TypeIdentityPasswordChangedの値が正しいこと",
			got:  TypeIdentityPasswordChanged,
			want: "IdentityPasswordChanged",
		},
		{
			name: "TypeNotificationSentの値が正しいこと",
			got:  TypeNotificationSent,
			want: "NotificationSent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if string(tt.got) != tt.want {
				t.Errorf("Type = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

// TestChannels は購読対象チャネル一覧の内容を検証する。
func TestChannels(t *testing.T) {
	t.Parallel()

	want := []string{
		"rating.events",
		"complaint.events",
		"auction.events",
		"order.events",
		"identity.events",
	}

	if len(Channels) != len(want) {
		t.Fatalf("Channelsの数: got %d, want %d", len(Channels), len(want))
	}
	for i, ch := range want {
		if Channels[i] != ch {
			t.Errorf("Channels[%d] = %q, want %q", i, Channels[i], ch)
		}
	}
}

// TestEventJSONRoundTrip はEvent構造体のJSONシリアライズを検証する。
func TestEventJSONRoundTrip(t *testing.T) {
	t.Parallel()

	e := Event{
		ID:              "event-1",
		AggregateID:     "rating-1",
		AggregateType:   AggregateTypeRating,
		EventType:       TypeRatingCreated,
		RecipientUserID: 42,
		Data:            json.RawMessage(`{"stars":5}`),
		CreatedAt:       time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("シリアライズに失敗: %v", err)
	}

	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("デシリアライズに失敗: %v", err)
	}

	if got.ID != e.ID {
		t.Errorf("ID = %q, want %q", got.ID, e.ID)
	}
	if got.RecipientUserID != 42 {
		t.Errorf("RecipientUserID = %d, want 42", got.RecipientUserID)
	}
	if got.EventType != TypeRatingCreated {
		t.Errorf("EventType = %q, want %q", got.EventType, TypeRatingCreated)
	}
}
