package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ActionStatusReceived    = "received"
	ActionStatusNotReceived = "not_received"
	ActionStatusReview      = "review"
)

// Order is the canonical buyback order. ActionStatus and Locked belong to the
// review workflow and are never written by ingestion.
type Order struct {
	OrderID          string          `json:"orderId"`
	OrderDate        *time.Time      `json:"orderDate"`
	OrderTimeStamp   string          `json:"orderTimeStamp"`
	OldItemStatus    string          `json:"oldItemStatus"`
	BuybackCategory  string          `json:"buybackCategory,omitempty"`
	PartnerID        string          `json:"partnerId,omitempty"`
	PartnerEmail     string          `json:"partnerEmail,omitempty"`
	PartnerShop      string          `json:"partnerShop,omitempty"`
	OldItemDetails   string          `json:"oldItemDetails,omitempty"`
	BaseDiscount     decimal.Decimal `json:"baseDiscount"`
	DeliveryFee      decimal.Decimal `json:"deliveryFee"`
	TrackingID       string          `json:"trackingId,omitempty"`
	DeliveryDate     *time.Time      `json:"deliveryDate"`
	DeliveredWithOTP bool            `json:"deliveredWithOTP"`
	ActionStatus     *string         `json:"actionStatus"`
	Locked           bool            `json:"locked"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

type OrderFilter struct {
	Status      string
	PartnerShop string
	From        *time.Time
	To          *time.Time
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}
