package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DrGermanius/buyback/internal/dates"
	"github.com/DrGermanius/buyback/internal/model"
)

// RawRow is one spreadsheet row keyed by its header label.
type RawRow map[string]interface{}

// Header aliases seen in partner exports, in order of preference.
var (
	orderIDAliases          = []string{"orderId", "Order ID", "Order Id"}
	orderDateAliases        = []string{"orderDate", "Order Date"}
	orderTimeStampAliases   = []string{"orderTimeStamp", "Order Timestamp"}
	oldItemStatusAliases    = []string{"oldItemStatus", "Old Item Status", "Order Status"}
	buybackCategoryAliases  = []string{"buybackCategory", "Buyback Category", "BuyBack Category"}
	partnerIDAliases        = []string{"partnerId", "Partner ID"}
	partnerEmailAliases     = []string{"partnerEmail", "Partner Email"}
	partnerShopAliases      = []string{"partnerShop", "Partner Shop", "City"}
	oldItemDetailsAliases   = []string{"oldItemDetails", "Old Item Details", "Used Item Info"}
	baseDiscountAliases     = []string{"baseDiscount", "Base Discount", "Base Exchange Value"}
	deliveryFeeAliases      = []string{"deliveryFee", "Delivery Fee"}
	trackingIDAliases       = []string{"trackingId", "Tracking ID"}
	deliveryDateAliases     = []string{"deliveryDate", "Delivery Date"}
	deliveredWithOTPAliases = []string{"deliveredWithOTP", "Delivered With OTP"}
)

type Mapper struct {
	dates *dates.Normalizer
}

func NewMapper(n *dates.Normalizer) *Mapper {
	return &Mapper{dates: n}
}

// MapRow never fails: missing or malformed cells leave the field at its
// zero value.
func (m *Mapper) MapRow(row RawRow) model.Order {
	orderDate, _ := row.first(orderDateAliases...)
	orderTime, _ := row.first(orderTimeStampAliases...)
	split := m.dates.SplitCombined(orderDate, orderTime)

	deliveryDate, _ := row.first(deliveryDateAliases...)

	return model.Order{
		OrderID:          row.text(orderIDAliases...),
		OrderDate:        split.DateOnly,
		OrderTimeStamp:   split.DisplayTimestamp,
		OldItemStatus:    row.text(oldItemStatusAliases...),
		BuybackCategory:  row.text(buybackCategoryAliases...),
		PartnerID:        row.text(partnerIDAliases...),
		PartnerEmail:     strings.ToLower(row.text(partnerEmailAliases...)),
		PartnerShop:      row.text(partnerShopAliases...),
		OldItemDetails:   row.text(oldItemDetailsAliases...),
		BaseDiscount:     row.amount(baseDiscountAliases...),
		DeliveryFee:      row.amount(deliveryFeeAliases...),
		TrackingID:       row.text(trackingIDAliases...),
		DeliveryDate:     m.dates.ParseDateOnly(deliveryDate),
		DeliveredWithOTP: row.flag(deliveredWithOTPAliases...),
	}
}

// first returns the first alias holding a non-empty value. Zero numbers and
// false are treated as empty so that a later alias can still supply a value.
func (r RawRow) first(aliases ...string) (interface{}, bool) {
	for _, a := range aliases {
		v, ok := r[a]
		if !ok || !present(v) {
			continue
		}
		return v, true
	}
	return nil, false
}

func (r RawRow) text(aliases ...string) string {
	v, ok := r.first(aliases...)
	if !ok {
		return ""
	}
	return stringify(v)
}

func (r RawRow) amount(aliases ...string) decimal.Decimal {
	v, ok := r.first(aliases...)
	if !ok {
		return decimal.Zero
	}
	switch x := v.(type) {
	case float64:
		return decimal.NewFromFloat(x)
	case int:
		return decimal.NewFromInt(int64(x))
	case int64:
		return decimal.NewFromInt(x)
	case decimal.Decimal:
		return x
	case string:
		s := strings.NewReplacer(",", "", "₹", "", " ", "").Replace(x)
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	return decimal.Zero
}

// flag reads yes/no style cells. Any non-empty value other than an explicit
// negative counts as true.
func (r RawRow) flag(aliases ...string) bool {
	v, ok := r.first(aliases...)
	if !ok {
		return false
	}
	s, isString := v.(string)
	if !isString {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "false", "no", "n", "0", "null":
		return false
	}
	return true
}

func present(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	case int64:
		return x != 0
	case time.Time:
		return !x.IsZero()
	}
	return true
}

func stringify(v interface{}) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}
