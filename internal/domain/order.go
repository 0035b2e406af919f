package domain

import "strings"

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType is the time-in-force used when submitting an order.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC"
	OrderTypeFOK OrderType = "FOK"
	OrderTypeFAK OrderType = "FAK" // immediate-or-cancel
)

// Order lifecycle statuses as reported by the trading venue, plus the
// synthetic StatusTimeout assigned when polling gives up.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCanceled        OrderStatus = "canceled"
	StatusRejected        OrderStatus = "rejected"
	StatusExpired         OrderStatus = "expired"
	StatusError           OrderStatus = "error"
	StatusTimeout         OrderStatus = "timeout"
)

// terminalStatuses are the venue statuses after which an order can no
// longer gain fills. "cancelled" covers the alternate spelling some
// endpoints return.
var terminalStatuses = map[string]struct{}{
	"filled":    {},
	"canceled":  {},
	"cancelled": {},
	"rejected":  {},
	"expired":   {},
}

// IsTerminal reports whether st is a terminal venue status.
func IsTerminal(st OrderStatus) bool {
	_, ok := terminalStatuses[strings.ToLower(string(st))]
	return ok
}

// OrderRequest describes one order to submit to the venue.
type OrderRequest struct {
	AssetID string
	Side    OrderSide
	Type    OrderType
	Price   float64
	Size    float64
}

// SubmitResult is the venue's response to an order submission.
type SubmitResult struct {
	Success  bool
	OrderID  string
	ErrorMsg string
}

// OrderState is the observed state of a submitted order.
type OrderState struct {
	OrderID     string
	AssetID     string
	Side        OrderSide
	Status      OrderStatus
	Price       float64
	Size        float64
	SizeMatched float64
}

// sizeEpsilon absorbs float accumulation error when comparing the matched
// quantity against the requested size.
const sizeEpsilon = 1e-9

// Filled reports whether the order reached full fill. Partial fills on a
// terminal order do not count.
func (s OrderState) Filled() bool {
	return s.Status == StatusFilled
}

// FilledFor reports whether the order covers the requested size: either the
// venue marked it filled, or the matched quantity already reaches the
// request. The venue can keep reporting a fully matched order as live for a
// short while, and such an order must never be treated as unfilled.
func (s OrderState) FilledFor(requested float64) bool {
	if s.Status == StatusFilled {
		return true
	}
	return requested > 0 && s.SizeMatched+sizeEpsilon >= requested
}
