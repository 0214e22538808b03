package checkout

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/kasir-pos/internal/cart"
	"github.com/noah-isme/kasir-pos/internal/money"
	"github.com/noah-isme/kasir-pos/internal/pricing"
)

// State is the position of a checkout attempt in its lifecycle. Settled and
// Rejected are terminal; a new attempt starts a fresh state machine.
type State int

const (
	// Idle is the initial state before validation begins.
	Idle State = iota
	// Validating checks the cart total and tendered amount.
	Validating
	// AwaitingPayment holds a validated total waiting for sufficient tender.
	AwaitingPayment
	// Settled is the terminal success state.
	Settled
	// Rejected is the terminal failure state; the next attempt starts over.
	Rejected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case AwaitingPayment:
		return "awaiting_payment"
	case Settled:
		return "settled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Reason classifies a rejection.
type Reason string

const (
	// ReasonNone marks a successful attempt.
	ReasonNone Reason = ""
	// ReasonEmptyCart rejects checkouts with a non-positive total.
	ReasonEmptyCart Reason = "EMPTY_CART"
	// ReasonInsufficientPayment rejects tenders below the amount due.
	ReasonInsufficientPayment Reason = "INSUFFICIENT_PAYMENT"
)

// PayloadItem is one line of the payment payload. Prices are intentionally
// omitted to keep the encoded payload compact.
type PayloadItem struct {
	Name string `json:"n"`
	Qty  int    `json:"q"`
}

// Payload is the compact payment descriptor encoded into the QR code. Key
// names are minified; scanners on the reconciliation side depend on them.
type Payload struct {
	Merchant   string        `json:"m"`
	Currency   string        `json:"c"`
	AmountDue  float64       `json:"a"`
	AmountPaid float64       `json:"p"`
	Change     float64       `json:"ch"`
	Items      []PayloadItem `json:"it"`
	Time       string        `json:"t"`
}

// Input carries everything one checkout attempt consumes.
type Input struct {
	Lines   []cart.Line
	Pricing pricing.Result
	// Paid is the tendered amount in the display currency. Zero, negative
	// or non-finite values trigger the auto-fill convenience default.
	Paid float64
}

// Result reports the outcome of a checkout attempt. When the tender was
// auto-filled, SuggestedPaid surfaces the substituted amount to the caller.
type Result struct {
	AttemptID     string  `json:"attemptId"`
	State         State   `json:"-"`
	StateName     string  `json:"state"`
	Reason        Reason  `json:"reason,omitempty"`
	AmountDue     float64 `json:"amountDue"`
	Paid          float64 `json:"paid"`
	SuggestedPaid float64 `json:"suggestedPaid,omitempty"`
	AutoFilled    bool    `json:"autoFilled,omitempty"`
	Change        float64 `json:"change"`
	Payload       string  `json:"payload,omitempty"`
}

// Processor validates tendered payments and builds payment payloads. It holds
// no per-attempt state.
type Processor struct {
	Merchant string
	Now      func() time.Time
}

func (p Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Process runs one checkout attempt through the state machine.
func (p Processor) Process(in Input) Result {
	res := Result{
		AttemptID: uuid.NewString(),
		State:     Validating,
	}

	if in.Pricing.Total <= 0 {
		return p.reject(res, ReasonEmptyCart)
	}

	res.AmountDue = money.Round2(in.Pricing.TotalDisplay)
	res.State = AwaitingPayment

	paid := in.Paid
	if paid <= 0 || math.IsNaN(paid) || math.IsInf(paid, 0) {
		paid = res.AmountDue
		res.SuggestedPaid = paid
		res.AutoFilled = true
	}
	paid = money.Round2(paid)
	res.Paid = paid

	if paid <= 0 {
		return p.reject(res, ReasonEmptyCart)
	}
	if paid < res.AmountDue {
		// the deficit is deliberately not reported; no partial payments
		return p.reject(res, ReasonInsufficientPayment)
	}

	res.Change = money.Round2(paid - res.AmountDue)
	res.State = Settled
	res.StateName = res.State.String()
	res.Payload = p.buildPayload(in, res)
	return res
}

func (p Processor) reject(res Result, reason Reason) Result {
	res.State = Rejected
	res.StateName = res.State.String()
	res.Reason = reason
	return res
}

func (p Processor) buildPayload(in Input, res Result) string {
	items := make([]PayloadItem, 0, len(in.Lines))
	for _, l := range in.Lines {
		items = append(items, PayloadItem{Name: l.Name, Qty: l.Quantity})
	}
	payload := Payload{
		Merchant:   p.Merchant,
		Currency:   in.Pricing.Currency,
		AmountDue:  res.AmountDue,
		AmountPaid: res.Paid,
		Change:     res.Change,
		Items:      items,
		Time:       p.now().UTC().Format(time.RFC3339),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(encoded)
}
