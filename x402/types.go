package x402

// Payment gate types shared by the HTTP routes and the MCP server.

import "math/big"

const (
	// HeaderPaymentTx carries the hash of the payForCall transaction.
	HeaderPaymentTx = "X-Payment-Tx"

	// ProtocolTag identifies this payment scheme in 402 descriptors.
	ProtocolTag = "toolfi-x402/v1"

	// StatusPaymentRequired is the descriptor status of an unpaid request.
	StatusPaymentRequired = "payment_required"

	MetaKeyPaymentTx       = "toolfi/payment.txHash"
	MetaKeyPaymentResponse = "toolfi/payment-response"
	MetaKeyPaymentRequired = "toolfi/payment-required"
)

// DecisionKind is the outcome class of Gate.Authorize.
type DecisionKind int

const (
	Authorized DecisionKind = iota + 1
	PaymentRequired
	Rejected
)

func (k DecisionKind) String() string {
	switch k {
	case Authorized:
		return "authorized"
	case PaymentRequired:
		return "payment_required"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Mode says how present payment references are treated.
type Mode int

const (
	// ModeVerified checks every reference against the chain.
	ModeVerified Mode = iota
	// ModeUnconfigured accepts any reference without checking it. Only
	// selected when no registry address is configured.
	ModeUnconfigured
)

func (m Mode) String() string {
	if m == ModeUnconfigured {
		return "demo"
	}
	return "verified"
}

// ToolRef identifies the paid tool a request wants to reach.
type ToolRef struct {
	ID    uint64
	Name  string
	Price *big.Int
}

// PaymentInfo is attached to every authorized response so it can be audited.
type PaymentInfo struct {
	ToolID   uint64 `json:"toolId"`
	Caller   string `json:"caller"`
	Verified bool   `json:"verified"`
	TxRef    string `json:"txRef"`
	Mode     string `json:"mode"`
}

// Terms tells a client exactly what to pay and how.
type Terms struct {
	ChainID        int64    `json:"chainId"`
	Network        string   `json:"network"`
	Contract       string   `json:"contract"`
	Token          string   `json:"token"`
	ToolID         uint64   `json:"toolId"`
	ToolName       string   `json:"toolName"`
	Price          *big.Int `json:"price"`
	PriceFormatted string   `json:"priceFormatted"`
	Instructions   []string `json:"instructions"`
}

// Descriptor is the body of a payment required response.
type Descriptor struct {
	Status   string `json:"status"`
	Protocol string `json:"protocol"`
	Payment  Terms  `json:"payment"`
}

// Rejection explains why a present reference was not accepted. Retryable
// rejections may succeed later with the same reference.
type Rejection struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Decision is the result of Gate.Authorize. Exactly one of Payment,
// Required and Rejection is set, matching Kind.
type Decision struct {
	Kind      DecisionKind
	Payment   *PaymentInfo
	Required  *Descriptor
	Rejection *Rejection
}
