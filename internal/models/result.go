package models

// Outcome classifies one per-token send attempt. Only OutcomeInvalid ever
// feeds into token deletion; transient and other failures never remove a
// token from the registry.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeInvalid means the provider reported the registration as
	// permanently dead (unregistered, expired, malformed).
	OutcomeInvalid
	// OutcomeTransient means the failure is expected to clear on retry.
	OutcomeTransient
	// OutcomeOther is any unclassified terminal failure.
	OutcomeOther
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeTransient:
		return "transient"
	default:
		return "other"
	}
}

// FailReasons breaks the failure count down by classification so operators
// can tell stale tokens apart from a degraded upstream.
type FailReasons struct {
	Invalid   int `json:"invalid"`
	Transient int `json:"transient"`
	Other     int `json:"other"`
}

// Reason discriminators for empty dispatches, so callers can distinguish
// "nobody to notify" from a silent failure.
const (
	ReasonNoTargetUsers     = "NO_TARGET_USERS"
	ReasonNoMatchingTokens  = "NO_MATCHING_TOKENS"
	ReasonTokenLookupFailed = "TOKEN_LOOKUP_FAILED"
	ReasonNoTokens          = "NO_TOKENS"
)

// DispatchResponse is the aggregate returned by the dispatch endpoint.
type DispatchResponse struct {
	Success        int         `json:"success"`
	Failed         int         `json:"failed"`
	TotalTokens    int         `json:"totalTokens"`
	InvalidTokens  []string    `json:"invalidTokens"`
	InvalidRemoved int         `json:"invalidRemoved"`
	FailReasons    FailReasons `json:"failReasons"`
	Reason         string      `json:"reason,omitempty"`
	Details        string      `json:"details,omitempty"`
}

// Aggregate is the caller-facing result of a fan-out.
type Aggregate struct {
	Success        int         `json:"success"`
	Failed         int         `json:"failed"`
	Total          int         `json:"total"`
	InvalidRemoved int         `json:"invalidTokensRemoved"`
	FailReasons    FailReasons `json:"failReasons"`
	Skipped        bool        `json:"skipped,omitempty"`
	Reason         string      `json:"reason,omitempty"`
}
