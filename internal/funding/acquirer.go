package funding

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Acquirer represents a connector to an external payment processor that
// collects deposit funds.
type Acquirer interface {
	Authorize(ctx context.Context, input Authorization) (AuthorizationDecision, error)
}

// AuthorizationDecision captures the response from the acquirer.
type AuthorizationDecision struct {
	Reference string
	Status    string
}

// Authorization describes the funds to collect for a deposit.
type Authorization struct {
	UserID   string
	Method   Method
	Amount   decimal.Decimal
	Currency string
}

// StaticAcquirer simulates a successful acquirer integration.
type StaticAcquirer struct{}

// Authorize approves the request with a synthetic reference.
func (StaticAcquirer) Authorize(_ context.Context, _ Authorization) (AuthorizationDecision, error) {
	return AuthorizationDecision{Reference: uuid.NewString(), Status: StatusApproved}, nil
}
