package ports

import (
	"context"

	"github.com/holiman/uint256"
)

// PaymentGateway delivers funds directly to a recipient. Send must not report
// success unless the funds were delivered. The id identifies the payment:
// sending again an id that was already delivered must not pay twice.
type PaymentGateway interface {
	Send(ctx context.Context, id, recipient string, amount *uint256.Int) error
	Close()
}
