// Package notifier delivers transactional mail such as password reset links.
package notifier

import "context"

// Notifier sends an HTML message to a single recipient. Implementations must
// return delivery failures rather than swallowing them, so the caller can
// distinguish an outage from a successful no-op.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, htmlBody string) error
}
