package machine

import "context"

// An Adapter represents the minimal connection to a machine controller.
//
// Send transmits a single line of G-code and returns once the controller
// has acknowledged it, along with any reply text.
type Adapter interface {
	Send(ctx context.Context, line string) (string, error)
	Close() error
}
