package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
)

var transientErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
}

// markTransient tags connection-level failures as ErrTemporary, which the
// resilience executor retries and the HTTP layer answers with 503.
func markTransient(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	for _, transient := range transientErrors {
		if errors.Is(err, transient) {
			return domain.WrapError(domain.ErrTemporary, "nats publish", err)
		}
	}
	return err
}
