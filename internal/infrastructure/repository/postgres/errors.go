package postgres

import (
	"database/sql/driver"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
)

// retryableSQLStates are failures after which the statement provably did not
// take effect: connection setup problems and aborted transactions.
var retryableSQLStates = map[string]struct{}{
	"08000": {}, // connection_exception
	"08001": {}, // sqlclient_unable_to_establish_sqlconnection
	"08003": {}, // connection_does_not_exist
	"08004": {}, // sqlserver_rejected_establishment_of_sqlconnection
	"08006": {}, // connection_failure
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"57P03": {}, // cannot_connect_now
}

// markTransient tags errors that are safe to retry as ErrTemporary so the
// resilience executor retries them and callers answer 503.
func markTransient(op string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := retryableSQLStates[pgErr.Code]; ok {
			return domain.WrapError(domain.ErrTemporary, op, err)
		}
		return err
	}
	if errors.Is(err, driver.ErrBadConn) || pgconn.SafeToRetry(err) {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	return err
}
