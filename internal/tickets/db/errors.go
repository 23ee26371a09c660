package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/lib/pq"

	"ms-checkin/internal/models"
)

var domainErrors = []error{
	models.ErrEventNotFound,
	models.ErrTicketNotFound,
	models.ErrForbidden,
	models.ErrInvalidInput,
	models.ErrStoreUnavailable,
}

// classify leaves domain errors alone and folds connectivity, timeout and
// retryable transaction failures into ErrStoreUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}
	return err
}

func isUnavailable(err error) bool {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	// database/sql does not export this one.
	if strings.Contains(err.Error(), "sql: database is closed") {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", // connection exception
			"53", // insufficient resources
			"57": // operator intervention, admin shutdown
			return true
		}
		// serialization_failure, deadlock_detected: the transaction was rolled back.
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// Classify is classify for packages that query the same database directly.
func Classify(err error) error {
	return classify(err)
}
