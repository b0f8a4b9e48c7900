package aws

import (
	"context"
	"errors"

	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
	"github.com/DrSkyle/wastewatch/pkg/engine/throttle"
)

// classify maps an SDK error to the engine taxonomy. page is the zero-based
// page the error occurred on; failures after the first page are partial.
func classify(op string, err error, page int) *errs.Error {
	if err == nil {
		return nil
	}
	var kind errs.Kind
	switch {
	case errors.Is(err, context.Canceled):
		kind = errs.KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		kind = errs.KindTimeout
	case throttle.IsThrottle(err):
		kind = errs.KindProviderThrottled
	case page > 0:
		kind = errs.KindPartialPage
	default:
		kind = errs.KindProviderUnavailable
	}
	return errs.E(kind, op, err)
}

// classifyMetrics is classify for metric reads: anything that is not
// throttling or cancellation makes the metrics unavailable for the resource.
func classifyMetrics(op string, err error) *errs.Error {
	if err == nil {
		return nil
	}
	e := classify(op, err, 0)
	switch e.Kind {
	case errs.KindCancelled, errs.KindTimeout, errs.KindProviderThrottled:
		return e
	}
	return errs.E(errs.KindMetricsUnavailable, op, err)
}
