package checkin

import (
	"context"
	"log/slog"
)

// Scanner is the validation service as seen by the Submitter.
type Scanner interface {
	Scan(ctx context.Context, req Request) (*Result, error)
}

// Submitter turns a scanned payload and a resolution outcome into exactly
// one call to the validation service. It keeps no state between calls.
type Submitter struct {
	Service Scanner
	Logger  *slog.Logger
}

// Submit extracts the token from payload and sends it with the outcome's
// estimate. A low-accuracy estimate is sent as given; confirming it is the
// caller's job. When the outcome failed, justification must be non-blank,
// otherwise ErrMissingJustification is returned and nothing is sent.
// Service rejections come back as *ServiceError and are never retried.
func (s *Submitter) Submit(ctx context.Context, payload string, outcome Outcome, justification string) (*Result, error) {
	token, err := ExtractToken(payload)
	if err != nil {
		return nil, err
	}

	var req Request
	if outcome.OK() {
		est := outcome.Estimate
		req, err = NewRequest(token, &est, "")
	} else {
		req, err = NewRequest(token, nil, justification)
	}
	if err != nil {
		return nil, err
	}

	res, err := s.Service.Scan(ctx, req)
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err != nil {
		logger.Warn("check-in rejected", "err", err)
		return nil, err
	}
	logger.Info("check-in accepted", "status", res.AttendanceStatus, "validity", res.Validity)
	return res, nil
}
