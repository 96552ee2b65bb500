// Package kycmock is a function-backed identity verifier for tests.
package kycmock

import (
	"context"

	"coopfund-backend/internal/external/kyc"
)

var _ kyc.Verifier = (*Verifier)(nil)

// Verifier satisfies kyc.Verifier. Unfilled, every user is verified.
type Verifier struct {
	GetVerificationStatusFn func(ctx context.Context, userID uint64) (kyc.Status, error)
}

func New() *Verifier { return &Verifier{} }

func (m *Verifier) GetVerificationStatus(ctx context.Context, userID uint64) (kyc.Status, error) {
	if m.GetVerificationStatusFn != nil {
		return m.GetVerificationStatusFn(ctx, userID)
	}
	return kyc.StatusVerified, nil
}
