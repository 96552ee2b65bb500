package lending

import (
	"context"
	"fmt"
	"log/slog"

	"coopfund-backend/internal/domain/fault"
	"coopfund-backend/internal/domain/loan"
	"coopfund-backend/internal/domain/uow"
	"coopfund-backend/internal/external/consensus"
	"coopfund-backend/internal/external/notify"
)

type VoteResult struct {
	AlreadyVoted  bool               `json:"already_voted"`
	SessionClosed bool               `json:"session_closed"`
	SessionStatus loan.SessionStatus `json:"session_status"`
	YesVotes      int                `json:"yes_votes"`
	NoVotes       int                `json:"no_votes"`
	Quorum        int                `json:"quorum"`
	LoanID        uint64             `json:"loan_id,omitempty"`
}

// CastVote records a member's vote and evaluates quorum against the current
// membership count. Voting twice is not an error; the second vote reports the
// standing one. Closing is one-shot: once the session settles, further votes
// are rejected with an invalid-state error.
func (u *Usecase) CastVote(ctx context.Context, requestID, voterID uint64, choice loan.Choice) (*VoteResult, error) {
	if choice != loan.ChoiceYes && choice != loan.ChoiceNo {
		return nil, fault.New(fault.Validation, "vote must be yes or no")
	}

	var (
		out      VoteResult
		grpID    uint64
		borrower uint64
	)
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		req, err := r.Loans.GetRequest(ctx, requestID)
		if err != nil {
			return fault.Wrap(fault.NotFound, "loan request not found", err)
		}
		grpID = req.GroupID
		borrower = req.UserID

		if _, err := r.Groups.GetMembership(ctx, req.GroupID, voterID); err != nil {
			return fault.New(fault.Authorization, "not a member of this group")
		}

		session, err := r.Loans.GetSessionByRequest(ctx, req.ID)
		if err != nil {
			return fault.Wrap(fault.NotFound, "voting session not found", err)
		}
		if session.Closed() {
			return fault.New(fault.InvalidState, "voting has closed for this request")
		}

		if existing, err := r.Loans.GetVote(ctx, session.ID, voterID); err == nil && existing != nil {
			out.AlreadyVoted = true
		} else if err := r.Loans.CreateVote(ctx, &loan.VoteRecord{
			SessionID: session.ID, VoterID: voterID, Choice: choice,
		}); err != nil {
			// Unique (session,voter) index: a concurrent duplicate lands here.
			out.AlreadyVoted = true
		}

		yes, err := r.Loans.CountVotes(ctx, session.ID, loan.ChoiceYes)
		if err != nil {
			return err
		}
		no, err := r.Loans.CountVotes(ctx, session.ID, loan.ChoiceNo)
		if err != nil {
			return err
		}
		members, err := r.Groups.CountMembers(ctx, req.GroupID)
		if err != nil {
			return err
		}
		quorum := members/2 + 1

		out.YesVotes, out.NoVotes, out.Quorum = yes, no, quorum
		out.SessionStatus = session.Status

		if yes+no < quorum && yes+no != members {
			return nil
		}

		// Quorum reached (or everyone voted): close one-shot.
		now := u.now()
		if yes > no {
			session.Status = loan.SessionApproved
		} else {
			session.Status = loan.SessionRejected
		}
		session.ClosedAt = &now
		if err := r.Loans.SaveSession(ctx, session); err != nil {
			return err
		}
		out.SessionClosed = true
		out.SessionStatus = session.Status

		if session.Status != loan.SessionApproved {
			return nil
		}

		// Exactly one loan per request: re-entrant closes return the
		// existing loan untouched.
		if existing, err := r.Loans.GetByRequestID(ctx, req.ID); err == nil && existing != nil {
			out.LoanID = existing.ID
			return nil
		}
		g, err := r.Groups.GetByID(ctx, req.GroupID)
		if err != nil {
			return err
		}
		l := &loan.Loan{
			LoanRequestID:   req.ID,
			GroupID:         req.GroupID,
			UserID:          req.UserID,
			Principal:       req.Amount,
			InterestRateAPY: g.NormalizedRate() * 100,
			TenureMonths:    12,
			Status:          loan.StatusApproved,
		}
		if err := r.Loans.Create(ctx, l); err != nil {
			return err
		}
		out.LoanID = l.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.SessionClosed {
		slog.Info("voting session closed",
			"request_id", requestID, "group_id", grpID, "status", string(out.SessionStatus),
			"yes", out.YesVotes, "no", out.NoVotes, "quorum", out.Quorum)
		u.publish(ctx, consensus.Event{
			Action: "voting_closed", GroupID: grpID, ActorID: voterID,
			Fields: map[string]any{"request_id": requestID, "status": string(out.SessionStatus), "yes": out.YesVotes, "no": out.NoVotes},
		})
		switch out.SessionStatus {
		case loan.SessionApproved:
			u.notifier.Notify(ctx, borrower, "Your loan request was approved", notify.LevelSuccess)
			u.notifyGroupAdmins(ctx, grpID, fmt.Sprintf("Loan request %d approved, awaiting disbursal", requestID))
		case loan.SessionRejected:
			u.notifier.Notify(ctx, borrower, "Your loan request was rejected", notify.LevelWarning)
		}
	}
	return &out, nil
}
