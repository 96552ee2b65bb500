package trust

import (
	"context"
	"log/slog"
	"time"

	"coopfund-backend/internal/domain/fault"
	"coopfund-backend/internal/domain/group"
	"coopfund-backend/internal/domain/loan"
	"coopfund-backend/internal/domain/trust"
	"coopfund-backend/internal/domain/uow"
	"coopfund-backend/pkg/money"
)

// onTimeGrace is how far past the due date an installment still counts as
// settled on time.
const onTimeGrace = 3 * 24 * time.Hour

const defaultWindowDays = 180

type Usecase struct {
	uow uow.UnitOfWork
	now func() time.Time
}

func NewUsecase(tx uow.UnitOfWork) *Usecase {
	return &Usecase{uow: tx, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source for tests.
func (u *Usecase) WithClock(now func() time.Time) *Usecase { u.now = now; return u }

// Collect assembles the Compute input snapshot for one (group, user) pair
// over a trailing window. Runs inside the caller's transaction.
func Collect(ctx context.Context, r uow.Repos, g *group.Group, m *group.Membership, windowDays int, now time.Time) (Inputs, error) {
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	since := now.Add(-time.Duration(windowDays) * 24 * time.Hour)
	var in Inputs

	// Deposits: cadence assumes one deposit per 30 days of window.
	depCount, err := r.Groups.CountDeposits(ctx, g.ID, m.UserID, &since)
	if err != nil {
		return in, err
	}
	in.DepositCount = depCount
	in.ExpectedCadence = windowDays / 30
	uid := m.UserID
	if in.DepositSum, err = r.Groups.SumDeposits(ctx, g.ID, &uid, &since); err != nil {
		return in, err
	}
	if in.GroupDepositSum, err = r.Groups.SumDeposits(ctx, g.ID, nil, &since); err != nil {
		return in, err
	}
	rule, ruleErr := r.Groups.GetPolicyRule(ctx, g.ID)
	if ruleErr == nil && rule.MinDepositAmount != nil {
		in.TargetDeposit = *rule.MinDepositAmount * float64(in.ExpectedCadence)
	}

	// Repayment behavior on the user's own loans.
	paid, err := r.Loans.ListPaidScheduleForUser(ctx, g.ID, m.UserID, &since)
	if err != nil {
		return in, err
	}
	onTimeRepaymentIDs := make(map[uint64]bool)
	for _, e := range paid {
		in.PaidInstallments++
		if e.PaidAt != nil && !e.PaidAt.After(e.DueDate.Add(onTimeGrace)) {
			in.OnTimeInstallments++
			if e.PaidRepaymentID != nil {
				onTimeRepaymentIDs[*e.PaidRepaymentID] = true
			}
		}
	}
	reps, err := r.Loans.ListRepaymentsForUserLoans(ctx, g.ID, m.UserID, &since)
	if err != nil {
		return in, err
	}
	for _, rep := range reps {
		in.RepaymentTxCount++
		if rep.PayerID == m.UserID {
			in.SelfPaidTx++
		}
		if onTimeRepaymentIDs[rep.ID] {
			in.OnTimeLinkedTx++
		}
	}
	if in.SuspectTx, err = r.Loans.CountSuspectAudits(ctx, g.ID, m.UserID, &since); err != nil {
		return in, err
	}

	// Voting participation since the member joined.
	joined := m.JoinedAt
	sessions, err := r.Loans.ListSessionsByGroup(ctx, g.ID, &joined)
	if err != nil {
		return in, err
	}
	in.SessionsSinceJoin = len(sessions)
	if in.VotesCast, err = r.Loans.CountVotesByVoter(ctx, g.ID, m.UserID); err != nil {
		return in, err
	}
	if in.VotesCast > in.SessionsSinceJoin {
		in.VotesCast = in.SessionsSinceJoin
	}

	// Request rate and approval rate.
	mine, err := r.Loans.ListRequestsByGroup(ctx, g.ID, &uid, &since)
	if err != nil {
		return in, err
	}
	in.RequestCount = len(mine)
	in.UserRequestRate = float64(len(mine))
	all, err := r.Loans.ListRequestsByGroup(ctx, g.ID, nil, &since)
	if err != nil {
		return in, err
	}
	members, err := r.Groups.CountMembers(ctx, g.ID)
	if err != nil {
		return in, err
	}
	if members > 0 {
		in.GroupAvgRate = float64(len(all)) / float64(members)
	}
	for _, req := range mine {
		session, _ := r.Loans.GetSessionByRequest(ctx, req.ID)
		l, _ := r.Loans.GetByRequestID(ctx, req.ID)
		switch loan.DeriveRequestStatus(session, l) {
		case loan.RequestApproved, loan.RequestDisbursed:
			in.ApprovedRequests++
		}
	}

	// Disbursal timeliness over the user's disbursed loans.
	loans, err := r.Loans.ListByGroup(ctx, g.ID, &uid)
	if err != nil {
		return in, err
	}
	var totalDays float64
	for _, l := range loans {
		if l.DisbursedAt == nil {
			continue
		}
		in.DisbursedLoans++
		totalDays += l.DisbursedAt.Sub(l.CreatedAt).Hours() / 24
	}
	if in.DisbursedLoans > 0 {
		in.AvgDisbursalDays = totalDays / float64(in.DisbursedLoans)
	}
	return in, nil
}

type ScoreView struct {
	GroupID uint64  `json:"group_id"`
	UserID  uint64  `json:"user_id"`
	Score   float64 `json:"score"`
	Metrics Metrics `json:"-"`
}

// ComputeScore collects and computes without persisting anything.
func (u *Usecase) ComputeScore(ctx context.Context, slug string, userID, actorID uint64, windowDays int) (*ScoreView, error) {
	var out ScoreView
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		g, m, rule, err := u.loadSubject(ctx, r, slug, userID, actorID)
		if err != nil {
			return err
		}
		in, err := Collect(ctx, r, g, m, windowDays, u.now())
		if err != nil {
			return err
		}
		score, metrics := Compute(in, rule)
		out = ScoreView{GroupID: g.ID, UserID: userID, Score: score, Metrics: metrics}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTrustScore recomputes and persists the snapshot plus a per-day
// deduplicated history delta.
func (u *Usecase) UpdateTrustScore(ctx context.Context, slug string, userID, actorID uint64, windowDays int) (*ScoreView, error) {
	var out ScoreView
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		g, m, rule, err := u.loadSubject(ctx, r, slug, userID, actorID)
		if err != nil {
			return err
		}
		now := u.now()
		in, err := Collect(ctx, r, g, m, windowDays, now)
		if err != nil {
			return err
		}
		score, metrics := Compute(in, rule)

		prev, err := r.Trust.Get(ctx, g.ID, userID)
		if err != nil || prev == nil {
			prev = &trust.Score{GroupID: g.ID, UserID: userID}
		}
		delta := money.Round2(score - prev.Value)
		prev.Value = score
		if err := r.Trust.Save(ctx, prev); err != nil {
			return err
		}
		if err := r.Trust.UpsertHistory(ctx, &trust.HistoryEntry{
			GroupID:      g.ID,
			UserID:       userID,
			SnapshotDate: now.Format("2006-01-02"),
			Delta:        delta,
			ScoreAfter:   score,
			Reason:       "periodic recomputation",
		}); err != nil {
			return err
		}
		out = ScoreView{GroupID: g.ID, UserID: userID, Score: score, Metrics: metrics}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("trust score updated", "group_id", out.GroupID, "user_id", userID, "score", out.Score)
	return &out, nil
}

// History returns the member's score trail, newest first.
func (u *Usecase) History(ctx context.Context, slug string, userID, actorID uint64, limit int) ([]trust.HistoryEntry, error) {
	if limit <= 0 || limit > 365 {
		limit = 90
	}
	var out []trust.HistoryEntry
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		g, _, _, err := u.loadSubject(ctx, r, slug, userID, actorID)
		if err != nil {
			return err
		}
		out, err = r.Trust.ListHistory(ctx, g.ID, userID, limit)
		return err
	})
	return out, err
}

// loadSubject resolves the group, the subject's membership and the policy
// rule, enforcing that members only read their own score while admins read
// anyone's.
func (u *Usecase) loadSubject(ctx context.Context, r uow.Repos, slug string, userID, actorID uint64) (*group.Group, *group.Membership, *group.PolicyRule, error) {
	g, err := r.Groups.GetBySlug(ctx, slug)
	if err != nil {
		return nil, nil, nil, fault.Wrap(fault.NotFound, "group not found", err)
	}
	actor, err := r.Groups.GetMembership(ctx, g.ID, actorID)
	if err != nil {
		return nil, nil, nil, fault.New(fault.Authorization, "not a member of this group")
	}
	if actor.Role != group.RoleAdmin && actorID != userID {
		return nil, nil, nil, fault.New(fault.Authorization, "members can only view their own trust score")
	}
	m := actor
	if userID != actorID {
		if m, err = r.Groups.GetMembership(ctx, g.ID, userID); err != nil {
			return nil, nil, nil, fault.Wrap(fault.NotFound, "subject is not a member of this group", err)
		}
	}
	rule, err := r.Groups.GetPolicyRule(ctx, g.ID)
	if err != nil {
		rule = group.DefaultPolicyRule(g.ID)
	}
	return g, m, rule, nil
}

// RefreshAll recomputes and persists every member's score in every group.
// Used by the scheduler; a failure on one member never stops the pass.
func (u *Usecase) RefreshAll(ctx context.Context, windowDays int) (int, error) {
	var ids []uint64
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var lerr error
		ids, lerr = r.Groups.ListGroupIDs(ctx)
		return lerr
	})
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, gid := range ids {
		err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
			g, err := r.Groups.GetByID(ctx, gid)
			if err != nil {
				return err
			}
			rule, err := r.Groups.GetPolicyRule(ctx, gid)
			if err != nil {
				rule = group.DefaultPolicyRule(gid)
			}
			members, err := r.Groups.ListMembers(ctx, gid)
			if err != nil {
				return err
			}
			now := u.now()
			for i := range members {
				m := members[i]
				in, err := Collect(ctx, r, g, &m, windowDays, now)
				if err != nil {
					return err
				}
				score, _ := Compute(in, rule)

				prev, err := r.Trust.Get(ctx, gid, m.UserID)
				if err != nil || prev == nil {
					prev = &trust.Score{GroupID: gid, UserID: m.UserID}
				}
				delta := money.Round2(score - prev.Value)
				prev.Value = score
				if err := r.Trust.Save(ctx, prev); err != nil {
					return err
				}
				if err := r.Trust.UpsertHistory(ctx, &trust.HistoryEntry{
					GroupID:      gid,
					UserID:       m.UserID,
					SnapshotDate: now.Format("2006-01-02"),
					Delta:        delta,
					ScoreAfter:   score,
					Reason:       "periodic recomputation",
				}); err != nil {
					return err
				}
				updated++
			}
			return nil
		})
		if err != nil {
			slog.Error("trust refresh failed for group", "group_id", gid, "err", err)
		}
	}
	return updated, nil
}
