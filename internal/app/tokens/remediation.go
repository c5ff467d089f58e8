package tokens

import (
	"context"
	"errors"
	"fmt"

	installstore "github.com/dalemusser/alerthub/internal/app/store/installs"
	tokenstore "github.com/dalemusser/alerthub/internal/app/store/tokens"
	"github.com/dalemusser/alerthub/internal/app/system/timeouts"
	"github.com/dalemusser/alerthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Outcome is the per-user result of a remediation sweep.
type Outcome string

const (
	Registered        Outcome = "registered"
	AlreadyRegistered Outcome = "already_registered"
	NoTokenAvailable  Outcome = "no_token_available"
	Failed            Outcome = "failed"
)

// UserResult is what the sweep did for one follower.
type UserResult struct {
	UserID  primitive.ObjectID `json:"user_id"`
	Outcome Outcome            `json:"outcome"`
	Err     error              `json:"-"`
}

// RemediationReport lists the result for every follower that lacked a token.
type RemediationReport struct {
	OrgID     primitive.ObjectID `json:"org_id"`
	Followers int                `json:"followers"`
	Results   []UserResult       `json:"results"`
}

// Count returns how many results have outcome o.
func (r RemediationReport) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Err returns a *PartialFailure when any user failed, otherwise nil.
func (r RemediationReport) Err() error {
	var failed []UserResult
	for _, res := range r.Results {
		if res.Outcome == Failed {
			failed = append(failed, res)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &PartialFailure{OrgID: r.OrgID, Attempted: len(r.Results), Failed: failed}
}

// ErrPartialFailure matches any *PartialFailure with errors.Is.
var ErrPartialFailure = errors.New("partial failure")

// PartialFailure reports the users a batch operation could not update. The
// other users in the batch were updated.
type PartialFailure struct {
	OrgID     primitive.ObjectID
	Attempted int
	Failed    []UserResult
}

func (p *PartialFailure) Error() string {
	return fmt.Sprintf("token remediation for org %s: %d of %d users failed",
		p.OrgID.Hex(), len(p.Failed), p.Attempted)
}

func (p *PartialFailure) Is(target error) bool { return target == ErrPartialFailure }

// Unwrap exposes the per-user errors.
func (p *PartialFailure) Unwrap() []error {
	errs := make([]error, 0, len(p.Failed))
	for _, f := range p.Failed {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// FailedUserIDs returns the ids of the users that failed.
func (p *PartialFailure) FailedUserIDs() []primitive.ObjectID {
	ids := make([]primitive.ObjectID, len(p.Failed))
	for i, f := range p.Failed {
		ids[i] = f.UserID
	}
	return ids
}

// RegisterMissingTokens registers a token for every follower of orgID that
// has no active one, using the newest token their installations reported.
//
// It is best effort: the returned error is non-nil only when the follower
// list itself cannot be read. Per-user failures are in the report; use
// report.Err() to get them as a *PartialFailure.
func (r *Registrar) RegisterMissingTokens(ctx context.Context, orgID primitive.ObjectID) (RemediationReport, error) {
	report := RemediationReport{OrgID: orgID}

	listCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), r.log, "tokens.list_followers")
	followers, err := r.followers.ListFollowerIDs(listCtx, orgID)
	if err == nil {
		var active map[primitive.ObjectID]bool
		active, err = r.store.ActiveUserIDs(listCtx, followers)
		if err == nil {
			for _, id := range followers {
				if !active[id] {
					report.Results = append(report.Results, UserResult{UserID: id})
				}
			}
		}
	}
	cancel()
	if err != nil {
		return RemediationReport{}, storeErr(err)
	}
	report.Followers = len(followers)

	sweepCtx, cancelSweep := timeouts.WithTimeout(ctx, timeouts.Batch(), r.log, "tokens.remediate")
	defer cancelSweep()

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i := range report.Results {
		g.Go(func() error {
			report.Results[i].Outcome, report.Results[i].Err = r.remediateUser(sweepCtx, report.Results[i].UserID)
			return nil
		})
	}
	_ = g.Wait()

	r.log.Info("token remediation finished",
		zap.String("org_id", orgID.Hex()),
		zap.Int("followers", report.Followers),
		zap.Int("missing", len(report.Results)),
		zap.Int("registered", report.Count(Registered)),
		zap.Int("no_token_available", report.Count(NoTokenAvailable)),
		zap.Int("failed", report.Count(Failed)))
	return report, nil
}

func (r *Registrar) remediateUser(ctx context.Context, userID primitive.ObjectID) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Failed, storeErr(err)
	}

	unlock := r.locks.Lock(userID)
	defer unlock()

	// The user may have registered since the follower scan.
	tok, err := r.store.Get(ctx, userID)
	switch {
	case err == nil && tok.Status == models.TokenActive:
		return AlreadyRegistered, nil
	case err != nil && !errors.Is(err, tokenstore.ErrNotFound):
		return r.failUser(userID, err)
	}

	install, err := r.source.LatestForUser(ctx, userID)
	if errors.Is(err, installstore.ErrNotFound) {
		return NoTokenAvailable, nil
	}
	if err != nil {
		return r.failUser(userID, err)
	}

	reg := Registration{Token: install.PushToken, Platform: install.Platform}
	if err := r.validate.Struct(reg); err != nil {
		return r.failUser(userID, fmt.Errorf("%w: %v", ErrInvalidToken, err))
	}
	if err := r.store.Upsert(ctx, userID, reg.Token, reg.Platform); err != nil {
		return r.failUser(userID, err)
	}
	return Registered, nil
}

func (r *Registrar) failUser(userID primitive.ObjectID, err error) (Outcome, error) {
	if !errors.Is(err, ErrInvalidToken) {
		err = storeErr(err)
	}
	r.log.Warn("token remediation failed for user",
		zap.String("user_id", userID.Hex()),
		zap.Error(err))
	return Failed, err
}
