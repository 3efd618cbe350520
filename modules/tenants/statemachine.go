package tenants

import (
	"context"

	"github.com/dmitrymomot/crewplane/pkg/statemachine"
)

// Fire events driving the lifecycle machine. These are distinct from the
// recorded EventType values: one fire event may be recorded under
// different event types depending on who triggered it.
const (
	fireActivate        statemachine.StringEvent = "activate"
	fireFailProvision   statemachine.StringEvent = "fail_provisioning"
	fireRetryProvision  statemachine.StringEvent = "retry_provisioning"
	fireSuspend         statemachine.StringEvent = "suspend"
	fireResume          statemachine.StringEvent = "resume"
	fireCancel          statemachine.StringEvent = "cancel"
	fireMarkForDeletion statemachine.StringEvent = "mark_for_deletion"
	fireDelete          statemachine.StringEvent = "delete"
)

func state(s Status) statemachine.StringState { return statemachine.StringState(s) }

var lifecycleTransitions = []statemachine.TransitionDef{
	{From: state(StatusProvisioning), To: state(StatusActive), Event: fireActivate},
	{From: state(StatusProvisioning), To: state(StatusProvisioningFailed), Event: fireFailProvision},
	{From: state(StatusProvisioningFailed), To: state(StatusProvisioning), Event: fireRetryProvision},
	{From: state(StatusActive), To: state(StatusSuspended), Event: fireSuspend},
	{From: state(StatusSuspended), To: state(StatusActive), Event: fireResume},
	{From: state(StatusActive), To: state(StatusCancelled), Event: fireCancel},
	{From: state(StatusSuspended), To: state(StatusCancelled), Event: fireCancel},
	{From: state(StatusCancelled), To: state(StatusPendingDeletion), Event: fireMarkForDeletion},
	{From: state(StatusPendingDeletion), To: state(StatusDeleted), Event: fireDelete},
}

// transition resolves the next status for a fire event from the current
// status, or ErrInvalidTransition when the table has no edge for the pair.
// Machines are cheap per-call constructs so the current state always comes
// straight from the row being changed.
func transition(ctx context.Context, current Status, event statemachine.StringEvent) (Status, error) {
	sm := statemachine.MustNew(state(current), statemachine.WithTransitions(lifecycleTransitions))
	if err := sm.Fire(ctx, event, nil); err != nil {
		if statemachine.IsNoTransitionAvailableError(err) || statemachine.IsTransitionRejectedError(err) {
			return current, ErrInvalidTransition
		}
		return current, err
	}
	return Status(sm.Current().Name()), nil
}
