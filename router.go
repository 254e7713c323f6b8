package payflow

// Routing decisions are pure functions of the Document with small enumerated
// outcome types, keeping the transition table declarative and testable
// independently of stage bodies.

// MatchRoute is the outcome of the routing decision after the match stage.
type MatchRoute int

const (
	// MatchRouteContinue proceeds directly to reconciliation.
	MatchRouteContinue MatchRoute = iota

	// MatchRouteCheckpoint diverts into the checkpoint/suspend branch.
	MatchRouteCheckpoint
)

func (r MatchRoute) String() string {
	if r == MatchRouteCheckpoint {
		return "checkpoint"
	}
	return "continue"
}

// RouteAfterMatch diverts if and only if the two-way match failed.
func RouteAfterMatch(doc Document) MatchRoute {
	if doc.Outputs.Match != nil && doc.Outputs.Match.Result == MatchResultFailed {
		return MatchRouteCheckpoint
	}
	return MatchRouteContinue
}

// WaitRoute is the outcome of the decision-wait routing decision.
type WaitRoute int

const (
	// WaitRouteSkip passes straight through; no checkpoint was created.
	WaitRouteSkip WaitRoute = iota

	// WaitRouteWait holds at the decision point until a decision is recorded.
	WaitRouteWait
)

func (r WaitRoute) String() string {
	if r == WaitRouteWait {
		return "wait"
	}
	return "skip"
}

// RouteDecisionWait waits whenever a checkpoint output exists.
func RouteDecisionWait(doc Document) WaitRoute {
	if doc.Outputs.Checkpoint != nil {
		return WaitRouteWait
	}
	return WaitRouteSkip
}

// ReconcileRoute is the outcome of the reconciliation routing decision.
type ReconcileRoute int

const (
	// ReconcileRouteSkip leaves the productive tail of the pipeline as no-ops.
	ReconcileRouteSkip ReconcileRoute = iota

	// ReconcileRouteRun proceeds with reconciliation.
	ReconcileRouteRun
)

func (r ReconcileRoute) String() string {
	if r == ReconcileRouteRun {
		return "reconcile"
	}
	return "skip"
}

// RouteReconcile proceeds if the match already succeeded or a reviewer
// accepted the suspended workflow; otherwise reconciliation and everything
// downstream of it is skipped.
func RouteReconcile(doc Document) ReconcileRoute {
	if doc.Outputs.Match != nil && doc.Outputs.Match.Result == MatchResultMatched {
		return ReconcileRouteRun
	}
	if doc.Outputs.Decision != nil && doc.Outputs.Decision.Decision == ReviewDecisionAccept {
		return ReconcileRouteRun
	}
	return ReconcileRouteSkip
}
