package payflow

import "context"

// StageName identifies one transformation step in the pipeline.
type StageName string

const (
	StageIntake     StageName = "intake"
	StageUnderstand StageName = "understand"
	StagePrepare    StageName = "prepare"
	StageRetrieve   StageName = "retrieve"
	StageMatch      StageName = "match"
	StageCheckpoint StageName = "checkpoint"
	StageDecision   StageName = "decision"
	StageReconcile  StageName = "reconcile"
	StageApprove    StageName = "approve"
	StagePost       StageName = "post"
	StageNotify     StageName = "notify"
	StageComplete   StageName = "complete"
)

// StageOrder is the fixed execution order of the pipeline. The checkpoint and
// decision stages only take effect when the match router diverts into the
// suspend branch; all other diversions are expressed as skipped preconditions.
var StageOrder = []StageName{
	StageIntake,
	StageUnderstand,
	StagePrepare,
	StageRetrieve,
	StageMatch,
	StageCheckpoint,
	StageDecision,
	StageReconcile,
	StageApprove,
	StagePost,
	StageNotify,
	StageComplete,
}

// StageFunc transforms a Document. The Document is consumed by value and the
// updated copy is returned; implementations must not retain a reference to
// either after returning, and must not mutate the embedded Invoice.
type StageFunc func(ctx context.Context, doc Document) (Document, error)

// Stage pairs a named transformation with its precondition. When Ready
// returns false the stage is skipped: the Document passes through unchanged
// and no log entry is written. A nil Ready means the stage always runs.
type Stage struct {
	Name  StageName
	Ready func(doc Document) bool
	Run   StageFunc
}

// run executes the stage if its precondition holds. The second return value
// reports whether the stage actually executed.
func (s Stage) run(ctx context.Context, doc Document) (Document, bool, error) {
	if s.Ready != nil && !s.Ready(doc) {
		return doc, false, nil
	}
	updated, err := s.Run(ctx, doc)
	return updated, true, err
}
