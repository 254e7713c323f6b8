package payflow

import (
	"encoding/json"
	"fmt"
	"time"

	"go.jetify.com/typeid"
)

// NewWorkflowID returns a new prefixed unique id for a workflow Document.
func NewWorkflowID() string {
	id, err := typeid.WithPrefix("wf")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// AuditLogEntry is one record in a Document's append-only execution log.
type AuditLogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Stage     StageName      `json:"stage"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
}

// StageOutputs holds one optional slot per stage. A slot transitions from nil
// to populated exactly once and never changes value afterward.
type StageOutputs struct {
	Intake     *IntakeOutput     `json:"intake,omitempty"`
	Understand *UnderstandOutput `json:"understand,omitempty"`
	Prepare    *PrepareOutput    `json:"prepare,omitempty"`
	Retrieve   *RetrieveOutput   `json:"retrieve,omitempty"`
	Match      *MatchOutput      `json:"match,omitempty"`
	Checkpoint *CheckpointOutput `json:"checkpoint,omitempty"`
	Decision   *DecisionOutput   `json:"decision,omitempty"`
	Reconcile  *ReconcileOutput  `json:"reconcile,omitempty"`
	Approve    *ApproveOutput    `json:"approve,omitempty"`
	Posting    *PostingOutput    `json:"posting,omitempty"`
	Notify     *NotifyOutput     `json:"notify,omitempty"`
	Complete   *CompleteOutput   `json:"complete,omitempty"`
}

// Document is the state record threaded through the pipeline. Stages consume
// a Document by value and return an updated copy; neither a Stage nor a caller
// should retain a reference to a prior version. The struct is fully JSON
// serializable so a suspended Document can round-trip through the checkpoint
// store without loss.
type Document struct {
	WorkflowID     string            `json:"workflow_id"`
	CurrentStage   StageName         `json:"current_stage"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Invoice        Invoice           `json:"input_record"`
	Outputs        StageOutputs      `json:"stage_outputs"`
	ExecutionLog   []AuditLogEntry   `json:"execution_log"`
	ToolSelections map[string]string `json:"tool_selections"`
}

// NewDocument validates the invoice and returns a fresh Document positioned at
// the intake stage with an empty log and no tool selections.
func NewDocument(invoice Invoice) (Document, error) {
	if err := invoice.Validate(); err != nil {
		return Document{}, err
	}
	created := now()
	return Document{
		WorkflowID:     NewWorkflowID(),
		CurrentStage:   StageIntake,
		CreatedAt:      created,
		UpdatedAt:      created,
		Invoice:        invoice,
		ToolSelections: map[string]string{},
	}, nil
}

// Clone returns a deep copy of the Document produced by a full JSON
// serialize/deserialize cycle, the same representation the checkpoint store
// persists.
func (d Document) Clone() (Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return Document{}, fmt.Errorf("failed to marshal document: %w", err)
	}
	var clone Document
	if err := json.Unmarshal(data, &clone); err != nil {
		return Document{}, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return clone, nil
}

// VendorName returns the normalized vendor name when preparation has run,
// falling back to the raw invoice name.
func (d Document) VendorName() string {
	if d.Outputs.Prepare != nil {
		return d.Outputs.Prepare.Vendor.NormalizedName
	}
	return d.Invoice.VendorName
}

// appendLog appends one execution log entry and refreshes UpdatedAt. Every
// stage that actually executes calls this exactly once; skipped stages do not.
func (d *Document) appendLog(stage StageName, action string, details map[string]any) {
	ts := now()
	d.ExecutionLog = append(d.ExecutionLog, AuditLogEntry{
		Timestamp: ts,
		Stage:     stage,
		Action:    action,
		Details:   details,
	})
	d.UpdatedAt = ts
}

// selectTool records the tool resolved for a logical operation. Keys are
// operation names, not capability names. An existing selection is never
// overwritten with a different value.
func (d *Document) selectTool(operation, tool string) string {
	if existing, ok := d.ToolSelections[operation]; ok {
		return existing
	}
	if d.ToolSelections == nil {
		d.ToolSelections = map[string]string{}
	}
	d.ToolSelections[operation] = tool
	return tool
}

// now returns the current UTC time. UTC conversion also strips the monotonic
// clock reading so timestamps compare equal after a JSON round-trip.
func now() time.Time {
	return time.Now().UTC()
}
