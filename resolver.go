package payflow

// Capability is an abstract operation category that resolves to a concrete
// tool identifier. The set is closed; truly dynamic names fall back to
// UnknownTool rather than failing, so stage execution proceeds and the
// anomaly surfaces through normal output inspection.
type Capability string

const (
	CapabilityStorage        Capability = "storage"
	CapabilityTextExtraction Capability = "text-extraction"
	CapabilityEnrichment     Capability = "vendor-enrichment"
	CapabilityERPConnector   Capability = "erp-connector"
	CapabilityDatabase       Capability = "database"
	CapabilityEmail          Capability = "email"
)

// UnknownTool is the sentinel returned for unregistered capabilities.
const UnknownTool = "unknown_tool"

// CapabilityResolver maps a capability to a concrete tool identifier. The
// optional context map allows context-sensitive selection; implementations
// must be pure functions of (capability, context).
type CapabilityResolver interface {
	Resolve(capability Capability, context map[string]string) string
}

// defaultTools are the built-in tool identifiers per capability.
var defaultTools = map[Capability]string{
	CapabilityStorage:        "object_store",
	CapabilityTextExtraction: "tesseract",
	CapabilityEnrichment:     "vendor_db",
	CapabilityERPConnector:   "mock_erp",
	CapabilityDatabase:       "sqlite",
	CapabilityEmail:          "sendgrid",
}

// StaticResolver resolves capabilities from a fixed table, falling back to
// the built-in defaults and then to UnknownTool.
type StaticResolver struct {
	tools map[Capability]string
}

// NewStaticResolver returns a resolver using the built-in defaults overlaid
// with the given overrides. A nil map selects the defaults unchanged.
func NewStaticResolver(overrides map[Capability]string) *StaticResolver {
	tools := make(map[Capability]string, len(defaultTools)+len(overrides))
	for capability, tool := range defaultTools {
		tools[capability] = tool
	}
	for capability, tool := range overrides {
		tools[capability] = tool
	}
	return &StaticResolver{tools: tools}
}

// Resolve returns the tool identifier for a capability. Unknown capabilities
// resolve to UnknownTool.
func (r *StaticResolver) Resolve(capability Capability, _ map[string]string) string {
	if tool, ok := r.tools[capability]; ok {
		return tool
	}
	return UnknownTool
}
