package interview

// OutputSchema names the structured-output shape requested from the
// generator. The generator adapter maps it to its own schema types.
type OutputSchema string

const (
	// SchemaChat is the envelope without a report.
	SchemaChat OutputSchema = "chat"
	// SchemaReport is the envelope with a required report.
	SchemaReport OutputSchema = "report"
)

// SchemaFor returns the output schema for stage. Summary-stage responses
// always carry a report; chat-stage responses never do.
func SchemaFor(stage Stage) OutputSchema {
	if stage == StageSummary {
		return SchemaReport
	}
	return SchemaChat
}

// BuildPrompt returns the system instructions for the current stage.
func BuildPrompt(strategy Strategy, p PromptParams) string {
	if p.Stage == StageSummary {
		return BuildSummaryPrompt(p)
	}
	return strategy.BuildPrompt(p)
}
