package assistant

// ToolCall carries one proposed call surfaced by the upstream stream
// parser. Status is the upstream's own progress marker and is informational
// only; the pipeline decides confirmation from its registry, never from
// upstream flags.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Status    string
}
