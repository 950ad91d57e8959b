package ir

// Version constants for the wire format and the tool.
const (
	// WireVersion is the bulk endpoint payload version.
	WireVersion = "1"

	// ToolVersion is the gridsync release version.
	ToolVersion = "0.1.0"
)
