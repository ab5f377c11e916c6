package ir

// Version constants for the wire schema and shell.
const (
	// SchemaVersion is the binary envelope schema version shared with the
	// decision core. Any change to field order or tags must bump it.
	SchemaVersion = 1

	// ShellVersion is the watch-history shell version.
	ShellVersion = "0.1.0"
)
