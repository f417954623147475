package watcher

import "time"

// Operation is the kind of change observed for a path.
type Operation int

const (
	// OpCreate is a new file.
	OpCreate Operation = iota
	// OpModify is a write to an existing file.
	OpModify
	// OpDelete is a removed or renamed-away file.
	OpDelete
	// OpIgnoreChange is a modified .gitignore. Receivers should reconcile
	// the whole workspace, since files may have become ignored or unignored.
	OpIgnoreChange
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpIgnoreChange:
		return "IGNORE_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change.
type FileEvent struct {
	// URI is slash separated and relative to the workspace root.
	URI       string
	Operation Operation
	Timestamp time.Time
}
