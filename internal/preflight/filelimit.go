package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the open-file limit below which watching large
// workspaces is likely to fail.
const MinFileDescriptors = 1024

// CheckFileDescriptors reports the soft RLIMIT_NOFILE. A low limit only
// affects watch, so it warns rather than fails.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{Name: "file_descriptors"}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to read limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, MinFileDescriptors)
	if rLimit.Cur < MinFileDescriptors {
		result.Status = StatusWarn
		result.Details = "Run 'ulimit -n 10240' before 'amanidx watch'"
		return result
	}
	result.Status = StatusPass
	return result
}
