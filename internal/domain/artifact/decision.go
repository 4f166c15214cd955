package artifact

import "strings"

// Reason explains why an update was or was not chosen.
type Reason string

const (
	// ReasonRemoteUnavailable means there is no target to update to.
	ReasonRemoteUnavailable Reason = "remote_unavailable"
	// ReasonNoLocalVersion means nothing usable is installed.
	ReasonNoLocalVersion Reason = "no_local_version"
	// ReasonVersionMismatch means the local and remote versions differ.
	ReasonVersionMismatch Reason = "version_mismatch"
	// ReasonFileNameChanged means the version matches but the artifact file name does not.
	ReasonFileNameChanged Reason = "file_name_changed"
	// ReasonUpToDate means the local artifact already matches the target.
	ReasonUpToDate Reason = "up_to_date"
)

// Decision is the outcome of comparing the local artifact against the remote target.
type Decision struct {
	// NeedsUpdate reports whether the artifact must be replaced.
	NeedsUpdate bool
	// Reason is the rule that produced the decision.
	Reason Reason
}

// Decide compares the local version and file name against the remote target.
// Rules are applied in order and the first match wins. Comparisons ignore case.
func Decide(localVersion string, remote *RemoteVersion, currentFileName string) Decision {
	switch {
	case remote == nil:
		return Decision{NeedsUpdate: false, Reason: ReasonRemoteUnavailable}
	case localVersion == "":
		return Decision{NeedsUpdate: true, Reason: ReasonNoLocalVersion}
	case !strings.EqualFold(localVersion, remote.Version):
		return Decision{NeedsUpdate: true, Reason: ReasonVersionMismatch}
	case !strings.EqualFold(currentFileName, remote.FileName):
		return Decision{NeedsUpdate: true, Reason: ReasonFileNameChanged}
	default:
		return Decision{NeedsUpdate: false, Reason: ReasonUpToDate}
	}
}
