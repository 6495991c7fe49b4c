package repo

// TriState models a tri-state configuration flag (gpgcheck, repo-gpgcheck,
// pkg-gpgcheck, validRepoSignature) as an explicit three-armed enum rather
// than *bool or a bool mixed with a sentinel. The Indeterminate arm means
// "unset, consult config for a default" and is never silently coerced to a
// boolean.
type TriState int

const (
	Indeterminate TriState = iota
	Yes
	No
)

// String renders the persisted symlink-target spelling used throughout
// spec.md §3/§6 ("true"|"false"|"indeterminate").
func (t TriState) String() string {
	switch t {
	case Yes:
		return "true"
	case No:
		return "false"
	default:
		return "indeterminate"
	}
}

// Bool resolves the tri-state against a default, the way an Indeterminate
// gpgcheck flag consults the process-wide config default.
func (t TriState) Bool(def bool) bool {
	switch t {
	case Yes:
		return true
	case No:
		return false
	default:
		return def
	}
}

// ParseTriState parses the persisted spelling, and also accepts the INI
// "0"/"1" convention used by gpgcheck=/repo_gpgcheck=/pkg_gpgcheck= keys.
func ParseTriState(s string) TriState {
	switch s {
	case "true", "1", "yes":
		return Yes
	case "false", "0", "no":
		return No
	default:
		return Indeterminate
	}
}
