package packageprovider

import "errors"

// ErrDeltaUnavailable is returned by a DeltaApplier when reconstruction
// cannot proceed, signalling the caller to fall back to a full download
// (spec.md §4.8 step 3: "bypassed if any precondition fails").
var ErrDeltaUnavailable = errors.New("delta reconstruction unavailable")

// DeltaCandidate names one delta RPM that could reconstruct the package
// being provided, and the installed edition it is a patch against.
type DeltaCandidate struct {
	URL             string
	BaseEdition     string // version-release-arch of the installed package it patches
	TargetChecksum  string // expected checksum of the reconstructed full package
}

// DeltaApplier reconstructs a full package from an installed base edition
// plus a delta candidate. It models Applydeltarpm.cc's quick-check and
// apply step as a pluggable interface (spec.md §9 Supplemented Features):
// the actual `applydeltarpm` binary is an external helper, out of scope
// per spec.md §1's "running external helper processes other than through
// a narrow command interface".
type DeltaApplier interface {
	// Available reports whether the delta-apply helper can be invoked at
	// all (e.g. the binary exists on PATH). A false result short-circuits
	// delta reconstruction without touching any candidate.
	Available() bool

	// QuickCheck validates that a candidate's base edition is actually
	// installed and the delta file looks structurally sound, without
	// doing the (expensive) full reconstruction.
	QuickCheck(candidate DeltaCandidate) error

	// Apply reconstructs the full package at destPath from candidate's
	// delta and the installed base edition.
	Apply(candidate DeltaCandidate, destPath string) error
}

// NoopDeltaApplier reports delta reconstruction as unavailable, per
// spec.md's narrow-command-interface non-goal: providing a real
// DeltaApplier means shelling out to `applydeltarpm`, which every caller
// wires in for itself rather than this module assuming a specific helper
// is installed.
type NoopDeltaApplier struct{}

func (NoopDeltaApplier) Available() bool { return false }

func (NoopDeltaApplier) QuickCheck(DeltaCandidate) error { return ErrDeltaUnavailable }

func (NoopDeltaApplier) Apply(DeltaCandidate, string) error { return ErrDeltaUnavailable }

// DeltaConfig controls whether PackageProvider.Provide attempts delta
// reconstruction at all (spec.md §4.8 step 3's preconditions).
type DeltaConfig struct {
	// Enabled permits delta reconstruction when the repo's scheme is a
	// downloading scheme (http/https/ftp), per spec.md.
	Enabled bool
	// Always forces delta reconstruction attempts even for non-downloading
	// schemes (spec.md's "always override").
	Always bool
}

// schemeIsDownloading reports whether scheme requires a network fetch, as
// opposed to a local/plaindir source the delta shortcut has nothing to
// save on.
func schemeIsDownloading(scheme string) bool {
	switch scheme {
	case "http", "https", "ftp":
		return true
	default:
		return false
	}
}

// selectDeltaCandidate picks the first candidate whose base edition passes
// the applier's quick-check, per spec.md §4.8 step 3: "at least one delta
// candidate matches an installed base edition ... and quick-check passes".
func selectDeltaCandidate(applier DeltaApplier, candidates []DeltaCandidate) (DeltaCandidate, bool) {
	for _, c := range candidates {
		if applier.QuickCheck(c) == nil {
			return c, true
		}
	}
	return DeltaCandidate{}, false
}

// canAttemptDelta implements spec.md §4.8 step 3's precondition
// conjunction, independent of which candidate (if any) is eventually
// selected.
func canAttemptDelta(cfg DeltaConfig, scheme string, applier DeltaApplier, candidates []DeltaCandidate) bool {
	if !cfg.Enabled {
		return false
	}
	if !cfg.Always && !schemeIsDownloading(scheme) {
		return false
	}
	if applier == nil || !applier.Available() {
		return false
	}
	return len(candidates) > 0
}
