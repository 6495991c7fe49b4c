// Package repo holds the value types describing a repository or service:
// RepoInfo, ServiceInfo, and the INI encoding spec.md §6 defines for them.
//
// RepoInfo and ServiceInfo are modeled as plain owned values (copy-on-write
// by Go's normal struct-copy semantics) rather than reference-counted
// handles; callers that need to share one keep it behind a pointer, per
// spec.md §9's "copy-on-write value types" design note.
package repo

import (
	"time"

	"github.com/opensuse-zypp/zyppcore/pkg/variables"
)

// NoPriority is the "unset" sentinel for Priority, resolving to the lowest
// possible priority (spec.md §3: "noPriority = MAX").
const NoPriority = int(^uint(0) >> 1)

// DefaultPriority is applied when a repo file omits priority=.
const DefaultPriority = 99

// MinPriority and MaxPriority bound the valid, explicitly-set range.
const (
	MinPriority = 1
	MaxPriority = 99
)

// Base holds the identity and enablement fields shared by RepoInfo and
// ServiceInfo (spec.md §3: "ServiceInfo extends a common base").
type Base struct {
	Alias       string
	Name        string
	Enabled     bool
	Autorefresh bool
}

// RepoInfo is everything known about one repository.
type RepoInfo struct {
	Base

	Priority            int
	Type                Type
	Path                string
	Service             string
	TargetDistribution  string

	BaseURLs     []variables.Pair
	MirrorListURL variables.Pair
	MirrorKind   MirrorKind
	GPGKeyURLs   []variables.Pair

	GPGCheck           TriState
	RepoGPGCheck       TriState
	PkgGPGCheck        TriState
	ValidRepoSignature TriState

	KeepPackages bool

	MetadataPath   string
	PackagesPath   string
	SolvCachePath  string

	// contentKeywords is lazily populated from repomd/content by the
	// repomanager on first access; nil means "not loaded yet", distinct
	// from an empty-but-loaded slice.
	contentKeywords []string
	contentLoaded   bool
}

// New returns a RepoInfo with the defaults spec.md §3 specifies: priority
// 99, tri-state flags Indeterminate, enabled+autorefresh true (the common
// .repo file default).
func New(alias string) RepoInfo {
	return RepoInfo{
		Base:     Base{Alias: alias, Enabled: true, Autorefresh: true},
		Priority: DefaultPriority,
		Type:     TypeNone,
	}
}

// ResolvePriority returns Priority, substituting DefaultPriority for an
// unset (zero) value and leaving NoPriority as-is.
func (r RepoInfo) ResolvePriority() int {
	if r.Priority == 0 {
		return DefaultPriority
	}
	return r.Priority
}

// EffectivePaths computes MetadataPath/SolvCachePath/PackagesPath, expanding
// the %AUTO% sentinel when Path uses it and the explicit fields are unset.
func (r *RepoInfo) EffectivePaths() (metadataPath, solvCachePath, packagesPath string) {
	if r.MetadataPath != "" || r.SolvCachePath != "" || r.PackagesPath != "" {
		return r.MetadataPath, r.SolvCachePath, r.PackagesPath
	}
	return ExpandAutoPath(r.Path)
}

// ContentKeywords returns the lazily-loaded keyword set, and whether it has
// been loaded at all. The repomanager is responsible for calling
// SetContentKeywords once it has parsed repomd/content.
func (r RepoInfo) ContentKeywords() ([]string, bool) {
	return r.contentKeywords, r.contentLoaded
}

// SetContentKeywords installs the lazily-loaded keyword set.
func (r *RepoInfo) SetContentKeywords(keywords []string) {
	r.contentKeywords = keywords
	r.contentLoaded = true
}

// Validate checks the invariants spec.md §8 requires of every RepoInfo
// known to a manager, except uniqueness (the manager's responsibility,
// since it needs the full known-repos set).
func (r RepoInfo) Validate() error {
	if err := ValidateAlias(r.Alias); err != nil {
		return err
	}
	return nil
}

// RepoState is one service's last-known state for a single owned repo
// (spec.md §3 ServiceInfo.repoStates), used to restore per-repo settings
// when a service transitions disabled->enabled.
type RepoState struct {
	Enabled     bool
	Autorefresh bool
	Priority    int
}

// ServiceInfo is everything known about one service (a source of
// repositories, as opposed to a single repository).
type ServiceInfo struct {
	Base

	URL  string
	Type string // "" (plain), "plugin"

	TTL          time.Duration
	LastRefresh  time.Time

	// ReposToEnable/ReposToDisable are one-shot: a service refresh applies
	// them to the named repo aliases and then clears the set, per
	// spec.md §3.
	ReposToEnable  map[string]bool
	ReposToDisable map[string]bool

	RepoStates map[string]RepoState
}

// NewService returns a ServiceInfo with defaults matching RepoInfo's.
func NewService(alias string) ServiceInfo {
	return ServiceInfo{
		Base:           Base{Alias: alias, Enabled: true, Autorefresh: true},
		ReposToEnable:  map[string]bool{},
		ReposToDisable: map[string]bool{},
		RepoStates:     map[string]RepoState{},
	}
}

// IsPlugin reports whether this service is a plugin service, which
// spec.md §4.6 says is immutable.
func (s ServiceInfo) IsPlugin() bool {
	return s.Type == "plugin"
}

// Validate checks the invariants spec.md §8 requires, except uniqueness.
func (s ServiceInfo) Validate() error {
	return ValidateServiceAlias(s.Alias)
}
