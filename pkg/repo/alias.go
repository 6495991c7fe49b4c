package repo

import (
	"strings"

	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// ValidateAlias enforces spec.md §3/§8's identity invariant: an alias must
// be non-empty and must not start with ".". Uniqueness is the manager's
// responsibility since it requires the full known-repos/known-services set.
func ValidateAlias(alias string) error {
	if alias == "" {
		return &ziperr.RepoError{Kind: ziperr.RepoNoAlias}
	}
	if strings.HasPrefix(alias, ".") {
		return &ziperr.RepoError{Alias: alias, Kind: ziperr.RepoInvalidAlias}
	}
	return nil
}

// ValidateServiceAlias is ValidateAlias's ServiceError-flavoured twin.
func ValidateServiceAlias(alias string) error {
	if alias == "" {
		return &ziperr.ServiceError{Kind: ziperr.ServiceNoAlias}
	}
	if strings.HasPrefix(alias, ".") {
		return &ziperr.ServiceError{Alias: alias, Kind: ziperr.ServiceInvalidAlias}
	}
	return nil
}
