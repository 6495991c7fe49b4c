package main

import (
	"errors"

	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// exitCodeFor maps the closed error taxonomy (spec.md §7) onto spec.md
// §6's exit codes.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}

	switch {
	case errors.Is(err, ziperr.Cancelled):
		return exitCancelled
	case errors.Is(err, ziperr.UserAbort):
		return exitSignatureRejected
	}

	var sysLocked *ziperr.SystemLockedError
	if errors.As(err, &sysLocked) {
		return exitLocked
	}

	var sigErr *ziperr.SignatureError
	if errors.As(err, &sigErr) {
		return exitSignatureRejected
	}

	var repoErr *ziperr.RepoError
	if errors.As(err, &repoErr) {
		switch repoErr.Kind {
		case ziperr.RepoNotFound, ziperr.RepoNotCached:
			return exitNotFound
		case ziperr.RepoAlreadyExists:
			return exitAlreadyExists
		case ziperr.RepoNoAlias, ziperr.RepoInvalidAlias, ziperr.RepoNoURL, ziperr.RepoUnknownType:
			return exitBadArguments
		}
	}

	var svcErr *ziperr.ServiceError
	if errors.As(err, &svcErr) {
		switch svcErr.Kind {
		case ziperr.ServiceAlreadyExists:
			return exitAlreadyExists
		case ziperr.ServiceNoAlias, ziperr.ServiceInvalidAlias, ziperr.ServiceNoURL:
			return exitBadArguments
		}
	}

	return exitGenericFailure
}
