// Package signature implements the signature verification workflow from
// spec.md §4.4: resolving a file's signing key against the two-ring
// keyring, falling back to user prompts and repository-provided key
// fetches. Workflow.Verify is a plain synchronous call; every prompt goes
// through the Reporter interface.
package signature

import (
	"bytes"
	"io"
	"log/slog"

	"github.com/opensuse-zypp/zyppcore/pkg/keyring"
	"github.com/opensuse-zypp/zyppcore/pkg/repo"
	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// UserChoice is the closed set of answers a Reporter prompt may return.
type UserChoice int

const (
	DontTrust UserChoice = iota
	TrustTemporarily
	TrustAndImport
)

// ProblemChoice is the closed set of answers to a generic/specific problem
// prompt (verification failure, unknown key).
type ProblemChoice int

const (
	Retry ProblemChoice = iota
	Ignore
	Abort
)

// VerifyFileContext carries the state the workflow mutates across its
// steps, mirroring spec.md §4.4's "Every branch updates VerifyFileContext
// fields" requirement.
type VerifyFileContext struct {
	File          io.ReadSeeker
	Signature     []byte
	Repo          *repo.RepoInfo // nil when verifying outside a repo context
	CandidateKeys []string       // keys named by the caller as "buddies" candidates

	SignatureID        string
	SignatureIDTrusted bool
	FileValidated      bool
	FileAccepted       bool
}

// reset clears the per-run result fields, step 1 of the algorithm.
func (c *VerifyFileContext) reset() {
	c.SignatureID = ""
	c.SignatureIDTrusted = false
	c.FileValidated = false
	c.FileAccepted = false
}

// Reporter factors every user-facing prompt the workflow needs out of the
// pipeline so the same code drives both executors: a synchronous Reporter
// blocks the calling goroutine, an asynchronous one suspends the
// dispatcher and resumes it when the user responds.
type Reporter interface {
	AcceptUnsigned(r *repo.RepoInfo) bool
	AskUserToAcceptKey(key keyring.KeyInfo, r *repo.RepoInfo) UserChoice
	AskUserToAcceptVerificationFailed(key keyring.KeyInfo, r *repo.RepoInfo) ProblemChoice
	AskUserToAcceptUnknownKey(keyID string, r *repo.RepoInfo) ProblemChoice
	ReportAutoImportKey(keys []keyring.KeyInfo, r *repo.RepoInfo)
}

// KeyProvider fetches a key by id from a repository's configured
// gpgKeyUrls or its on-disk pubkey cache, for step 5's "provide and import
// from repository" fallback. Implemented by pkg/repomanager's
// RepoKeyProvider in terms of pkg/provider.Registry; kept as an interface
// here to avoid a signature->repomanager import cycle.
type KeyProvider interface {
	FetchKey(repoInfo *repo.RepoInfo, keyID string) ([]byte, error)
}

// Workflow runs the signature verification algorithm against a KeyRing.
type Workflow struct {
	Keys     *keyring.KeyRing
	Reporter Reporter
	Keys2    KeyProvider // repository key-fetch fallback; may be nil
}

// New builds a Workflow.
func New(keys *keyring.KeyRing, reporter Reporter, keyProvider KeyProvider) *Workflow {
	return &Workflow{Keys: keys, Reporter: reporter, Keys2: keyProvider}
}

// Verify runs the full algorithm and returns whether the file is accepted.
func (w *Workflow) Verify(ctx *VerifyFileContext) (bool, error) {
	ctx.reset()

	if len(ctx.Signature) == 0 {
		accepted := w.Reporter.AcceptUnsigned(ctx.Repo)
		ctx.FileAccepted = accepted
		return accepted, nil
	}

	keyID, err := keyring.ReadSignatureKeyID(ctx.Signature)
	if err != nil {
		return false, err
	}
	ctx.SignatureID = keyID

	buddies := w.computeBuddies(ctx, keyID)

	found, verifyRing, resolveErr := w.resolveSigningKey(ctx, keyID)
	if resolveErr != nil {
		return false, resolveErr
	}

	if found {
		ok, verifyErr := w.verify(ctx, verifyRing)
		if verifyErr != nil {
			return false, verifyErr
		}
		if ok {
			ctx.FileValidated = true
			if len(buddies) > 0 {
				generalKeys := w.Keys.Keys(keyring.General)
				infos := make([]keyring.KeyInfo, 0, len(buddies))
				for _, id := range buddies {
					for _, ki := range generalKeys {
						if ki.ID == id {
							infos = append(infos, ki)
						}
					}
				}
				w.Reporter.ReportAutoImportKey(infos, ctx.Repo)
				for _, id := range buddies {
					if key, err := w.Keys.ExportKey(id, keyring.General); err == nil {
						if _, err := w.Keys.ImportKey(key, true); err != nil {
							slog.Warn("failed to auto-import buddy key", "key_id", id, "error", err)
						}
					}
				}
			}
			ctx.FileAccepted = true
			return true, nil
		}

		info := lookupKeyInfo(w.Keys, keyID)
		choice := w.Reporter.AskUserToAcceptVerificationFailed(info, ctx.Repo)
		ctx.FileAccepted = choice != Abort && choice != Retry
		if choice == Abort {
			return false, ziperr.UserAbort
		}
		return ctx.FileAccepted, nil
	}

	choice := w.Reporter.AskUserToAcceptUnknownKey(keyID, ctx.Repo)
	ctx.FileAccepted = choice == Ignore
	if choice == Abort {
		return false, ziperr.UserAbort
	}
	return ctx.FileAccepted, nil
}

// computeBuddies implements step 4: keys named by the caller that are
// safe-id, not already trusted, present in the general ring, and not the
// signing key itself.
func (w *Workflow) computeBuddies(ctx *VerifyFileContext, signingKeyID string) []string {
	var buddies []string
	for _, id := range ctx.CandidateKeys {
		if !isSafeID(id) {
			continue
		}
		if id == signingKeyID {
			continue
		}
		if w.Keys.IsKeyTrusted(id) {
			continue
		}
		if !w.Keys.PublicKeyExists(id, keyring.General) {
			continue
		}
		buddies = append(buddies, id)
	}
	return buddies
}

// resolveSigningKey implements step 5: locate a key to verify against, and
// report which ring holds it. ctx.SignatureIDTrusted records whether the
// *trusted* ring vouches for the key (permanently, or for this run via
// TrustTemporarily) as opposed to a merely-known general-ring key.
func (w *Workflow) resolveSigningKey(ctx *VerifyFileContext, keyID string) (bool, keyring.Ring, error) {
	if w.Keys.IsKeyTrusted(keyID) {
		if _, err := w.Keys.RefreshTrustedFromGeneral(keyID); err != nil {
			slog.Warn("key refresh from general ring failed", "key_id", keyID, "error", err)
		}
		ctx.SignatureIDTrusted = true
		return true, keyring.Trusted, nil
	}

	if w.Keys.PublicKeyExists(keyID, keyring.General) {
		info := lookupKeyInfo(w.Keys, keyID)
		switch w.Reporter.AskUserToAcceptKey(info, ctx.Repo) {
		case TrustAndImport:
			key, err := w.Keys.ExportKey(keyID, keyring.General)
			if err != nil {
				return false, keyring.General, err
			}
			if _, err := w.Keys.ImportKey(key, true); err != nil {
				return false, keyring.General, err
			}
			ctx.SignatureIDTrusted = true
			return true, keyring.Trusted, nil
		case TrustTemporarily:
			ctx.SignatureIDTrusted = true
			return true, keyring.General, nil
		default:
			return false, keyring.General, nil
		}
	}

	if ctx.Repo != nil && w.Keys2 != nil {
		keyData, err := w.Keys2.FetchKey(ctx.Repo, keyID)
		if err != nil || len(keyData) == 0 {
			return false, keyring.General, nil
		}
		if _, err := w.Keys.ImportKey(keyData, false); err != nil {
			return false, keyring.General, err
		}
		info := lookupKeyInfo(w.Keys, keyID)
		switch w.Reporter.AskUserToAcceptKey(info, ctx.Repo) {
		case TrustAndImport:
			if _, err := w.Keys.ImportKey(keyData, true); err != nil {
				return false, keyring.General, err
			}
			ctx.SignatureIDTrusted = true
			return true, keyring.Trusted, nil
		case TrustTemporarily:
			ctx.SignatureIDTrusted = true
			return true, keyring.General, nil
		default:
			return false, keyring.General, nil
		}
	}

	return false, keyring.General, nil
}

func (w *Workflow) verify(ctx *VerifyFileContext, ring keyring.Ring) (bool, error) {
	if _, err := ctx.File.Seek(0, io.SeekStart); err != nil {
		return false, &ziperr.IOError{Detail: "seek signed file to start", Cause: err}
	}
	return w.Keys.VerifyFile(ctx.File, ctx.Signature, ring)
}

func lookupKeyInfo(kr *keyring.KeyRing, id string) keyring.KeyInfo {
	for _, ring := range []keyring.Ring{keyring.Trusted, keyring.General} {
		for _, ki := range kr.Keys(ring) {
			if ki.ID == id {
				return ki
			}
		}
	}
	return keyring.KeyInfo{ID: id}
}

// isSafeID rejects short key ids (spec.md §3: "short ids are rejected").
func isSafeID(id string) bool {
	return len(id) >= 16 && !bytes.ContainsAny([]byte(id), " \t")
}
