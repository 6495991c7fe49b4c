// Package reports adapts spec.md §4.4/§4.8's typed user prompts onto the
// teacher's pkg/cli output primitives (progress bar, formatter), giving
// pkg/signature.Reporter and pkg/packageprovider.OuterReporter a concrete
// interactive implementation plus a scripted/non-interactive one for
// unattended runs (spec.md §4.9: "user interaction is factored behind a
// Reporter interface").
package reports

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/opensuse-zypp/zyppcore/pkg/cli"
	"github.com/opensuse-zypp/zyppcore/pkg/keyring"
	"github.com/opensuse-zypp/zyppcore/pkg/packageprovider"
	"github.com/opensuse-zypp/zyppcore/pkg/repo"
	"github.com/opensuse-zypp/zyppcore/pkg/signature"
)

// CLIReporter drives spec.md's prompts over a terminal: every question is
// written to Out and the answer read from In. It implements both
// signature.Reporter and packageprovider.OuterReporter so one instance
// serves the whole provisioning pipeline.
type CLIReporter struct {
	In       io.Reader
	Out      io.Writer
	Progress cli.ProgressReporter

	mu      sync.Mutex
	scanner *bufio.Scanner
}

// NewCLIReporter builds a CLIReporter over in/out, with a progress bar
// rendered to out.
func NewCLIReporter(in io.Reader, out io.Writer) *CLIReporter {
	return &CLIReporter{In: in, Out: out, Progress: cli.NewProgressReporter(out)}
}

func (r *CLIReporter) readLine() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(r.In)
	}
	if !r.scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(r.scanner.Text())
}

func (r *CLIReporter) ask(prompt string) string {
	fmt.Fprint(r.Out, prompt)
	return r.readLine()
}

// AcceptUnsigned implements signature.Reporter.
func (r *CLIReporter) AcceptUnsigned(repoInfo *repo.RepoInfo) bool {
	answer := r.ask(fmt.Sprintf("Repository %q is not signed. Accept unsigned? [y/N]: ", repoAlias(repoInfo)))
	return isYes(answer)
}

// AskUserToAcceptKey implements signature.Reporter.
func (r *CLIReporter) AskUserToAcceptKey(key keyring.KeyInfo, repoInfo *repo.RepoInfo) signature.UserChoice {
	answer := r.ask(fmt.Sprintf(
		"New repository signing key for %q: %s (%s)\n  (t)rust temporarily, (i)mport permanently, (n)o: ",
		repoAlias(repoInfo), key.ID, key.Name))
	switch strings.ToLower(answer) {
	case "i", "import":
		return signature.TrustAndImport
	case "t", "trust":
		return signature.TrustTemporarily
	default:
		return signature.DontTrust
	}
}

// AskUserToAcceptVerificationFailed implements signature.Reporter.
func (r *CLIReporter) AskUserToAcceptVerificationFailed(key keyring.KeyInfo, repoInfo *repo.RepoInfo) signature.ProblemChoice {
	return r.askProblem(fmt.Sprintf("Signature verification failed for %q (key %s).", repoAlias(repoInfo), key.ID))
}

// AskUserToAcceptUnknownKey implements signature.Reporter.
func (r *CLIReporter) AskUserToAcceptUnknownKey(keyID string, repoInfo *repo.RepoInfo) signature.ProblemChoice {
	return r.askProblem(fmt.Sprintf("File signed with unknown key %s for %q.", keyID, repoAlias(repoInfo)))
}

// ReportAutoImportKey implements signature.Reporter.
func (r *CLIReporter) ReportAutoImportKey(keys []keyring.KeyInfo, repoInfo *repo.RepoInfo) {
	if len(keys) == 0 {
		return
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.ID
	}
	fmt.Fprintf(r.Out, "Auto-importing trusted keys for %q: %s\n", repoAlias(repoInfo), strings.Join(names, ", "))
}

// AskRetryRetrieval implements packageprovider.OuterReporter.
func (r *CLIReporter) AskRetryRetrieval(item packageprovider.PackageItem, err error) bool {
	answer := r.ask(fmt.Sprintf("Failed to retrieve %s: %v. Retry? [Y/n]: ", item.URL, err))
	return answer == "" || isYes(answer)
}

func (r *CLIReporter) askProblem(message string) signature.ProblemChoice {
	answer := r.ask(message + "\n  (r)etry, (i)gnore (accept insecure), (a)bort: ")
	switch strings.ToLower(answer) {
	case "i", "ignore":
		return signature.Ignore
	case "a", "abort":
		return signature.Abort
	default:
		return signature.Retry
	}
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "y" || s == "yes"
}

func repoAlias(r *repo.RepoInfo) string {
	if r == nil {
		return "(no repository)"
	}
	return r.Alias
}

// AutoPolicy configures NonInteractiveReporter's scripted answers for
// unattended runs (spec.md §4.9's async executor has no human to block
// on; callers that want "accept everything" or "reject everything"
// batch behavior use this instead of CLIReporter).
type AutoPolicy struct {
	AcceptUnsignedRepos bool
	ImportNewKeys       bool
	IgnoreVerifyFailure bool
	RetryRetrieval      bool

	// ChecksumMismatchGrace is how long an identical checksum-mismatch
	// exception pair is auto-accepted after the first acceptance, per
	// spec.md §8 scenario 5 ("subsequent identical mismatches within 12
	// hours are auto-accepted").
	ChecksumMismatchGrace time.Duration
}

// DefaultAutoPolicy matches the reference implementation's conservative
// unattended defaults: nothing untrusted is accepted silently.
func DefaultAutoPolicy() AutoPolicy {
	return AutoPolicy{ChecksumMismatchGrace: 12 * time.Hour}
}

// NonInteractiveReporter answers every prompt from a fixed AutoPolicy,
// logging the decision instead of blocking on input. It implements the
// same two interfaces as CLIReporter.
type NonInteractiveReporter struct {
	Policy AutoPolicy
	Out    io.Writer

	mu        sync.Mutex
	acceptedAt map[string]time.Time
}

// NewNonInteractiveReporter builds a NonInteractiveReporter over policy,
// logging decisions to out (nil defaults to io.Discard).
func NewNonInteractiveReporter(policy AutoPolicy, out io.Writer) *NonInteractiveReporter {
	if out == nil {
		out = io.Discard
	}
	return &NonInteractiveReporter{Policy: policy, Out: out, acceptedAt: map[string]time.Time{}}
}

func (r *NonInteractiveReporter) log(format string, args ...interface{}) {
	fmt.Fprintf(r.Out, format+"\n", args...)
}

func (r *NonInteractiveReporter) AcceptUnsigned(repoInfo *repo.RepoInfo) bool {
	r.log("repository %q is unsigned, auto-policy accept=%v", repoAlias(repoInfo), r.Policy.AcceptUnsignedRepos)
	return r.Policy.AcceptUnsignedRepos
}

func (r *NonInteractiveReporter) AskUserToAcceptKey(key keyring.KeyInfo, repoInfo *repo.RepoInfo) signature.UserChoice {
	if r.Policy.ImportNewKeys {
		r.log("auto-importing new key %s for %q", key.ID, repoAlias(repoInfo))
		return signature.TrustAndImport
	}
	return signature.DontTrust
}

func (r *NonInteractiveReporter) AskUserToAcceptVerificationFailed(key keyring.KeyInfo, repoInfo *repo.RepoInfo) signature.ProblemChoice {
	if r.Policy.IgnoreVerifyFailure {
		return signature.Ignore
	}
	return signature.Abort
}

func (r *NonInteractiveReporter) AskUserToAcceptUnknownKey(keyID string, repoInfo *repo.RepoInfo) signature.ProblemChoice {
	return signature.Abort
}

func (r *NonInteractiveReporter) ReportAutoImportKey(keys []keyring.KeyInfo, repoInfo *repo.RepoInfo) {
	if len(keys) == 0 {
		return
	}
	r.log("auto-imported %d buddy key(s) for %q", len(keys), repoAlias(repoInfo))
}

// AskRetryRetrieval implements packageprovider.OuterReporter.
func (r *NonInteractiveReporter) AskRetryRetrieval(item packageprovider.PackageItem, err error) bool {
	r.log("retrieval of %s failed: %v (retry=%v)", item.URL, err, r.Policy.RetryRetrieval)
	return r.Policy.RetryRetrieval
}

// AcceptChecksumMismatchOnce implements spec.md §8 scenario 5's 12-hour
// auto-accept grace window for a repeated, identical checksum mismatch.
// key should uniquely identify the (expected, got) exception pair, e.g.
// "expected:got".
func (r *NonInteractiveReporter) AcceptChecksumMismatchOnce(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.acceptedAt[key]; ok && time.Since(t) < r.Policy.ChecksumMismatchGrace {
		return true
	}
	r.acceptedAt[key] = time.Now()
	return false
}

var (
	_ signature.Reporter                = (*CLIReporter)(nil)
	_ packageprovider.OuterReporter      = (*CLIReporter)(nil)
	_ signature.Reporter                = (*NonInteractiveReporter)(nil)
	_ packageprovider.OuterReporter      = (*NonInteractiveReporter)(nil)
)
