package reports

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opensuse-zypp/zyppcore/pkg/keyring"
	"github.com/opensuse-zypp/zyppcore/pkg/packageprovider"
	"github.com/opensuse-zypp/zyppcore/pkg/repo"
	"github.com/opensuse-zypp/zyppcore/pkg/signature"
)

func TestCLIReporterAcceptUnsignedParsesYes(t *testing.T) {
	r := NewCLIReporter(strings.NewReader("y\n"), &bytes.Buffer{})
	info := repo.New("x")
	assert.True(t, r.AcceptUnsigned(&info))
}

func TestCLIReporterAskUserToAcceptKeyImport(t *testing.T) {
	r := NewCLIReporter(strings.NewReader("import\n"), &bytes.Buffer{})
	info := repo.New("x")
	choice := r.AskUserToAcceptKey(keyring.KeyInfo{ID: "ABCD"}, &info)
	assert.Equal(t, signature.TrustAndImport, choice)
}

func TestCLIReporterAskProblemDefaultsToRetry(t *testing.T) {
	r := NewCLIReporter(strings.NewReader("\n"), &bytes.Buffer{})
	info := repo.New("x")
	choice := r.AskUserToAcceptVerificationFailed(keyring.KeyInfo{ID: "ABCD"}, &info)
	assert.Equal(t, signature.Retry, choice)
}

func TestCLIReporterAskRetryRetrievalDefaultsYes(t *testing.T) {
	r := NewCLIReporter(strings.NewReader("\n"), &bytes.Buffer{})
	assert.True(t, r.AskRetryRetrieval(packageprovider.PackageItem{URL: "https://x/y.rpm"}, assertErr{}))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestNonInteractiveReporterFollowsPolicy(t *testing.T) {
	policy := AutoPolicy{AcceptUnsignedRepos: true, ImportNewKeys: true, IgnoreVerifyFailure: false}
	r := NewNonInteractiveReporter(policy, nil)
	info := repo.New("x")

	assert.True(t, r.AcceptUnsigned(&info))
	assert.Equal(t, signature.TrustAndImport, r.AskUserToAcceptKey(keyring.KeyInfo{ID: "A"}, &info))
	assert.Equal(t, signature.Abort, r.AskUserToAcceptVerificationFailed(keyring.KeyInfo{ID: "A"}, &info))
	assert.Equal(t, signature.Abort, r.AskUserToAcceptUnknownKey("A", &info))
}

func TestNonInteractiveReporterChecksumMismatchGraceWindow(t *testing.T) {
	r := NewNonInteractiveReporter(DefaultAutoPolicy(), nil)
	key := "expected:got"
	assert.False(t, r.AcceptChecksumMismatchOnce(key))
	assert.True(t, r.AcceptChecksumMismatchOnce(key))
}
