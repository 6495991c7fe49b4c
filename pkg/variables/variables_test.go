package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandBaseValues(t *testing.T) {
	r := New(map[string]string{"releasever": "15.6", "basearch": "x86_64"})
	got := r.Expand("https://example.com/repo/$releasever/${basearch}/")
	assert.Equal(t, "https://example.com/repo/15.6/x86_64/", got)
}

func TestExpandUnknownVariableIsEmpty(t *testing.T) {
	r := New(nil)
	got := r.Expand("prefix-$nope-suffix")
	assert.Equal(t, "prefix--suffix", got)
}

func TestExpandOverridesWinOverBase(t *testing.T) {
	r := New(map[string]string{"releasever": "15.6"})
	r.Set("releasever", "16.0")
	assert.Equal(t, "16.0", r.Expand("$releasever"))
}

func TestExpandCyclicIsTruncated(t *testing.T) {
	// a -> $b -> $a: the second time "a" is encountered within this single
	// Expand call it resolves to empty instead of recursing forever.
	r := New(map[string]string{"a": "$b", "b": "$a"})
	got := r.Expand("$a")
	assert.Equal(t, "", got)
}

func TestExpandRepeatedNameWithinSingleCall(t *testing.T) {
	r := New(nil)
	r.Set("x", "literal")
	got := r.Expand("$x $x")
	assert.Equal(t, "literal ", got, "each name is expanded at most once per Expand call, so the second $x resolves to empty")
}

func TestExpandLiteralDollarSign(t *testing.T) {
	r := New(nil)
	assert.Equal(t, "$ and $$", r.Expand("$ and $$"))
}

func TestExpandUnterminatedBrace(t *testing.T) {
	r := New(map[string]string{"x": "y"})
	assert.Equal(t, "${x", r.Expand("${x"))
}

func TestPairResolvedCaches(t *testing.T) {
	r := New(map[string]string{"basearch": "aarch64"})
	p := NewPair("pkg/$basearch", r)
	assert.Equal(t, "pkg/aarch64", p.Resolved())
	assert.Equal(t, "pkg/$basearch", p.Raw)
}
