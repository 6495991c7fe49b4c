package keyring

import (
	"bytes"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEntity(t *testing.T, name string) *openpgp.Entity {
	t.Helper()
	e, err := openpgp.NewEntity(name, "test key", name+"@example.com", &packet.Config{
		RSABits: 1024,
	})
	require.NoError(t, err)
	return e
}

func armoredPublicKey(t *testing.T, e *openpgp.Entity) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, e.Serialize(w))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestImportKeyIntoTrustedAlsoRegistersGeneral(t *testing.T) {
	dir := t.TempDir()
	kr, err := New(dir)
	require.NoError(t, err)

	e := newTestEntity(t, "packman")
	infos, err := kr.ImportKey(armoredPublicKey(t, e), true)
	require.NoError(t, err)
	require.Len(t, infos, 1)

	id := infos[0].ID
	assert.True(t, kr.IsKeyTrusted(id))
	assert.True(t, kr.IsKeyKnown(id))
	assert.True(t, kr.PublicKeyExists(id, General))
}

func TestImportKeyIntoGeneralOnlyIsNotTrusted(t *testing.T) {
	dir := t.TempDir()
	kr, err := New(dir)
	require.NoError(t, err)

	e := newTestEntity(t, "untrusted-vendor")
	infos, err := kr.ImportKey(armoredPublicKey(t, e), false)
	require.NoError(t, err)

	id := infos[0].ID
	assert.False(t, kr.IsKeyTrusted(id))
	assert.True(t, kr.IsKeyKnown(id))
}

func TestDeleteKeyRemovesFromRing(t *testing.T) {
	dir := t.TempDir()
	kr, err := New(dir)
	require.NoError(t, err)

	e := newTestEntity(t, "to-delete")
	infos, err := kr.ImportKey(armoredPublicKey(t, e), true)
	require.NoError(t, err)
	id := infos[0].ID

	require.NoError(t, kr.DeleteKey(id, Trusted))
	assert.False(t, kr.IsKeyTrusted(id))
	assert.True(t, kr.IsKeyKnown(id)) // still present in general

	err = kr.DeleteKey(id, Trusted)
	assert.Error(t, err)
}

func TestExportKeyRoundTrips(t *testing.T) {
	dir := t.TempDir()
	kr, err := New(dir)
	require.NoError(t, err)

	e := newTestEntity(t, "exportable")
	infos, err := kr.ImportKey(armoredPublicKey(t, e), true)
	require.NoError(t, err)

	exported, err := kr.ExportKey(infos[0].ID, Trusted)
	require.NoError(t, err)
	assert.Contains(t, string(exported), "BEGIN PGP PUBLIC KEY BLOCK")
}

func TestVerifyFileAcceptsValidSignature(t *testing.T) {
	dir := t.TempDir()
	kr, err := New(dir)
	require.NoError(t, err)

	e := newTestEntity(t, "signer")
	_, err = kr.ImportKey(armoredPublicKey(t, e), true)
	require.NoError(t, err)

	content := []byte("repomd.xml contents")
	var sigBuf bytes.Buffer
	require.NoError(t, openpgp.DetachSign(&sigBuf, e, bytes.NewReader(content), nil))

	ok, err := kr.VerifyFile(bytes.NewReader(content), sigBuf.Bytes(), Trusted)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyFileRejectsTamperedContent(t *testing.T) {
	dir := t.TempDir()
	kr, err := New(dir)
	require.NoError(t, err)

	e := newTestEntity(t, "signer2")
	_, err = kr.ImportKey(armoredPublicKey(t, e), true)
	require.NoError(t, err)

	content := []byte("repomd.xml contents")
	var sigBuf bytes.Buffer
	require.NoError(t, openpgp.DetachSign(&sigBuf, e, bytes.NewReader(content), nil))

	ok, err := kr.VerifyFile(bytes.NewReader([]byte("tampered contents")), sigBuf.Bytes(), Trusted)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadSignatureKeyID(t *testing.T) {
	e := newTestEntity(t, "keyid-signer")
	content := []byte("hello")
	var sigBuf bytes.Buffer
	require.NoError(t, openpgp.DetachSign(&sigBuf, e, bytes.NewReader(content), nil))

	id, err := ReadSignatureKeyID(sigBuf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, e.PrimaryKey.KeyIdString(), id)
}

func TestRefreshTrustedFromGeneralSkipsIdenticalTimestamp(t *testing.T) {
	dir := t.TempDir()
	kr, err := New(dir)
	require.NoError(t, err)

	e := newTestEntity(t, "refreshable")
	infos, err := kr.ImportKey(armoredPublicKey(t, e), true)
	require.NoError(t, err)

	// Same entity re-imported into general: CreationTime is identical, so no
	// update should occur (strictly-newer timestamp required).
	updated, err := kr.RefreshTrustedFromGeneral(infos[0].ID)
	require.NoError(t, err)
	assert.False(t, updated)
}
