// Package keyring implements the two on-disk GPG keyrings (trusted and
// general) and the operations spec.md §4.3 names: import, delete,
// existence/trust checks, export, signature verification, and reading the
// key id off a detached signature without needing the signer's key.
package keyring

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// Ring names the two rings spec.md §4.3 requires.
type Ring int

const (
	Trusted Ring = iota
	General
)

func (r Ring) fileName() string {
	if r == Trusted {
		return "trusted.gpg"
	}
	return "general.gpg"
}

// KeyInfo is the summary view returned by enumeration, without key material.
type KeyInfo struct {
	ID          string
	Fingerprint string
	Name        string
	CreatedUnix int64
}

// KeyRing holds both on-disk rings and serializes mutations behind a single
// mutex, per spec.md §5: "the KeyRing serializes mutations with an internal
// lock; readers copy out the data they need."
type KeyRing struct {
	mu   sync.Mutex
	dir  string
	rings map[Ring]openpgp.EntityList
}

// New loads (or initializes empty) the two rings from dir.
func New(dir string) (*KeyRing, error) {
	kr := &KeyRing{dir: dir, rings: map[Ring]openpgp.EntityList{}}
	for _, ring := range []Ring{Trusted, General} {
		entities, err := loadRing(filepath.Join(dir, ring.fileName()))
		if err != nil {
			return nil, err
		}
		kr.rings[ring] = entities
	}
	return kr, nil
}

func loadRing(path string) (openpgp.EntityList, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &ziperr.IOError{Path: path, Detail: "open keyring", Cause: err}
	}
	defer f.Close()

	entities, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, &ziperr.ParseError{Path: path, Detail: "parse keyring", Cause: err}
	}
	return entities, nil
}

func (kr *KeyRing) persist(ring Ring) error {
	path := filepath.Join(kr.dir, ring.fileName())
	if err := os.MkdirAll(kr.dir, 0o755); err != nil {
		return &ziperr.IOError{Path: kr.dir, Detail: "create keyring directory", Cause: err}
	}

	tmp := path + ".new"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &ziperr.IOError{Path: tmp, Detail: "open keyring for write", Cause: err}
	}

	for _, e := range kr.rings[ring] {
		w, err := armor.Encode(f, openpgp.PublicKeyType, nil)
		if err != nil {
			f.Close()
			return &ziperr.IOError{Path: tmp, Detail: "armor encode", Cause: err}
		}
		if err := e.Serialize(w); err != nil {
			f.Close()
			return &ziperr.IOError{Path: tmp, Detail: "serialize key", Cause: err}
		}
		if err := w.Close(); err != nil {
			f.Close()
			return &ziperr.IOError{Path: tmp, Detail: "close armor writer", Cause: err}
		}
	}
	if err := f.Close(); err != nil {
		return &ziperr.IOError{Path: tmp, Detail: "close keyring file", Cause: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &ziperr.IOError{Path: path, Detail: "rename keyring into place", Cause: err}
	}
	return nil
}

// ImportKey parses keyData (armored or binary) and adds every entity found
// to ring. Importing into the trusted ring also registers the same
// entities into the general ring, per spec.md §4.3.
func (kr *KeyRing) ImportKey(keyData []byte, trusted bool) ([]KeyInfo, error) {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	entities, err := parseKeyData(keyData)
	if err != nil {
		return nil, err
	}

	target := General
	if trusted {
		target = Trusted
	}
	kr.rings[target] = mergeEntities(kr.rings[target], entities)
	if trusted {
		kr.rings[General] = mergeEntities(kr.rings[General], entities)
	}

	if err := kr.persist(target); err != nil {
		return nil, err
	}
	if trusted {
		if err := kr.persist(General); err != nil {
			return nil, err
		}
	}

	infos := make([]KeyInfo, 0, len(entities))
	for _, e := range entities {
		infos = append(infos, entityInfo(e))
	}
	slog.Info("imported key", "trusted", trusted, "count", len(infos))
	return infos, nil
}

// DeleteKey removes the entity matching id from ring.
func (kr *KeyRing) DeleteKey(id string, ring Ring) error {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	entities := kr.rings[ring]
	filtered := entities[:0]
	found := false
	for _, e := range entities {
		if keyIDString(e) == id {
			found = true
			continue
		}
		filtered = append(filtered, e)
	}
	if !found {
		return &ziperr.SignatureError{Kind: ziperr.SignatureNoKey, KeyID: id}
	}
	kr.rings[ring] = filtered
	return kr.persist(ring)
}

// PublicKeyExists reports whether id (full or subkey) is present in ring.
func (kr *KeyRing) PublicKeyExists(id string, ring Ring) bool {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	return findEntity(kr.rings[ring], id) != nil
}

// ExportKey returns the armored public key block for id from ring.
func (kr *KeyRing) ExportKey(id string, ring Ring) ([]byte, error) {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	e := findEntity(kr.rings[ring], id)
	if e == nil {
		return nil, &ziperr.SignatureError{Kind: ziperr.SignatureNoKey, KeyID: id}
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, &ziperr.IOError{Detail: "armor encode", Cause: err}
	}
	if err := e.Serialize(w); err != nil {
		return nil, &ziperr.IOError{Detail: "serialize key", Cause: err}
	}
	if err := w.Close(); err != nil {
		return nil, &ziperr.IOError{Detail: "close armor writer", Cause: err}
	}
	return buf.Bytes(), nil
}

// ReadSignatureKeyID extracts the issuer key id from a detached signature
// without needing the signer's public key.
func ReadSignatureKeyID(signature []byte) (string, error) {
	r := bytes.NewReader(signature)
	var body io.Reader = r
	if bytes.HasPrefix(bytes.TrimSpace(signature), []byte("-----BEGIN")) {
		block, err := armor.Decode(r)
		if err != nil {
			return "", &ziperr.SignatureError{Kind: ziperr.SignatureFileError, Cause: err}
		}
		body = block.Body
	}

	pktReader := packet.NewReader(body)
	for {
		pkt, err := pktReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", &ziperr.SignatureError{Kind: ziperr.SignatureFileError, Cause: err}
		}
		sig, ok := pkt.(*packet.Signature)
		if !ok {
			continue
		}
		if sig.IssuerKeyId != nil {
			return fmt.Sprintf("%016X", *sig.IssuerKeyId), nil
		}
		if sig.IssuerFingerprint != nil {
			return strings.ToUpper(hex.EncodeToString(sig.IssuerFingerprint)), nil
		}
	}
	return "", &ziperr.SignatureError{Kind: ziperr.SignatureFileError}
}

// VerifyFile verifies file's detached signature against the entities
// present in ring.
func (kr *KeyRing) VerifyFile(file io.Reader, signature []byte, ring Ring) (bool, error) {
	kr.mu.Lock()
	entities := kr.rings[ring]
	kr.mu.Unlock()

	sigReader := io.Reader(bytes.NewReader(signature))
	if bytes.HasPrefix(bytes.TrimSpace(signature), []byte("-----BEGIN")) {
		_, err := openpgp.CheckArmoredDetachedSignature(entities, file, sigReader, nil)
		if err != nil {
			return false, nil
		}
		return true, nil
	}
	_, err := openpgp.CheckDetachedSignature(entities, file, sigReader, nil)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// IsKeyTrusted reports whether id is present in the trusted ring.
func (kr *KeyRing) IsKeyTrusted(id string) bool {
	return kr.PublicKeyExists(id, Trusted)
}

// IsKeyKnown reports whether id is present in either ring.
func (kr *KeyRing) IsKeyKnown(id string) bool {
	return kr.PublicKeyExists(id, Trusted) || kr.PublicKeyExists(id, General)
}

// Keys enumerates KeyInfo for ring.
func (kr *KeyRing) Keys(ring Ring) []KeyInfo {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	out := make([]KeyInfo, 0, len(kr.rings[ring]))
	for _, e := range kr.rings[ring] {
		out = append(out, entityInfo(e))
	}
	return out
}

// RefreshTrustedFromGeneral applies the key refresh rule from spec.md §4.3:
// if a key is in the trusted ring, and the general ring has the same
// fingerprint with a strictly newer created timestamp, the trusted ring is
// updated from the general ring. Subkey-only changes are deliberately not
// treated as an update here (see DESIGN.md's Open Question note).
func (kr *KeyRing) RefreshTrustedFromGeneral(id string) (updated bool, err error) {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	trustedEntity := findEntity(kr.rings[Trusted], id)
	generalEntity := findEntity(kr.rings[General], id)
	if trustedEntity == nil || generalEntity == nil {
		return false, nil
	}
	if !generalEntity.PrimaryKey.CreationTime.After(trustedEntity.PrimaryKey.CreationTime) {
		return false, nil
	}

	for i, e := range kr.rings[Trusted] {
		if keyIDString(e) == id {
			kr.rings[Trusted][i] = generalEntity
			break
		}
	}
	if err := kr.persist(Trusted); err != nil {
		return false, err
	}
	return true, nil
}

// ProvidesKey reports whether entity e's primary key or any subkey matches id.
func ProvidesKey(e *openpgp.Entity, id string) bool {
	if keyIDString(e) == id {
		return true
	}
	for _, sk := range e.Subkeys {
		if sk.PublicKey != nil && strings.EqualFold(sk.PublicKey.KeyIdString(), id) {
			return true
		}
	}
	return false
}

func parseKeyData(keyData []byte) (openpgp.EntityList, error) {
	entities, err := openpgp.ReadKeyRing(bytes.NewReader(keyData))
	if err != nil {
		entities, err = openpgp.ReadArmoredKeyRing(bytes.NewReader(keyData))
		if err != nil {
			return nil, &ziperr.SignatureError{Kind: ziperr.SignatureFileError, Cause: err}
		}
	}
	return entities, nil
}

func mergeEntities(existing, incoming openpgp.EntityList) openpgp.EntityList {
	seen := map[string]bool{}
	for _, e := range existing {
		seen[keyIDString(e)] = true
	}
	out := existing
	for _, e := range incoming {
		if !seen[keyIDString(e)] {
			out = append(out, e)
			seen[keyIDString(e)] = true
		}
	}
	return out
}

func findEntity(entities openpgp.EntityList, id string) *openpgp.Entity {
	for _, e := range entities {
		if ProvidesKey(e, id) {
			return e
		}
	}
	return nil
}

func keyIDString(e *openpgp.Entity) string {
	if e.PrimaryKey == nil {
		return ""
	}
	return e.PrimaryKey.KeyIdString()
}

func entityInfo(e *openpgp.Entity) KeyInfo {
	name := ""
	for _, ident := range e.Identities {
		name = ident.Name
		break
	}
	return KeyInfo{
		ID:          keyIDString(e),
		Fingerprint: strings.ToUpper(hex.EncodeToString(e.PrimaryKey.Fingerprint)),
		Name:        name,
		CreatedUnix: e.PrimaryKey.CreationTime.Unix(),
	}
}
