package packageprovider

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// The core does not parse RPM payloads or the solv format (spec.md §2, §6:
// "the core neither defines nor parses the solv binary format itself").
// It does, however, need the embedded OpenPGP signature packet out of a
// downloaded package's signature header, exactly as spec.md §4.8 describes
// ("read the signing key id from the RPM header"). rpmLeadSize/rpmLeadMagic/rpmSignatureTags below
// read just enough of the RPM binary layout to extract that one blob,
// mirroring the narrow "read one opaque attribute" posture the spec uses
// for the solv tool version.
const (
	rpmLeadSize   = 96
	rpmLeadMagic  = 0xedabeedb
	rpmHeaderMagic = 0x8eade801
)

// Signature header tags that carry a raw OpenPGP packet, in the order the
// reference implementation prefers them: the combined header+payload
// signature first, then the header-only signature.
var rpmSignatureTags = []uint32{1005, 1002, 268, 267}

// rpmIndexEntry is one 16-byte entry in an RPM header's index.
type rpmIndexEntry struct {
	Tag    uint32
	Type   uint32
	Offset uint32
	Count  uint32
}

const rpmBinType = 7

// ExtractEmbeddedSignature reads path's RPM lead and signature header and
// returns the raw bytes of the first recognized OpenPGP signature tag, or
// (nil, nil) if the package carries no signature at all (spec.md §4.4 step
// 2: "signature file is empty or missing").
func ExtractEmbeddedSignature(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ziperr.IOError{Path: path, Detail: "open package for signature extraction", Cause: err}
	}
	defer f.Close()
	return extractEmbeddedSignature(f, path)
}

func extractEmbeddedSignature(r io.Reader, path string) ([]byte, error) {
	lead := make([]byte, rpmLeadSize)
	if _, err := io.ReadFull(r, lead); err != nil {
		return nil, &ziperr.ParseError{Path: path, Detail: "short RPM lead", Cause: err}
	}
	if magic := binary.BigEndian.Uint32(lead[0:4]); magic != rpmLeadMagic {
		return nil, &ziperr.ParseError{Path: path, Detail: "not an RPM file (bad lead magic)"}
	}

	entries, store, err := readRPMHeader(r, path)
	if err != nil {
		return nil, err
	}

	for _, wantTag := range rpmSignatureTags {
		for _, e := range entries {
			if e.Tag != wantTag || e.Type != rpmBinType {
				continue
			}
			end := e.Offset + e.Count
			if uint64(end) > uint64(len(store)) {
				return nil, &ziperr.ParseError{Path: path, Detail: fmt.Sprintf("signature tag %d out of bounds", e.Tag)}
			}
			return store[e.Offset:end], nil
		}
	}
	return nil, nil
}

// readRPMHeader reads one RPM header block (8-byte magic+reserved, 4-byte
// index count, 4-byte data size, the index, then the data store) and
// returns its parsed index plus raw data store bytes.
func readRPMHeader(r io.Reader, path string) ([]rpmIndexEntry, []byte, error) {
	var head [16]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, nil, &ziperr.ParseError{Path: path, Detail: "short RPM signature header", Cause: err}
	}
	magic := binary.BigEndian.Uint32(head[0:4])
	if magic != rpmHeaderMagic {
		return nil, nil, &ziperr.ParseError{Path: path, Detail: "not an RPM signature header (bad magic)"}
	}
	nIndex := binary.BigEndian.Uint32(head[8:12])
	hSize := binary.BigEndian.Uint32(head[12:16])

	indexBytes := make([]byte, int(nIndex)*16)
	if _, err := io.ReadFull(r, indexBytes); err != nil {
		return nil, nil, &ziperr.ParseError{Path: path, Detail: "short RPM header index", Cause: err}
	}
	entries := make([]rpmIndexEntry, nIndex)
	for i := range entries {
		b := indexBytes[i*16 : i*16+16]
		entries[i] = rpmIndexEntry{
			Tag:    binary.BigEndian.Uint32(b[0:4]),
			Type:   binary.BigEndian.Uint32(b[4:8]),
			Offset: binary.BigEndian.Uint32(b[8:12]),
			Count:  binary.BigEndian.Uint32(b[12:16]),
		}
	}

	store := make([]byte, hSize)
	if _, err := io.ReadFull(r, store); err != nil {
		return nil, nil, &ziperr.ParseError{Path: path, Detail: "short RPM header data store", Cause: err}
	}
	return entries, store, nil
}
