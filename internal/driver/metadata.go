package driver

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/vs-ude/fyrbuild/internal/mono"
)

// MetadataModuleName is the name of the module embedding the crate metadata.
const MetadataModuleName = "crate.metadata"

// metadataMagic precedes the compressed metadata. The last byte is the format version.
var metadataMagic = []byte{'f', 'y', 'r', 'm', 0, 0, 0, 1}

// EncodeMetadata compresses the metadata for embedding into an object.
func EncodeMetadata(metadata []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(metadata, append([]byte(nil), metadataMagic...)), nil
}

// DecodeMetadata reverses EncodeMetadata.
func DecodeMetadata(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, metadataMagic) {
		return nil, errors.New("not a compressed metadata blob")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	metadata, err := dec.DecodeAll(data[len(metadataMagic):], nil)
	if err != nil {
		return nil, errors.Wrap(err, "corrupt metadata")
	}
	return metadata, nil
}

// MetadataSymbol returns the exported symbol holding the metadata of a crate.
// The hash keeps symbols of crates with the same sanitized name apart.
func MetadataSymbol(crateName string) string {
	sanitized := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return '_'
	}, crateName)
	sum := sha256.Sum256([]byte(crateName))
	return "fyr_metadata_" + sanitized + "_" + hex.EncodeToString(sum[:])[:8]
}

func metadataItems(p *mono.Program) ([]mono.Item, error) {
	data, err := EncodeMetadata(p.Metadata)
	if err != nil {
		return nil, err
	}
	return []mono.Item{&mono.Static{Symbol: MetadataSymbol(p.CrateName), Data: data, Align: 1}}, nil
}
