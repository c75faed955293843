// Package signing decodes FAIR signing keys and verifies detached ed25519
// signatures over downloaded artifacts.
package signing

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// multibaseBase58BTC is the multibase prefix for base58btc.
const multibaseBase58BTC = 'z'

// ed25519PubMulticodec is the varint multicodec prefix for ed25519-pub.
var ed25519PubMulticodec = []byte{0xed, 0x01}

var (
	ErrUnsupportedMultibase = errors.New("unsupported multibase encoding")
	ErrUnsupportedKeyType   = errors.New("unsupported key type")
	ErrInvalidKeyLength     = errors.New("invalid ed25519 public key length")
)

// DecodeSigningKey decodes a publicKeyMultibase value into an ed25519 public
// key. Only base58btc encoded ed25519-pub keys are accepted.
func DecodeSigningKey(multibase string) (ed25519.PublicKey, error) {
	if multibase == "" || multibase[0] != multibaseBase58BTC {
		return nil, fmt.Errorf("%w: want base58btc (z) prefix", ErrUnsupportedMultibase)
	}
	raw, err := base58.Decode(multibase[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMultibase, err)
	}
	if len(raw) < len(ed25519PubMulticodec) || raw[0] != ed25519PubMulticodec[0] || raw[1] != ed25519PubMulticodec[1] {
		return nil, fmt.Errorf("%w: not an ed25519-pub multicodec", ErrUnsupportedKeyType)
	}
	key := raw[len(ed25519PubMulticodec):]
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeyLength, len(key))
	}
	return ed25519.PublicKey(key), nil
}

// EncodeSigningKey is the inverse of DecodeSigningKey.
func EncodeSigningKey(pub ed25519.PublicKey) string {
	buf := make([]byte, 0, len(ed25519PubMulticodec)+len(pub))
	buf = append(buf, ed25519PubMulticodec...)
	buf = append(buf, pub...)
	return string(multibaseBase58BTC) + base58.Encode(buf)
}
