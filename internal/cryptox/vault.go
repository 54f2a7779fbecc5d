// Package cryptox implements the voiceprint vault: authenticated symmetric
// encryption of embedding vectors at rest.
//
// A sealed voiceprint is a CBOR map {v, alg, n, ct} where ct is the AES-GCM
// ciphertext with its tag appended. The envelope carries everything needed
// to open it, so blobs written at any time decrypt with the same key.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/fxamacker/cbor/v2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	envelopeVersion = 1
	envelopeAlg     = "A256GCM"
)

// additionalData binds ciphertexts to their purpose.
var additionalData = []byte("voicemfa/voiceprint/v1")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cryptox: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("cryptox: CBOR decoder initialization failed: " + err.Error())
	}
}

type envelope struct {
	Version    uint8  `cbor:"v"`
	Alg        string `cbor:"alg"`
	Nonce      []byte `cbor:"n"`
	Ciphertext []byte `cbor:"ct"`
}

// Vault seals and opens voiceprint vectors. It is safe for concurrent use.
type Vault struct {
	aead cipher.AEAD
}

// NewVault builds a Vault from a 32-byte key. Any other length is a
// configuration error.
func NewVault(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: vault key must be %d bytes, got %d", common.ErrConfig, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfig, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfig, err)
	}
	return &Vault{aead: aead}, nil
}

// NewVaultFromHex decodes a hex key and calls NewVault.
func NewVaultFromHex(keyHex string) (*Vault, error) {
	if keyHex == "" {
		return nil, fmt.Errorf("%w: vault key is not set", common.ErrConfig)
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: vault key is not valid hex", common.ErrConfig)
	}
	defer common.WipeByteArray(key)
	return NewVault(key)
}

// GenerateKeyHex returns a fresh random vault key, hex encoded.
func GenerateKeyHex() string {
	return hex.EncodeToString(common.GenerateRandByteArray(KeySize))
}

// Encrypt seals vec under a fresh random nonce.
func (v *Vault) Encrypt(vec []float32) ([]byte, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty voiceprint", common.ErrValidation)
	}

	plaintext := encodeVector(vec)
	defer common.WipeByteArray(plaintext)

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	env := envelope{
		Version:    envelopeVersion,
		Alg:        envelopeAlg,
		Nonce:      nonce,
		Ciphertext: v.aead.Seal(nil, nonce, plaintext, additionalData),
	}
	return encMode.Marshal(env)
}

// Decrypt opens a sealed voiceprint. Any malformed, re-encoded or tampered
// blob yields common.ErrIntegrity and no data.
func (v *Vault) Decrypt(blob []byte) ([]float32, error) {
	var env envelope
	if err := decMode.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope", common.ErrIntegrity)
	}

	// Only the canonical encoding is accepted.
	canonical, err := encMode.Marshal(env)
	if err != nil || !bytes.Equal(canonical, blob) {
		return nil, fmt.Errorf("%w: non-canonical envelope", common.ErrIntegrity)
	}

	if env.Version != envelopeVersion || env.Alg != envelopeAlg {
		return nil, fmt.Errorf("%w: unsupported envelope", common.ErrIntegrity)
	}
	if len(env.Nonce) != v.aead.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce", common.ErrIntegrity)
	}

	plaintext, err := v.aead.Open(nil, env.Nonce, env.Ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", common.ErrIntegrity)
	}
	defer common.WipeByteArray(plaintext)

	vec, ok := decodeVector(plaintext)
	if !ok {
		return nil, fmt.Errorf("%w: bad payload", common.ErrIntegrity)
	}
	return vec, nil
}

func encodeVector(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func decodeVector(b []byte) ([]float32, bool) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, true
}
