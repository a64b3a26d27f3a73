// Package crypto keeps the project crypto functions together for easy review. It's used to seal and open the
// encrypted configuration blob, and is derived substantially from https://github.com/gtank/cryptopasta.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"
)

// Key is a 256-bit AES key.
type Key [32]byte

// DefaultSalt is used when the configuration doesn't supply one.
var DefaultSalt = []byte("dtracker-config")

// minPassphrase is the shortest passphrase DeriveKey accepts.
const minPassphrase = 8

// scrypt cost parameters, selected by benchmark to use 64MiB of memory and > 0.5 seconds per derivation.
var scryptN, scryptR, scryptP = 65536, 8, 4

// DeriveKey stretches a passphrase into a Key with scrypt. A nil salt selects DefaultSalt.
func DeriveKey(passphrase string, salt []byte) (*Key, error) {
	if len(passphrase) < minPassphrase {
		return nil, errors.New("passphrase is too short")
	}
	if salt == nil {
		salt = DefaultSalt
	}
	raw, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, len(Key{}))
	if err != nil {
		return nil, errors.Wrap(err, "could not derive key")
	}
	var k Key
	copy(k[:], raw)
	return &k, nil
}

func (k *Key) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(k[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts and authenticates plaintext with AES-GCM, returning base64(nonce || ciphertext).
func (k *Key) Seal(plaintext []byte) (string, error) {
	aead, err := k.gcm()
	if err != nil {
		return "", errors.Wrap(err, "could not initialise cipher")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "could not generate nonce")
	}
	return base64.StdEncoding.EncodeToString(aead.Seal(nonce, nonce, plaintext, nil)), nil
}

// Open reverses Seal. Any tampering with the sealed string is reported as an error.
func (k *Key) Open(sealed string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, errors.Wrap(err, "could not decode ciphertext as base64 string")
	}
	aead, err := k.gcm()
	if err != nil {
		return nil, errors.Wrap(err, "could not initialise cipher")
	}
	if len(data) < aead.NonceSize() {
		return nil, errors.New("malformed ciphertext")
	}
	plaintext, err := aead.Open(nil, data[:aead.NonceSize()], data[aead.NonceSize():], nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not decrypt ciphertext")
	}
	return plaintext, nil
}
