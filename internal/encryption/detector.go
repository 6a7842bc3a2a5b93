package encryption

import (
	"bytes"
	"fmt"
)

// MultiKeyDetector is the inbound cipher for a V4 connection whose private
// key isn't known up front. On the first decrypt it trial-decrypts the
// ciphertext under every candidate key (in peek mode, so candidates stay
// pristine) and commits to the first one that produces the expected first
// command bytes. Every later call delegates to the committed cipher.
type MultiKeyDetector struct {
	possibleKeys  []*KeyFile
	expectedFirst []byte
	seed          []byte

	activeKey   *KeyFile
	activeCrypt *V4Cipher
}

func NewMultiKeyDetector(possibleKeys []*KeyFile, expectedFirst, seed []byte) *MultiKeyDetector {
	return &MultiKeyDetector{
		possibleKeys:  possibleKeys,
		expectedFirst: expectedFirst,
		seed:          seed,
	}
}

func (d *MultiKeyDetector) BlockSize() int {
	if d.activeCrypt != nil {
		return d.activeCrypt.BlockSize()
	}
	return v4BlockSize
}

func (d *MultiKeyDetector) Encrypt(data []byte, advance bool) error {
	if d.activeCrypt == nil {
		return ErrPeerNotReady
	}
	return d.activeCrypt.Encrypt(data, advance)
}

func (d *MultiKeyDetector) Decrypt(data []byte, advance bool) error {
	if d.activeCrypt == nil {
		if len(data) != len(d.expectedFirst) {
			return fmt.Errorf("encryption: initial decryption size %d does not match expected first data size %d",
				len(data), len(d.expectedFirst))
		}

		for _, key := range d.possibleKeys {
			crypt, err := NewV4Cipher(key, d.seed)
			if err != nil {
				return err
			}
			test := make([]byte, len(data))
			copy(test, data)
			if err := crypt.Decrypt(test, false); err != nil {
				return err
			}
			if bytes.Equal(test, d.expectedFirst) {
				d.activeKey = key
				d.activeCrypt = crypt
				break
			}
		}
		if d.activeCrypt == nil {
			return ErrNoMatchingKey
		}
	}
	return d.activeCrypt.Decrypt(data, advance)
}

// ActiveKey returns the committed key, or nil before detection.
func (d *MultiKeyDetector) ActiveKey() *KeyFile { return d.activeKey }

// Seed returns the handshake seed the detector was built with.
func (d *MultiKeyDetector) Seed() []byte { return d.seed }

// MultiKeyImitator is the outbound counterpart of a MultiKeyDetector. It
// lazily builds its own cipher from whichever key the detector committed
// to. JSD1 clients use a single seed for both directions (with independent
// state), so for that subtype the imitator can reuse the detector's seed
// instead of its own.
type MultiKeyImitator struct {
	detector            *MultiKeyDetector
	seed                []byte
	jsd1UseDetectorSeed bool

	activeCrypt *V4Cipher
}

func NewMultiKeyImitator(detector *MultiKeyDetector, seed []byte, jsd1UseDetectorSeed bool) *MultiKeyImitator {
	return &MultiKeyImitator{
		detector:            detector,
		seed:                seed,
		jsd1UseDetectorSeed: jsd1UseDetectorSeed,
	}
}

func (m *MultiKeyImitator) ensureCrypt() (*V4Cipher, error) {
	if m.activeCrypt != nil {
		return m.activeCrypt, nil
	}
	key := m.detector.ActiveKey()
	if key == nil {
		return nil, ErrPeerNotReady
	}

	seed := m.seed
	if key.Subtype == SubtypeJSD1 && m.jsd1UseDetectorSeed {
		seed = m.detector.Seed()
	}
	crypt, err := NewV4Cipher(key, seed)
	if err != nil {
		return nil, err
	}
	m.activeCrypt = crypt
	return crypt, nil
}

func (m *MultiKeyImitator) BlockSize() int {
	if m.activeCrypt != nil {
		return m.activeCrypt.BlockSize()
	}
	return v4BlockSize
}

func (m *MultiKeyImitator) Encrypt(data []byte, advance bool) error {
	crypt, err := m.ensureCrypt()
	if err != nil {
		return err
	}
	return crypt.Encrypt(data, advance)
}

func (m *MultiKeyImitator) Decrypt(data []byte, advance bool) error {
	crypt, err := m.ensureCrypt()
	if err != nil {
		return err
	}
	return crypt.Decrypt(data, advance)
}
