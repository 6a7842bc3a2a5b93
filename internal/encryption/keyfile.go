package encryption

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// On-disk key file layout: one subtype byte followed by the 0x48-byte
// initial key and the 0x1000-byte private key.
const keyFileSize = 1 + initialKeySize + privateKeySize

// KeyFile is one V4 private key as shipped in the system/keys directory.
// Immutable after load; shared by reference between connections.
type KeyFile struct {
	Name    string
	Subtype Subtype

	InitialKey [initialKeySize]byte
	PrivateKey [privateKeySize]byte
}

// LoadKeyFile reads a single key file.
func LoadKeyFile(path string) (*KeyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) != keyFileSize {
		return nil, fmt.Errorf("key file %s: expected %d bytes, have %d", path, keyFileSize, len(data))
	}

	key := &KeyFile{
		Name:    filepath.Base(path),
		Subtype: Subtype(data[0]),
	}
	if key.Subtype > SubtypeJSD1 {
		return nil, fmt.Errorf("key file %s: unknown subtype %d", path, data[0])
	}
	copy(key.InitialKey[:], data[1:1+initialKeySize])
	copy(key.PrivateKey[:], data[1+initialKeySize:])
	return key, nil
}

// LoadKeyPool reads every .key file under dir, sorted by name so detector
// preference is deterministic across restarts.
func LoadKeyPool(dir string) ([]*KeyFile, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.key"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var keys []*KeyFile
	for _, path := range matches {
		key, err := LoadKeyFile(path)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no key files found under %s", dir)
	}
	return keys, nil
}
