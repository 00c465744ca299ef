// Package testaccounts loads the JSON bootstrap file used to seed a
// daemon's account table for local testing, mirroring the reference
// node's state_from_file helper.
package testaccounts

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sakridge/loom/internal/wire"
)

// entry is the on-disk JSON shape: a public key as four little-endian
// uint64 limbs (as the reference implementation transmutes [u64; 4]
// into a 32-byte array) and a balance that fits in a uint32.
type entry struct {
	PubKey  [4]uint64 `json:"pubkey"`
	Balance uint32    `json:"balance"`
}

// Load reads path and decodes it into the account list FromList
// expects, reconstructing each 32-byte key from its four uint64 limbs.
func Load(path string) ([]wire.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("testaccounts.Load: %w", err)
	}

	var entries []entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("testaccounts.Load: %w", err)
	}

	accounts := make([]wire.Account, len(entries))
	for i, e := range entries {
		var key [32]byte
		for limb := 0; limb < 4; limb++ {
			binary.LittleEndian.PutUint64(key[limb*8:limb*8+8], e.PubKey[limb])
		}
		accounts[i] = wire.Account{From: key, Balance: uint64(e.Balance)}
	}
	return accounts, nil
}
