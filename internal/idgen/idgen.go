// Package idgen generates record IDs and engine-side transfer hashes.
package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// New returns a random UUID string.
func New() string {
	return uuid.NewString()
}

// WithPrefix returns prefix + 24 random hex chars (e.g. "alrt_", "bt_").
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// TxHash returns a 0x-prefixed 32-byte hash for transfers whose caller did
// not supply one. It has the same shape as an on-chain transaction hash so
// both kinds share the transfers.tx_hash column.
func TxHash() string {
	id := uuid.New()
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UnixNano()))
	return crypto.Keccak256Hash(id[:], ts[:]).Hex()
}
