package dataset

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
)

const idTokenBytes = 8

// nextIDLocked mints an opaque dataset id from the store's upload counter
// and a random base58 token. The counter guarantees per-process uniqueness;
// the token keeps ids unguessable across restarts. Caller holds s.mu.
func (s *Store) nextIDLocked() string {
	for {
		token := make([]byte, idTokenBytes)
		if _, err := rand.Read(token); err != nil {
			binary.BigEndian.PutUint64(token, uint64(time.Now().UnixNano())^s.seq)
		}
		id := fmt.Sprintf("ds-%d-%s", s.seq, base58.Encode(token))
		if _, exists := s.byID[id]; !exists {
			return id
		}
	}
}
