package badger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/lorekeeper/storage"
)

// Key prefixes for different data types
const (
	pendingPrefix      = "pendq:"
	pendingOrderPrefix = "pendo:"
	pendingSeq         = "pendseq"
	itemPrefix         = "kitem:"
	rawVectorPrefix    = "rawvec:"
)

var errStopScan = errors.New("stop scan")

func storageClosed() error {
	return storage.ErrStorageClosed
}

// makePendingKey generates the primary key for a queued request.
func makePendingKey(id string) []byte {
	return []byte(pendingPrefix + id)
}

// makePendingOrderKey generates the FIFO index key.
// Format: prefix:timestamp:seq
func makePendingOrderKey(enqueuedAt time.Time, seq uint64) []byte {
	prefixBytes := []byte(pendingOrderPrefix)
	buf := make([]byte, len(prefixBytes)+16) // 8 bytes for timestamp + 8 bytes for seq
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(enqueuedAt.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// makeItemKey generates a key for a knowledge item by ID.
func makeItemKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%d", itemPrefix, id))
}

// parseItemKey extracts the id from an item key.
func parseItemKey(key []byte) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(string(key), itemPrefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad item key %q", storage.ErrSerializationFailed, key)
	}
	return id, nil
}

// makeRawVectorKey generates a key for a fallback vector.
func makeRawVectorKey(key string) []byte {
	return []byte(rawVectorPrefix + key)
}
