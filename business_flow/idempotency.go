package businessflow

import (
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

const idempotencyDomain = "waba.materialized_recipient.v1"

// RecipientIdempotencyKey hashes the frozen content of one recipient.
// Every field is length-prefixed so distinct inputs never collide by concatenation.
func RecipientIdempotencyKey(campaignID uint, phone string, templateID uint, headerParams, params, buttonURLs []string) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		// only fails for an oversized key
		panic(err)
	}
	writeField(h, idempotencyDomain)
	writeField(h, strconv.FormatUint(uint64(campaignID), 10))
	writeField(h, phone)
	writeField(h, strconv.FormatUint(uint64(templateID), 10))
	writeList(h, headerParams)
	writeList(h, params)
	writeList(h, buttonURLs)
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}

func writeList(h hash.Hash, items []string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(items)))
	h.Write(n[:])
	for _, s := range items {
		writeField(h, s)
	}
}
