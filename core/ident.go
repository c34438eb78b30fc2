package core

// core/ident.go — 16-byte identifiers. Entity ids are random; attribute ids
// are a deterministic 128-bit hash of the "entityName/fieldName" path so the
// same schema derives the same wire attribute everywhere.

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// ID is an opaque 16-byte identifier for entities and attributes.
type ID [16]byte

// attrDomain separates the two xxhash streams that make up an attribute id.
var attrDomain = []byte{0x01}

// NewEntityID returns 16 bytes from a cryptographically strong source.
func NewEntityID() ID {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		panic("ident: entity id entropy unavailable: " + err.Error())
	}
	return id
}

// AttributeID derives the identifier of entityName/fieldName. Equal inputs
// always produce equal outputs; the two halves are independent 64-bit xxhash
// digests over distinct domains.
func AttributeID(entityName, fieldName string) ID {
	path := []byte(entityName + "/" + fieldName)
	var id ID
	lo := xxhash.Sum64(path)
	hi := xxhash.Sum64(append(attrDomain, path...))
	for i := 0; i < 8; i++ {
		id[i] = byte(hi >> (56 - 8*i))
		id[8+i] = byte(lo >> (56 - 8*i))
	}
	return id
}

// Hex renders the identifier as a 32-character lowercase hexadecimal string.
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the identifier is all zero bytes.
func (id ID) IsZero() bool {
	return id == ID{}
}

// ParseID decodes a 32-character hexadecimal identifier. Any other length or
// a non-hex character is rejected.
func ParseID(s string) (ID, error) {
	var id ID
	if len(s) != 32 {
		return id, Errf(ErrValidation, "identifier must be 32 hex characters, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, WrapErr(ErrValidation, err, "identifier is not hexadecimal")
	}
	copy(id[:], b)
	return id, nil
}
