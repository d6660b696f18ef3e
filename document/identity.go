package document

import (
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// NaturalKeyPrefix starts every rendered natural-key string.
const NaturalKeyPrefix = "NK#"

// idByteLength is the document id hash width: 224 bits, 56 hex characters.
const idByteLength = 28

var validID = regexp.MustCompile(`^[0-9a-f]{56}$`)

// schoolPathRewrite maps the renamed "school" identity path back to "schoolId"
// so that subclass and superclass expressions of the same identity hash alike.
var schoolPathRewrite = strings.NewReplacer(".school=", ".schoolId=")

// NaturalKeyString renders an ordered document identity to its diagnostic
// natural-key string, e.g. "NK#schoolId=123" or
// "NK#classPeriodName=z1#school.schoolId=24".
func NaturalKeyString(identity DocumentIdentity) string {
	var sb strings.Builder
	sb.WriteString("NK")
	for _, element := range identity {
		sb.WriteByte('#')
		sb.WriteString(element.Name)
		sb.WriteByte('=')
		sb.WriteString(element.Value)
	}
	return sb.String()
}

// IDFromNaturalKey returns the document id for a rendered natural-key string:
// the SHAKE-128 hash of the string with 224 bits of output, as lowercase hex.
// Ids are persisted and compared across operations, so the byte-for-byte
// derivation must never change.
func IDFromNaturalKey(naturalKey string) string {
	nk := schoolPathRewrite.Replace(naturalKey)

	hash := sha3.NewShake128()
	hash.Write([]byte(nk))
	out := make([]byte, idByteLength)
	hash.Read(out)
	return hex.EncodeToString(out)
}

// IDForDocument returns the document id for the given document metadata,
// derived from the document's own natural key. A document belonging to a
// superclass collection additionally has a membership id derived from its
// superclass identity; that id addresses the membership item only, never the
// primary item.
func IDForDocument(info DocumentInfo) string {
	return IDFromNaturalKey(info.NaturalKey())
}

// IsValidID reports whether id has the shape of a document id.
func IsValidID(id string) bool {
	return validID.MatchString(id)
}
