package store

import (
	"strings"

	"github.com/jacentio/edstore/document"
)

// Store-level key prefixes. Sort key existence within a partition is the sole
// proof of document existence; natural keys are never used as store keys
// because they may contain arbitrary characters and can be arbitrarily long.
const (
	typeKeyPrefix       = "TYPE#"
	idPrefix            = "ID#"
	assignableIDPrefix  = "ASSIGN#ID#"
	fromReferencePrefix = "FREF#"
	toReferencePrefix   = "TREF#"
)

// descriptorSuffix is appended to descriptor resource names to avoid name
// collisions with entities of the same name.
const descriptorSuffix = "Descriptor"

// TypeKeyFromComponents builds the partition key for a resource type.
func TypeKeyFromComponents(projectName, projectVersion, resourceName string) string {
	return typeKeyPrefix + projectName + "#" + projectVersion + "#" + resourceName
}

// TypeKeyFor builds the partition key for a resource, adjusting descriptor
// resource names with the normalized suffix.
func TypeKeyFor(info document.ResourceInfo) string {
	name := info.ResourceName
	if info.IsDescriptor && !strings.HasSuffix(name, descriptorSuffix) {
		name += descriptorSuffix
	}
	return TypeKeyFromComponents(info.ProjectName, info.ProjectVersion, name)
}

// IsTypeKey reports whether pk is a resource-type partition key, as opposed to
// a reference-edge partition.
func IsTypeKey(pk string) bool {
	return strings.HasPrefix(pk, typeKeyPrefix)
}

// IsDescriptorTypeKey reports whether pk addresses a descriptor resource.
// Descriptor partition keys always carry the normalized suffix.
func IsDescriptorTypeKey(pk string) bool {
	return IsTypeKey(pk) && strings.HasSuffix(pk, descriptorSuffix)
}

// SortKeyFromID builds the primary item sort key for a document id.
func SortKeyFromID(id string) string {
	return idPrefix + id
}

// AssignableSortKeyFromID builds the subclass-membership item sort key for a
// document id.
func AssignableSortKeyFromID(id string) string {
	return assignableIDPrefix + id
}

// IsAssignableSortKey reports whether sk belongs to a subclass-membership item.
func IsAssignableSortKey(sk string) bool {
	return strings.HasPrefix(sk, assignableIDPrefix)
}

// IDFromSortKey strips the id prefix from a primary item sort key.
func IDFromSortKey(sk string) string {
	return strings.TrimPrefix(sk, idPrefix)
}

// fromReferenceKey builds the forward-edge partition key for a document sort key.
func fromReferenceKey(sortKey string) string {
	return fromReferencePrefix + sortKey
}

// toReferenceKey builds the reverse-edge partition key for a document sort key.
func toReferenceKey(sortKey string) string {
	return toReferencePrefix + sortKey
}
