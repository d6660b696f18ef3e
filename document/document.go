// Package document defines the metadata model for stored documents and the
// derivation of their stable identifiers.
//
// A document's natural key is the ordered list of identity-defining field/value
// pairs extracted from its body by the (external) resource-schema layer. The
// natural key is rendered to a deterministic string and hashed into a fixed-width
// document id, which is the only handle ever used to reference the document in
// the store.
package document

// ResourceInfo describes the resource type a document belongs to.
type ResourceInfo struct {
	// ProjectName is the data-model project the resource belongs to (e.g. "Ed-Fi").
	ProjectName string

	// ProjectVersion is the data-model project version (e.g. "3.3.1-b").
	ProjectVersion string

	// ResourceName is the name of the resource (e.g. "Student").
	ResourceName string

	// IsDescriptor is true for fixed enumeration-value resources. Descriptors
	// are validated for existence like any reference but never originate
	// reverse edges.
	IsDescriptor bool
}

// IdentityElement is a single name/value pair of a document's natural key.
type IdentityElement struct {
	// Name is the dotted body path of the identity field (e.g. "school.schoolId").
	Name string

	// Value is the extracted document value for the field.
	Value string
}

// DocumentIdentity is the ordered set of identity elements for a document.
// Order is significant: it is fixed by the resource schema, not by the caller.
type DocumentIdentity []IdentityElement

// DocumentReference is an outbound reference from one document to another,
// extracted from the referencing document's body.
type DocumentReference struct {
	ResourceInfo

	// Identity is the referenced document's identity as expressed in the
	// referencing body.
	Identity DocumentIdentity

	// IsSubclassReference is true when the reference targets an abstract
	// superclass collection, and must be resolved through the referenced
	// document's subclass-membership item rather than its primary item.
	IsSubclassReference bool
}

// SuperclassInfo records that a document belongs to an abstract superclass
// collection (e.g. a School is assignable to EducationOrganization).
type SuperclassInfo struct {
	// ResourceName is the superclass resource name.
	ResourceName string

	// Identity is the document's identity re-expressed in superclass terms,
	// with any subclass identity renames reversed.
	Identity DocumentIdentity
}

// DocumentInfo is the complete extracted metadata for a validated document.
type DocumentInfo struct {
	ResourceInfo

	// Identity is the document's natural key.
	Identity DocumentIdentity

	// References are the document's outbound foreign keys.
	References []DocumentReference

	// DescriptorReferences are the document's descriptor-value usages.
	DescriptorReferences []DocumentReference

	// Superclass is non-nil when the document is a member of an abstract
	// superclass collection.
	Superclass *SuperclassInfo

	// StudentID is the student id extracted from the body, if any (for security).
	StudentID string

	// EducationOrganizationID is the education organization id extracted from
	// the body, if any (for security).
	EducationOrganizationID string
}

// NaturalKey returns the rendered natural-key string for the document.
func (d DocumentInfo) NaturalKey() string {
	return NaturalKeyString(d.Identity)
}
