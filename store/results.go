package store

import (
	"github.com/jacentio/edstore/document"
)

// UpsertRequest carries a parsed, schema-validated document into Upsert.
type UpsertRequest struct {
	// ID is the document id derived from the natural key.
	ID string

	// Info is the extracted document metadata.
	Info document.DocumentInfo

	// Body is the validated document body.
	Body map[string]any

	// Validate enables reference and descriptor existence checks.
	Validate bool

	// Security identifies the caller and authorization strategy.
	Security Security

	// TraceID correlates log entries for this operation. Minted when empty.
	TraceID string
}

// UpdateRequest is the request shape for Update. Identical to UpsertRequest;
// the two operations differ only in primary-item conditions.
type UpdateRequest = UpsertRequest

// DeleteRequest carries a document deletion into Delete.
type DeleteRequest struct {
	ID       string
	Info     document.DocumentInfo
	Security Security
	TraceID  string
}

// GetRequest carries a document read into GetByID.
type GetRequest struct {
	ID       string
	Info     document.DocumentInfo
	Security Security
	TraceID  string
}

// ListRequest carries a paginated listing of a resource type into GetList.
type ListRequest struct {
	Info document.ResourceInfo

	// Limit is the maximum number of documents per page (0 = store default).
	Limit int32

	// PageToken is the opaque continuation token from a previous page, or
	// empty for the first page.
	PageToken string

	TraceID string
}

// ReferenceDescription names a referencing document for constraint-violation
// messages: its resource type key and diagnostic natural key.
type ReferenceDescription struct {
	Type       string
	NaturalKey string
}

// UpsertOutcome is the result category of an Upsert operation.
type UpsertOutcome int

const (
	UpsertUnknownFailure UpsertOutcome = iota
	UpsertInserted
	UpsertUpdated
	UpsertReferenceViolation
)

// UpsertResult is the outcome of an Upsert operation.
type UpsertResult struct {
	Outcome UpsertOutcome

	// FailureMessage is a caller-renderable description of a constraint
	// violation. Empty on success and on unknown failures, which only log.
	FailureMessage string
}

// UpdateOutcome is the result category of an Update operation.
type UpdateOutcome int

const (
	UpdateUnknownFailure UpdateOutcome = iota
	UpdateSuccess
	UpdateNotFound
	UpdateReferenceViolation
)

// UpdateResult is the outcome of an Update operation.
type UpdateResult struct {
	Outcome        UpdateOutcome
	FailureMessage string
}

// DeleteOutcome is the result category of a Delete operation.
type DeleteOutcome int

const (
	DeleteUnknownFailure DeleteOutcome = iota
	DeleteSuccess
	DeleteNotFound
	DeleteReferenceViolation
)

// DeleteResult is the outcome of a Delete operation.
type DeleteResult struct {
	Outcome        DeleteOutcome
	FailureMessage string

	// BlockingReferences lists the documents still pointing at the deletion
	// target when the outcome is DeleteReferenceViolation.
	BlockingReferences []ReferenceDescription
}

// GetOutcome is the result category of a GetByID operation.
type GetOutcome int

const (
	GetUnknownFailure GetOutcome = iota
	GetSuccess
	GetNotFound
	GetDenied
)

// GetResult is the outcome of a GetByID operation.
type GetResult struct {
	Outcome GetOutcome

	// Document is the stored body with its id merged in, on success.
	Document map[string]any

	// SecurityTrail records which authorization rule resolved (or denied)
	// access, for audit logging.
	SecurityTrail []string
}

// ListOutcome is the result category of a GetList operation.
type ListOutcome int

const (
	ListUnknownFailure ListOutcome = iota
	ListSuccess
	ListInvalidPageToken
)

// ListResult is one page of a GetList operation.
type ListResult struct {
	Outcome   ListOutcome
	Documents []map[string]any

	// NextPageToken continues the listing; empty when the listing is complete.
	NextPageToken string
}
