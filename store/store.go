package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/edstore/document"
)

// defaultListLimit caps a GetList page when the request does not set one.
const defaultListLimit = 100

// Store performs document operations against a single DynamoDB table.
type Store struct {
	client DynamoClient
	config Config
	logger *slog.Logger
}

// New creates a Store over an injected DynamoDB client. An invalid config is
// rejected here rather than surfacing as partial transactions later. A nil
// logger falls back to slog.Default().
func New(client DynamoClient, config Config, logger *slog.Logger) (*Store, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, config: config, logger: logger}, nil
}

// Upsert inserts the document, or updates it in place when the id already
// exists. Reference and descriptor checks ride in the same transaction as the
// insert, so a concurrent delete of a referenced document cancels the commit.
func (s *Store) Upsert(ctx context.Context, req UpsertRequest) UpsertResult {
	traceID := ensureTraceID(req.TraceID)

	var ownerID string
	if req.Security.OwnershipEnabled() {
		ownerID = req.Security.ClientID
	}

	item, err := buildPutItem(req.ID, req.Info, req.Body, ownerID, req.Validate)
	if err != nil {
		s.logger.Error("upsert item build failed", "traceId", traceID, "documentId", req.ID, "error", err)
		return UpsertResult{Outcome: UpsertUnknownFailure}
	}

	var checks []types.TransactWriteItem
	if req.Validate {
		checks = s.referenceChecks(req.Info)
	}

	transaction := append(checks, s.putDocumentFailIfExists(item))
	if assignable := s.assignablePutItem(req.Info); assignable != nil {
		transaction = append(transaction, *assignable)
	}

	if len(transaction) > s.config.TransactionItemLimit {
		s.logger.Error("upsert exceeds transaction item limit",
			"traceId", traceID, "documentId", req.ID,
			"items", len(transaction), "limit", s.config.TransactionItemLimit)
		return UpsertResult{Outcome: UpsertUnknownFailure, FailureMessage: ErrTooManyReferences.Error()}
	}

	s.logger.Debug("upsert transaction", "traceId", traceID, "documentId", req.ID, "items", len(transaction))

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: transaction,
	})
	if err == nil {
		if req.Validate {
			s.writeReferenceEdges(ctx, SortKeyFromID(req.ID), req.Info, traceID)
		}
		return UpsertResult{Outcome: UpsertInserted}
	}

	failed, canceled := cancellationIndexes(err)
	if !canceled {
		s.logger.Error("upsert transaction failed", "traceId", traceID, "documentId", req.ID, "error", err)
		return UpsertResult{Outcome: UpsertUnknownFailure}
	}

	// The primary put failing means the id already exists; fall through to an
	// in-place update regardless of any other failed conditions, since the
	// existing item also explains the assignable-put failure.
	if containsIndex(failed, len(checks)) {
		update := s.Update(ctx, UpdateRequest{
			ID: req.ID, Info: req.Info, Body: req.Body,
			Validate: req.Validate, Security: req.Security, TraceID: traceID,
		})
		return upsertResultFromUpdate(update)
	}

	if len(failed) > 0 && failed[0] < len(checks) {
		return UpsertResult{
			Outcome:        UpsertReferenceViolation,
			FailureMessage: referenceViolationMessage(req.Info, failed[0]),
		}
	}

	// Only the assignable put failed: another subclass document already claims
	// this superclass identity. A cancellation without any failed condition
	// (write contention) falls through to unknown-failure instead.
	if req.Info.Superclass != nil && containsIndex(failed, len(checks)+1) {
		return UpsertResult{
			Outcome: UpsertReferenceViolation,
			FailureMessage: fmt.Sprintf("Insert failed: the identity is already claimed under superclass %s",
				req.Info.Superclass.ResourceName),
		}
	}

	s.logger.Error("upsert transaction canceled without a mappable condition",
		"traceId", traceID, "documentId", req.ID, "error", err)
	return UpsertResult{Outcome: UpsertUnknownFailure}
}

// Update replaces the document body for an existing id. The replacement is
// conditional on the item existing and, under ownership-based authorization,
// on the caller owning it; an ownership mismatch is indistinguishable from a
// missing document.
func (s *Store) Update(ctx context.Context, req UpdateRequest) UpdateResult {
	traceID := ensureTraceID(req.TraceID)

	var ownerID string
	if req.Security.OwnershipEnabled() {
		ownerID = req.Security.ClientID
	}

	item, err := buildPutItem(req.ID, req.Info, req.Body, ownerID, req.Validate)
	if err != nil {
		s.logger.Error("update item build failed", "traceId", traceID, "documentId", req.ID, "error", err)
		return UpdateResult{Outcome: UpdateUnknownFailure}
	}

	var checks []types.TransactWriteItem
	if req.Validate {
		checks = s.referenceChecks(req.Info)
	}

	put := &types.Put{
		TableName:           aws.String(s.config.TableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(sk)"),
	}
	if req.Security.OwnershipEnabled() {
		put.ConditionExpression = aws.String("attribute_exists(sk) AND (attribute_not_exists(ownerId) OR ownerId = :client)")
		put.ExpressionAttributeValues = map[string]types.AttributeValue{
			":client": &types.AttributeValueMemberS{Value: req.Security.ClientID},
		}
	}
	transaction := append(checks, types.TransactWriteItem{Put: put})

	if len(transaction) > s.config.TransactionItemLimit {
		s.logger.Error("update exceeds transaction item limit",
			"traceId", traceID, "documentId", req.ID,
			"items", len(transaction), "limit", s.config.TransactionItemLimit)
		return UpdateResult{Outcome: UpdateUnknownFailure, FailureMessage: ErrTooManyReferences.Error()}
	}

	s.logger.Debug("update transaction", "traceId", traceID, "documentId", req.ID, "items", len(transaction))

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: transaction,
	})
	if err == nil {
		s.refreshReferenceEdges(ctx, req.ID, req.Info, req.Validate, traceID)
		return UpdateResult{Outcome: UpdateSuccess}
	}

	failed, canceled := cancellationIndexes(err)
	if !canceled {
		s.logger.Error("update transaction failed", "traceId", traceID, "documentId", req.ID, "error", err)
		return UpdateResult{Outcome: UpdateUnknownFailure}
	}

	if len(failed) > 0 && failed[0] < len(checks) {
		return UpdateResult{
			Outcome:        UpdateReferenceViolation,
			FailureMessage: referenceViolationMessage(req.Info, failed[0]),
		}
	}

	// Not-found only when the put's own condition failed. A cancellation
	// without any failed condition (write contention) is transient.
	if containsIndex(failed, len(checks)) {
		return UpdateResult{Outcome: UpdateNotFound}
	}

	s.logger.Error("update transaction canceled without a mappable condition",
		"traceId", traceID, "documentId", req.ID, "error", err)
	return UpdateResult{Outcome: UpdateUnknownFailure}
}

// Delete removes the document and its subclass-membership item. Deleting an
// absent id succeeds. A document still referenced by others is protected; the
// result names the blockers.
func (s *Store) Delete(ctx context.Context, req DeleteRequest) DeleteResult {
	traceID := ensureTraceID(req.TraceID)

	item, err := s.fetchPrimaryItem(ctx, req.ID, req.Info)
	if err != nil {
		s.logger.Error("delete precheck read failed", "traceId", traceID, "documentId", req.ID, "error", err)
		return DeleteResult{Outcome: DeleteUnknownFailure}
	}
	if item == nil {
		return DeleteResult{Outcome: DeleteSuccess}
	}

	if req.Security.OwnershipEnabled() {
		decision := resolveOwnership(item, req.Security)
		if !decision.allowed {
			s.logger.Debug("delete denied", "traceId", traceID, "documentId", req.ID, "trail", decision.trail)
			return DeleteResult{Outcome: DeleteNotFound}
		}
	}

	blockers, err := s.ReferencesTo(ctx, req.ID)
	if err != nil {
		s.logger.Error("delete reference scan failed", "traceId", traceID, "documentId", req.ID, "error", err)
		return DeleteResult{Outcome: DeleteUnknownFailure}
	}
	if len(blockers) > 0 {
		return DeleteResult{
			Outcome:            DeleteReferenceViolation,
			FailureMessage:     fmt.Sprintf("Delete failed: %d documents still reference this item", len(blockers)),
			BlockingReferences: blockers,
		}
	}

	transaction := []types.TransactWriteItem{{
		Delete: &types.Delete{
			TableName:           aws.String(s.config.TableName),
			Key:                 key(TypeKeyFor(req.Info.ResourceInfo), SortKeyFromID(req.ID)),
			ConditionExpression: aws.String("attribute_exists(sk)"),
		},
	}}
	if assignable := s.assignableDeleteItem(req.Info); assignable != nil {
		transaction = append(transaction, *assignable)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: transaction,
	})
	if err != nil {
		failed, canceled := cancellationIndexes(err)
		// A concurrent delete already removed the primary item; idempotent.
		if canceled && containsIndex(failed, 0) {
			return DeleteResult{Outcome: DeleteSuccess}
		}
		s.logger.Error("delete transaction failed", "traceId", traceID, "documentId", req.ID, "error", err)
		return DeleteResult{Outcome: DeleteUnknownFailure}
	}

	s.pruneForwardEdges(ctx, req.ID, traceID)
	return DeleteResult{Outcome: DeleteSuccess}
}

// GetByID fetches a single document and resolves the caller's access to it.
func (s *Store) GetByID(ctx context.Context, req GetRequest) GetResult {
	traceID := ensureTraceID(req.TraceID)

	item, err := s.fetchPrimaryItem(ctx, req.ID, req.Info)
	if err != nil {
		s.logger.Error("get read failed", "traceId", traceID, "documentId", req.ID, "error", err)
		return GetResult{Outcome: GetUnknownFailure}
	}
	if item == nil {
		return GetResult{Outcome: GetNotFound}
	}

	decision, err := s.resolveAccess(ctx, item, req.Security)
	if err != nil {
		s.logger.Error("get access resolution failed", "traceId", traceID, "documentId", req.ID, "error", err)
		return GetResult{Outcome: GetUnknownFailure}
	}
	if !decision.allowed {
		s.logger.Debug("get denied", "traceId", traceID, "documentId", req.ID, "trail", decision.trail)
		return GetResult{Outcome: GetDenied, SecurityTrail: decision.trail}
	}

	doc, err := documentFromItem(req.ID, item)
	if err != nil {
		s.logger.Error("get unmarshal failed", "traceId", traceID, "documentId", req.ID, "error", err)
		return GetResult{Outcome: GetUnknownFailure}
	}

	return GetResult{Outcome: GetSuccess, Document: doc, SecurityTrail: decision.trail}
}

// GetList returns one page of all documents of a resource type, with an opaque
// continuation token for the next page. Subclass-membership items share the
// partition but never match the id prefix.
func (s *Store) GetList(ctx context.Context, req ListRequest) ListResult {
	traceID := ensureTraceID(req.TraceID)

	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.config.TableName),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: TypeKeyFor(req.Info)},
			":id": &types.AttributeValueMemberS{Value: idPrefix},
		},
		Limit: aws.Int32(limit),
	}

	if req.PageToken != "" {
		startKey, err := decodePageToken(req.PageToken)
		if err != nil {
			s.logger.Debug("list rejected page token", "traceId", traceID, "error", err)
			return ListResult{Outcome: ListInvalidPageToken}
		}
		input.ExclusiveStartKey = startKey
	}

	output, err := s.client.Query(ctx, input)
	if err != nil {
		s.logger.Error("list query failed", "traceId", traceID, "resource", req.Info.ResourceName, "error", err)
		return ListResult{Outcome: ListUnknownFailure}
	}

	documents := make([]map[string]any, 0, len(output.Items))
	for _, item := range output.Items {
		doc, err := documentFromItem(IDFromSortKey(stringAttr(item, "sk")), item)
		if err != nil {
			s.logger.Error("list unmarshal failed", "traceId", traceID, "resource", req.Info.ResourceName, "error", err)
			return ListResult{Outcome: ListUnknownFailure}
		}
		documents = append(documents, doc)
	}

	result := ListResult{Outcome: ListSuccess, Documents: documents}
	if len(output.LastEvaluatedKey) > 0 {
		token, err := encodePageToken(output.LastEvaluatedKey)
		if err != nil {
			s.logger.Error("list token encode failed", "traceId", traceID, "error", err)
			return ListResult{Outcome: ListUnknownFailure}
		}
		result.NextPageToken = token
	}

	return result
}

// fetchPrimaryItem reads the primary item with a consistent read, returning
// nil without error when absent.
func (s *Store) fetchPrimaryItem(ctx context.Context, id string, info document.DocumentInfo) (map[string]types.AttributeValue, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.TableName),
		Key:            key(TypeKeyFor(info.ResourceInfo), SortKeyFromID(id)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(output.Item) == 0 {
		return nil, nil
	}
	return output.Item, nil
}

// refreshReferenceEdges replaces a document's forward edges after an update.
// Old edges are pruned with their mirrors before the current reference set is
// rewritten; both halves are best effort. Edges exist only for validated
// writes, so an unvalidated update prunes without rewriting.
func (s *Store) refreshReferenceEdges(ctx context.Context, id string, info document.DocumentInfo, validated bool, traceID string) {
	existing, err := s.forwardEdgeKeys(ctx, id)
	if err != nil {
		s.logger.Error("edge refresh scan failed", "traceId", traceID, "documentId", id, "error", err)
	} else {
		s.pruneEdges(ctx, withMirrors(existing), traceID)
	}

	if !validated {
		return
	}
	s.writeReferenceEdges(ctx, SortKeyFromID(id), info, traceID)
}

// pruneForwardEdges removes a deleted document's forward edges and their
// mirrors, best effort.
func (s *Store) pruneForwardEdges(ctx context.Context, id string, traceID string) {
	existing, err := s.forwardEdgeKeys(ctx, id)
	if err != nil {
		s.logger.Error("edge prune scan failed", "traceId", traceID, "documentId", id, "error", err)
		return
	}
	s.pruneEdges(ctx, withMirrors(existing), traceID)
}

func withMirrors(keys []edgeKey) []edgeKey {
	all := make([]edgeKey, 0, 2*len(keys))
	for _, k := range keys {
		all = append(all, k, k.mirrored())
	}
	return all
}

// documentFromItem unmarshals the stored body and merges the document id in.
func documentFromItem(id string, item map[string]types.AttributeValue) (map[string]any, error) {
	info, ok := item["info"].(*types.AttributeValueMemberM)
	if !ok {
		return nil, errors.New("item has no document body")
	}

	var doc map[string]any
	if err := attributevalue.UnmarshalMap(info.Value, &doc); err != nil {
		return nil, err
	}
	doc["id"] = id
	return doc, nil
}

// cancellationIndexes extracts the ordinals of failed condition checks from a
// canceled transaction. The second return is false when the error is not a
// transaction cancellation.
func cancellationIndexes(err error) ([]int, bool) {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return nil, false
	}

	var failed []int
	for i, reason := range canceled.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			failed = append(failed, i)
		}
	}
	return failed, true
}

func containsIndex(indexes []int, target int) bool {
	for _, i := range indexes {
		if i == target {
			return true
		}
	}
	return false
}

func upsertResultFromUpdate(update UpdateResult) UpsertResult {
	switch update.Outcome {
	case UpdateSuccess:
		return UpsertResult{Outcome: UpsertUpdated}
	case UpdateReferenceViolation:
		return UpsertResult{Outcome: UpsertReferenceViolation, FailureMessage: update.FailureMessage}
	default:
		// Covers UpdateNotFound as well: the document vanished between the
		// failed insert and the update, and the caller can retry.
		return UpsertResult{Outcome: UpsertUnknownFailure, FailureMessage: update.FailureMessage}
	}
}

// ensureTraceID mints a correlation id when the caller did not supply one.
func ensureTraceID(traceID string) string {
	if traceID != "" {
		return traceID
	}
	return uuid.NewString()
}

// encodePageToken packs a DynamoDB continuation key into an opaque token.
func encodePageToken(lastKey map[string]types.AttributeValue) (string, error) {
	plain := map[string]string{
		"pk": stringAttr(lastKey, "pk"),
		"sk": stringAttr(lastKey, "sk"),
	}
	raw, err := json.Marshal(plain)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// decodePageToken restores a continuation key from an opaque token.
func decodePageToken(token string) (map[string]types.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidPageToken
	}

	var plain map[string]string
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, ErrInvalidPageToken
	}
	if plain["pk"] == "" || plain["sk"] == "" {
		return nil, ErrInvalidPageToken
	}

	return key(plain["pk"], plain["sk"]), nil
}
