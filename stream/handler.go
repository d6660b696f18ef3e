// Package stream consumes the document table's change feed and mirrors
// committed mutations into the search index.
package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/edstore/search"
	"github.com/jacentio/edstore/store"
)

// Indexer is the slice of the search client the handler uses.
type Indexer interface {
	Upsert(ctx context.Context, index string, doc search.Document) error
	RemoveIfExists(ctx context.Context, index, id string) error
}

var _ Indexer = (*search.Client)(nil)

// Handler processes DynamoDB stream events into search-index operations.
type Handler struct {
	indexer Indexer
	logger  *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(indexer Indexer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		indexer: indexer,
		logger:  logger,
	}
}

// HandleEvent processes one stream delivery. Delivery is at least once with
// per-partition ordering only, and every index operation is idempotent, so a
// record that fails is logged and skipped rather than failing the batch.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleEvent(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"eventName", record.EventName,
				"error", err,
			)
		}
	}
	return nil
}

// processRecord mirrors a single stream record. Records for non-document
// items, subclass-membership items, and descriptors are skipped.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	keys := record.Change.Keys
	if len(keys) == 0 {
		h.logger.Debug("skipping record without keys", "eventID", record.EventID)
		return nil
	}

	pk := keys["pk"].String()
	sk := keys["sk"].String()

	if !store.IsTypeKey(pk) {
		h.logger.Debug("skipping non-document record", "eventID", record.EventID, "pk", pk)
		return nil
	}
	if store.IsAssignableSortKey(sk) {
		h.logger.Debug("skipping subclass-membership record", "eventID", record.EventID, "pk", pk)
		return nil
	}

	index := search.IndexNameFromTypeKey(pk)
	id := store.IDFromSortKey(sk)

	switch record.EventName {
	case "REMOVE":
		return h.indexer.RemoveIfExists(ctx, index, id)

	case "INSERT", "MODIFY":
		if store.IsDescriptorTypeKey(pk) {
			h.logger.Debug("skipping descriptor record", "eventID", record.EventID, "pk", pk)
			return nil
		}
		if len(record.Change.NewImage) == 0 {
			h.logger.Debug("skipping record without new image", "eventID", record.EventID, "pk", pk)
			return nil
		}

		doc, err := indexDocumentFromImage(id, record.Change.NewImage)
		if err != nil {
			return fmt.Errorf("convert stream image: %w", err)
		}
		return h.indexer.Upsert(ctx, index, doc)

	default:
		h.logger.Debug("skipping unrecognized event", "eventID", record.EventID, "eventName", record.EventName)
		return nil
	}
}

// indexDocumentFromImage builds the denormalized index document from a stream
// record's new image.
func indexDocumentFromImage(id string, image map[string]events.DynamoDBAttributeValue) (search.Document, error) {
	item := imageAttributeValues(image)

	doc := search.Document{
		ID:                id,
		EdOrgID:           stringAttr(item, "edOrgId"),
		StudentID:         stringAttr(item, "studentId"),
		SecurityEdOrgID:   stringAttr(item, "securityEdOrgId"),
		SecurityStudentID: stringAttr(item, "securityStudentId"),
	}

	info, ok := item["info"].(*types.AttributeValueMemberM)
	if !ok {
		return search.Document{}, fmt.Errorf("record %s has no document body", id)
	}
	if err := attributevalue.UnmarshalMap(info.Value, &doc.Body); err != nil {
		return search.Document{}, err
	}

	return doc, nil
}

func stringAttr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
