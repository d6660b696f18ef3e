package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/edstore/document"
	"github.com/jacentio/edstore/internal/chunk"
)

// edgeKey addresses one direction of a reference edge.
type edgeKey struct {
	pk string
	sk string
}

// mirrored returns the opposite direction of the edge.
func (k edgeKey) mirrored() edgeKey {
	return edgeKey{pk: k.sk, sk: k.pk}
}

// referenceEdgeItems builds the paired forward/reverse edge puts for every
// outbound reference of a document. The reverse item carries the referencing
// document's type and natural key so that a blocked delete can name it.
// Descriptor usages never originate edges.
func (s *Store) referenceEdgeItems(fromSortKey string, info document.DocumentInfo) []types.TransactWriteItem {
	if len(info.References) == 0 {
		return nil
	}

	referenceType := TypeKeyFromComponents(info.ProjectName, info.ProjectVersion, info.ResourceName)
	naturalKey := info.NaturalKey()

	items := make([]types.TransactWriteItem, 0, 2*len(info.References))
	for _, ref := range info.References {
		toSortKey := SortKeyFromID(document.IDFromNaturalKey(document.NaturalKeyString(ref.Identity)))

		forward := edgeKey{pk: fromReferenceKey(fromSortKey), sk: toReferenceKey(toSortKey)}
		reverse := forward.mirrored()

		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(s.config.TableName),
				Item:      key(forward.pk, forward.sk),
			},
		})
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(s.config.TableName),
				Item: map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: reverse.pk},
					"sk": &types.AttributeValueMemberS{Value: reverse.sk},
					"info": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
						"Type":       &types.AttributeValueMemberS{Value: referenceType},
						"NaturalKey": &types.AttributeValueMemberS{Value: naturalKey},
					}},
				},
			},
		})
	}

	return items
}

// writeReferenceEdges persists a document's reference edges after a successful
// primary commit. Batches commit independently; a failed batch is retried up
// to the configured count, then logged and dropped. A crash between batches
// leaves the document partially edge-indexed, which degrades delete-protection
// coverage but never primary-item correctness.
func (s *Store) writeReferenceEdges(ctx context.Context, fromSortKey string, info document.DocumentInfo, traceID string) {
	items := s.referenceEdgeItems(fromSortKey, info)
	if len(items) == 0 {
		return
	}

	for _, batch := range chunk.Split(items, s.config.TransactionItemLimit) {
		s.commitBestEffort(ctx, batch, traceID, "reference edge write")
	}
}

// commitBestEffort commits one transaction batch with retries, logging rather
// than surfacing failures.
func (s *Store) commitBestEffort(ctx context.Context, batch []types.TransactWriteItem, traceID, operation string) {
	var err error
	for attempt := 0; attempt <= s.config.EdgeWriteRetries; attempt++ {
		_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: batch,
		})
		if err == nil {
			return
		}
	}

	s.logger.Error("best-effort batch dropped",
		"operation", operation,
		"traceId", traceID,
		"batchSize", len(batch),
		"error", err,
	)
}

// ReferencesTo returns a description of every document currently referencing
// the given id, by paginating the full reverse-edge partition.
func (s *Store) ReferencesTo(ctx context.Context, id string) ([]ReferenceDescription, error) {
	var descriptions []ReferenceDescription

	err := s.scanEdgePartition(ctx, toReferenceKey(SortKeyFromID(id)), func(item map[string]types.AttributeValue) {
		description := ReferenceDescription{}
		if info, ok := item["info"].(*types.AttributeValueMemberM); ok {
			description.Type = stringAttr(info.Value, "Type")
			description.NaturalKey = stringAttr(info.Value, "NaturalKey")
		}
		descriptions = append(descriptions, description)
	})
	if err != nil {
		return nil, err
	}

	return descriptions, nil
}

// forwardEdgeKeys returns the keys of every forward edge owned by the given
// id, by paginating the full forward-edge partition.
func (s *Store) forwardEdgeKeys(ctx context.Context, id string) ([]edgeKey, error) {
	var keys []edgeKey

	err := s.scanEdgePartition(ctx, fromReferenceKey(SortKeyFromID(id)), func(item map[string]types.AttributeValue) {
		keys = append(keys, edgeKey{pk: stringAttr(item, "pk"), sk: stringAttr(item, "sk")})
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// scanEdgePartition pages through every item under an edge partition key,
// following continuation tokens until exhausted. Fan-in and fan-out are
// unbounded, so no page limit is applied.
func (s *Store) scanEdgePartition(ctx context.Context, pk string, visit func(map[string]types.AttributeValue)) error {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.TableName),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			visit(item)
		}
	}

	return nil
}

// pruneEdges deletes edge items in transaction-size-bounded batches. A batch
// that fails, including on an already-missing item, is logged and skipped;
// the owning document is already gone and stale edges only over-protect.
func (s *Store) pruneEdges(ctx context.Context, keys []edgeKey, traceID string) {
	if len(keys) == 0 {
		return
	}

	items := make([]types.TransactWriteItem, 0, len(keys))
	for _, k := range keys {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName:           aws.String(s.config.TableName),
				Key:                 key(k.pk, k.sk),
				ConditionExpression: aws.String("attribute_exists(sk)"),
			},
		})
	}

	for _, batch := range chunk.Split(items, s.config.TransactionItemLimit) {
		s.commitBestEffort(ctx, batch, traceID, "reference edge prune")
	}
}
