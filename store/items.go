package store

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/edstore/document"
)

// Association resources whose items carry precomputed security-relationship
// attributes for the security GSI.
const (
	studentEdOrgAssociation  = "StudentEducationOrganizationAssociation"
	studentSchoolAssociation = "StudentSchoolAssociation"
)

// key builds a primary-key attribute map.
func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

// conditionCheckForReference asserts the referenced document exists. Plain
// references check the referenced item's sort key; subclass references check
// the membership item under the superclass type instead.
func (s *Store) conditionCheckForReference(ref document.DocumentReference) types.TransactWriteItem {
	id := document.IDFromNaturalKey(document.NaturalKeyString(ref.Identity))

	sk := SortKeyFromID(id)
	if ref.IsSubclassReference {
		sk = AssignableSortKeyFromID(id)
	}

	return types.TransactWriteItem{
		ConditionCheck: &types.ConditionCheck{
			TableName:           aws.String(s.config.TableName),
			Key:                 key(TypeKeyFor(ref.ResourceInfo), sk),
			ConditionExpression: aws.String("attribute_exists(sk)"),
		},
	}
}

// referenceChecks builds the ordered condition checks for a document's
// outbound references and descriptor usages. Ordering matters: transaction
// cancellation reasons are mapped back to these positions.
func (s *Store) referenceChecks(info document.DocumentInfo) []types.TransactWriteItem {
	checks := make([]types.TransactWriteItem, 0, len(info.References)+len(info.DescriptorReferences))
	for _, ref := range info.References {
		checks = append(checks, s.conditionCheckForReference(ref))
	}
	for _, ref := range info.DescriptorReferences {
		checks = append(checks, s.conditionCheckForReference(ref))
	}
	return checks
}

// buildPutItem assembles the primary item attribute map for a document,
// including the optional owner and security attributes.
func buildPutItem(id string, info document.DocumentInfo, body map[string]any, ownerID string, validated bool) (map[string]types.AttributeValue, error) {
	stored := body
	if !validated {
		stored = make(map[string]any, len(body)+1)
		for k, v := range body {
			stored[k] = v
		}
		stored["_unvalidated"] = true
	}

	bodyAttr, err := attributevalue.MarshalMap(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal document body: %w", err)
	}

	item := map[string]types.AttributeValue{
		"pk":         &types.AttributeValueMemberS{Value: TypeKeyFor(info.ResourceInfo)},
		"sk":         &types.AttributeValueMemberS{Value: SortKeyFromID(id)},
		"naturalKey": &types.AttributeValueMemberS{Value: info.NaturalKey()},
		"info":       &types.AttributeValueMemberM{Value: bodyAttr},
	}

	if ownerID != "" {
		item["ownerId"] = &types.AttributeValueMemberS{Value: ownerID}
	}

	// Potential security contexts for all documents.
	if info.StudentID != "" {
		item["studentId"] = &types.AttributeValueMemberS{Value: info.StudentID}
	}
	if info.EducationOrganizationID != "" {
		item["edOrgId"] = &types.AttributeValueMemberS{Value: info.EducationOrganizationID}
	}

	// Security relationships for the relevant associations.
	if info.ResourceName == studentEdOrgAssociation || info.ResourceName == studentSchoolAssociation {
		item["securityStudentId"] = &types.AttributeValueMemberS{Value: "Student#" + info.StudentID}
		item["securityEdOrgId"] = &types.AttributeValueMemberS{Value: info.ResourceName + "#" + info.EducationOrganizationID}
	}

	return item, nil
}

// putDocumentFailIfExists wraps the primary item in a conditional put that
// fails when the sort key is already present.
func (s *Store) putDocumentFailIfExists(item map[string]types.AttributeValue) types.TransactWriteItem {
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(s.config.TableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(sk)"),
		},
	}
}

// assignablePutItem returns the conditional put of the subclass-membership
// item, or nil when the document has no superclass.
func (s *Store) assignablePutItem(info document.DocumentInfo) *types.TransactWriteItem {
	if info.Superclass == nil {
		return nil
	}

	superType := TypeKeyFromComponents(info.ProjectName, info.ProjectVersion, info.Superclass.ResourceName)
	id := document.IDFromNaturalKey(document.NaturalKeyString(info.Superclass.Identity))

	return &types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(s.config.TableName),
			Item:                key(superType, AssignableSortKeyFromID(id)),
			ConditionExpression: aws.String("attribute_not_exists(sk)"),
		},
	}
}

// assignableDeleteItem returns the delete of the subclass-membership item, or
// nil when the document has no superclass. The membership item is keyed by the
// superclass identity hash, not the document's own id, so the delete must
// derive its key the same way the put does.
func (s *Store) assignableDeleteItem(info document.DocumentInfo) *types.TransactWriteItem {
	if info.Superclass == nil {
		return nil
	}

	superType := TypeKeyFromComponents(info.ProjectName, info.ProjectVersion, info.Superclass.ResourceName)
	id := document.IDFromNaturalKey(document.NaturalKeyString(info.Superclass.Identity))

	return &types.TransactWriteItem{
		Delete: &types.Delete{
			TableName: aws.String(s.config.TableName),
			Key:       key(superType, AssignableSortKeyFromID(id)),
		},
	}
}

// referenceViolationMessage renders the constraint-violation message for the
// failing reference check at position index within a document's ordered checks.
func referenceViolationMessage(info document.DocumentInfo, index int) string {
	if index < len(info.References) {
		ref := info.References[index]
		return fmt.Sprintf("Foreign key constraint failure for resource %s. Expected natural key was %s",
			ref.ResourceName, document.NaturalKeyString(ref.Identity))
	}

	descriptor := info.DescriptorReferences[index-len(info.References)]
	return fmt.Sprintf("%s is not a valid value for descriptor %s",
		document.NaturalKeyString(descriptor.Identity), descriptor.ResourceName)
}
