package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// AuthorizationStrategy selects how document access is resolved. The two
// strategies are mutually exclusive, chosen per deployment.
type AuthorizationStrategy string

const (
	// StrategyHierarchical resolves access through education-organization and
	// student claims, including indirect relationships through an association.
	StrategyHierarchical AuthorizationStrategy = "HIERARCHICAL"

	// StrategyOwnership resolves access through the owner recorded on the
	// document at creation. Unowned documents are accessible to all.
	StrategyOwnership AuthorizationStrategy = "OWNERSHIP_BASED"
)

// Security carries the caller's identity and claims into store operations.
type Security struct {
	Strategy AuthorizationStrategy

	// ClientID identifies the caller; recorded as owner on create under
	// ownership-based authorization.
	ClientID string

	// EducationOrganizationIDs are the caller's education-organization claims
	// (hierarchical strategy only).
	EducationOrganizationIDs []string

	// StudentIDs are the caller's student claims (hierarchical strategy only).
	StudentIDs []string

	// ThroughAssociation names the association resource used for indirect
	// student to education-organization resolution, e.g.
	// "StudentSchoolAssociation". Empty disables indirect resolution.
	ThroughAssociation string
}

// OwnershipEnabled reports whether ownership-based authorization is active.
func (s Security) OwnershipEnabled() bool {
	return s.Strategy == StrategyOwnership
}

// accessDecision is the outcome of resolving a caller's access to a document.
type accessDecision struct {
	allowed bool
	trail   []string
}

// resolveAccess applies the configured authorization strategy to a fetched
// primary item. Every branch records a human-readable trail entry.
func (s *Store) resolveAccess(ctx context.Context, item map[string]types.AttributeValue, security Security) (accessDecision, error) {
	if security.OwnershipEnabled() {
		return resolveOwnership(item, security), nil
	}
	return s.resolveHierarchical(ctx, item, security)
}

func resolveOwnership(item map[string]types.AttributeValue, security Security) accessDecision {
	ownerID := stringAttr(item, "ownerId")
	if ownerID == "" {
		return accessDecision{allowed: true, trail: []string{"No ownership of item"}}
	}
	if ownerID != security.ClientID {
		return accessDecision{allowed: false, trail: []string{"Ownership match failure"}}
	}
	return accessDecision{allowed: true, trail: []string{"Ownership matches"}}
}

func (s *Store) resolveHierarchical(ctx context.Context, item map[string]types.AttributeValue, security Security) (accessDecision, error) {
	// Security is inactive for callers presenting no claims.
	if len(security.EducationOrganizationIDs) == 0 && len(security.StudentIDs) == 0 {
		return accessDecision{allowed: true, trail: []string{"Security inactive without claims"}}, nil
	}

	edOrgID := stringAttr(item, "edOrgId")
	studentID := stringAttr(item, "studentId")

	if edOrgID == "" && studentID == "" {
		return accessDecision{allowed: true, trail: []string{"Document not secured by EdOrgId or StudentId"}}, nil
	}

	if edOrgID != "" && studentID == "" {
		if contains(security.EducationOrganizationIDs, edOrgID) {
			return accessDecision{allowed: true, trail: []string{fmt.Sprintf("Direct via EdOrgId %s", edOrgID)}}, nil
		}
		return accessDecision{allowed: false, trail: []string{fmt.Sprintf("No access via EdOrgId %s", edOrgID)}}, nil
	}

	var trail []string
	if contains(security.StudentIDs, studentID) {
		trail = append(trail, fmt.Sprintf("Direct via StudentId %s", studentID))
		return accessDecision{allowed: true, trail: trail}, nil
	}
	trail = append(trail, fmt.Sprintf("No access via StudentId %s", studentID))

	if security.ThroughAssociation != "" {
		found, err := s.edOrgsForStudent(ctx, security.ThroughAssociation, studentID, security.EducationOrganizationIDs)
		if err != nil {
			return accessDecision{}, err
		}
		if len(found) > 0 {
			trail = append(trail, fmt.Sprintf("StudentId %s relationship with EdOrgId %s through %s",
				studentID, strings.Join(found, ","), security.ThroughAssociation))
			return accessDecision{allowed: true, trail: trail}, nil
		}
		trail = append(trail, fmt.Sprintf("No relationship through %s", security.ThroughAssociation))
	}

	return accessDecision{allowed: false, trail: trail}, nil
}

// edOrgsForStudent queries the security GSI for the education-organization ids
// related to a student through the given association resource, returning the
// intersection with the caller's claims.
func (s *Store) edOrgsForStudent(ctx context.Context, throughAssociation, studentID string, claimed []string) ([]string, error) {
	prefix := throughAssociation + "#"

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.config.TableName),
		IndexName:              aws.String(s.config.SecurityIndexName),
		KeyConditionExpression: aws.String("securityStudentId = :studentId AND begins_with(securityEdOrgId, :edOrgPrefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":studentId":   &types.AttributeValueMemberS{Value: "Student#" + studentID},
			":edOrgPrefix": &types.AttributeValueMemberS{Value: prefix},
		},
	}

	var hits []string
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			edOrg := strings.TrimPrefix(stringAttr(item, "securityEdOrgId"), prefix)
			if contains(claimed, edOrg) {
				hits = append(hits, edOrg)
			}
		}
	}

	return hits, nil
}

func stringAttr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
