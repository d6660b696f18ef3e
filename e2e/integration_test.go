//go:build e2e

// Package e2e contains end-to-end integration tests using a real DynamoDB table.
// Run with: go test -tags=e2e -v ./e2e/...
package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/edstore/document"
	"github.com/jacentio/edstore/store"
)

// Test configuration
const (
	awsProfile = "jacent-alpha-cp"

	// Table name - unique per test run to avoid conflicts
	tablePrefix = "edstore-e2e-test"

	securityIndexName = "SecurityStudentEdOrgGSI"
)

var (
	testID        string
	documentTable string

	ddbClient *dynamodb.Client
	testStore *store.Store
)

// --- Test Resources ---

func personInfo(personID string) document.DocumentInfo {
	return document.DocumentInfo{
		ResourceInfo: document.ResourceInfo{
			ProjectName:    "Ed-Fi",
			ProjectVersion: "3.3.1-b",
			ResourceName:   "Person",
		},
		Identity: document.DocumentIdentity{{Name: "personId", Value: personID}},
	}
}

func parentInfo(parentID, personID string) document.DocumentInfo {
	return document.DocumentInfo{
		ResourceInfo: document.ResourceInfo{
			ProjectName:    "Ed-Fi",
			ProjectVersion: "3.3.1-b",
			ResourceName:   "Parent",
		},
		Identity: document.DocumentIdentity{{Name: "parentId", Value: parentID}},
		References: []document.DocumentReference{{
			ResourceInfo: document.ResourceInfo{
				ProjectName:    "Ed-Fi",
				ProjectVersion: "3.3.1-b",
				ResourceName:   "Person",
			},
			Identity: document.DocumentIdentity{{Name: "personId", Value: personID}},
		}},
	}
}

func upsert(ctx context.Context, info document.DocumentInfo, body map[string]any, security store.Security) store.UpsertResult {
	return testStore.Upsert(ctx, store.UpsertRequest{
		ID:       document.IDForDocument(info),
		Info:     info,
		Body:     body,
		Validate: true,
		Security: security,
	})
}

// --- Test Setup & Teardown ---

func TestMain(m *testing.M) {
	testID = uuid.New().String()[:8]
	documentTable = fmt.Sprintf("%s-%s-documents", tablePrefix, testID)

	fmt.Printf("Test ID: %s\n", testID)
	fmt.Printf("Table: %s\n", documentTable)

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithSharedConfigProfile(awsProfile),
	)
	if err != nil {
		fmt.Printf("Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}

	ddbClient = dynamodb.NewFromConfig(cfg)

	if err := createTable(ctx); err != nil {
		fmt.Printf("Failed to create table: %v\n", err)
		os.Exit(1)
	}

	testStore, err = store.New(ddbClient, store.Config{
		TableName:         documentTable,
		SecurityIndexName: securityIndexName,
	}, nil)
	if err != nil {
		fmt.Printf("Failed to create store: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := deleteTable(ctx); err != nil {
		fmt.Printf("Failed to delete table: %v\n", err)
	}

	os.Exit(code)
}

func createTable(ctx context.Context) error {
	fmt.Println("Creating test table...")

	_, err := ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(documentTable),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("sk"), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("sk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("securityStudentId"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("securityEdOrgId"), AttributeType: types.ScalarAttributeTypeS},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
			IndexName: aws.String(securityIndexName),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("securityStudentId"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("securityEdOrgId"), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeKeysOnly},
		}},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", documentTable, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(ddbClient)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(documentTable),
	}, 2*time.Minute); err != nil {
		return fmt.Errorf("wait for table %s: %w", documentTable, err)
	}

	fmt.Println("Table created and active")
	return nil
}

func deleteTable(ctx context.Context) error {
	fmt.Println("Deleting test table...")

	_, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(documentTable),
	})
	if err != nil {
		return fmt.Errorf("delete table %s: %w", documentTable, err)
	}

	fmt.Println("Table deleted")
	return nil
}

// --- Reference Integrity Tests ---

func TestReferenceIntegrity_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	personID := uuid.New().String()[:8]
	parentID := uuid.New().String()[:8]

	// Creating Parent before the referenced Person must fail.
	result := upsert(ctx, parentInfo(parentID, personID), map[string]any{"parentId": parentID}, store.Security{})
	if result.Outcome != store.UpsertReferenceViolation {
		t.Fatalf("expected reference violation, got %v", result.Outcome)
	}

	// Create the Person, then the Parent.
	person := personInfo(personID)
	if result := upsert(ctx, person, map[string]any{"personId": personID}, store.Security{}); result.Outcome != store.UpsertInserted {
		t.Fatalf("expected person inserted, got %v (%s)", result.Outcome, result.FailureMessage)
	}
	parent := parentInfo(parentID, personID)
	if result := upsert(ctx, parent, map[string]any{"parentId": parentID}, store.Security{}); result.Outcome != store.UpsertInserted {
		t.Fatalf("expected parent inserted, got %v (%s)", result.Outcome, result.FailureMessage)
	}

	// The forward edge exists for the parent.
	personDocID := document.IDForDocument(person)
	parentDocID := document.IDForDocument(parent)
	edges, err := ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(documentTable),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "FREF#ID#" + parentDocID},
		},
	})
	if err != nil {
		t.Fatalf("edge query failed: %v", err)
	}
	if len(edges.Items) != 1 {
		t.Fatalf("expected one forward edge, got %d", len(edges.Items))
	}
	edgeSK := edges.Items[0]["sk"].(*types.AttributeValueMemberS).Value
	if edgeSK != "TREF#ID#"+personDocID {
		t.Errorf("unexpected edge sk %q", edgeSK)
	}

	// Deleting the referenced Person is blocked while the Parent exists.
	deleteResult := testStore.Delete(ctx, store.DeleteRequest{ID: personDocID, Info: person})
	if deleteResult.Outcome != store.DeleteReferenceViolation {
		t.Fatalf("expected delete to be blocked, got %v", deleteResult.Outcome)
	}
	if len(deleteResult.BlockingReferences) != 1 {
		t.Fatalf("expected one blocker, got %d", len(deleteResult.BlockingReferences))
	}
	if deleteResult.BlockingReferences[0].NaturalKey != "NK#parentId="+parentID {
		t.Errorf("unexpected blocker natural key %q", deleteResult.BlockingReferences[0].NaturalKey)
	}

	// Delete the Parent, then the Person.
	if result := testStore.Delete(ctx, store.DeleteRequest{ID: parentDocID, Info: parent}); result.Outcome != store.DeleteSuccess {
		t.Fatalf("expected parent delete to succeed, got %v", result.Outcome)
	}
	if result := testStore.Delete(ctx, store.DeleteRequest{ID: personDocID, Info: person}); result.Outcome != store.DeleteSuccess {
		t.Fatalf("expected person delete to succeed, got %v", result.Outcome)
	}
}

// --- Upsert Convergence Tests ---

func TestUpsert_ExistingIDUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	personID := uuid.New().String()[:8]
	person := personInfo(personID)
	docID := document.IDForDocument(person)

	if result := upsert(ctx, person, map[string]any{"personId": personID}, store.Security{}); result.Outcome != store.UpsertInserted {
		t.Fatalf("expected inserted, got %v", result.Outcome)
	}

	result := upsert(ctx, person, map[string]any{"personId": personID, "note": "updated"}, store.Security{})
	if result.Outcome != store.UpsertUpdated {
		t.Fatalf("expected updated on second upsert, got %v", result.Outcome)
	}

	got := testStore.GetByID(ctx, store.GetRequest{ID: docID, Info: person})
	if got.Outcome != store.GetSuccess {
		t.Fatalf("expected get success, got %v", got.Outcome)
	}
	if got.Document["note"] != "updated" {
		t.Errorf("expected updated body, got %v", got.Document)
	}

	testStore.Delete(ctx, store.DeleteRequest{ID: docID, Info: person})
}

// --- Ownership Tests ---

func TestOwnership_Isolation(t *testing.T) {
	ctx := context.Background()
	personID := uuid.New().String()[:8]
	person := personInfo(personID)
	docID := document.IDForDocument(person)

	owner := store.Security{Strategy: store.StrategyOwnership, ClientID: "owner-1"}
	other := store.Security{Strategy: store.StrategyOwnership, ClientID: "owner-2"}

	if result := upsert(ctx, person, map[string]any{"personId": personID}, owner); result.Outcome != store.UpsertInserted {
		t.Fatalf("expected inserted, got %v", result.Outcome)
	}

	if got := testStore.GetByID(ctx, store.GetRequest{ID: docID, Info: person, Security: owner}); got.Outcome != store.GetSuccess {
		t.Errorf("expected owner read to succeed, got %v", got.Outcome)
	}
	if got := testStore.GetByID(ctx, store.GetRequest{ID: docID, Info: person, Security: other}); got.Outcome != store.GetDenied {
		t.Errorf("expected non-owner read to be denied, got %v", got.Outcome)
	}
	if result := testStore.Delete(ctx, store.DeleteRequest{ID: docID, Info: person, Security: other}); result.Outcome != store.DeleteNotFound {
		t.Errorf("expected non-owner delete to report not found, got %v", result.Outcome)
	}

	if result := testStore.Delete(ctx, store.DeleteRequest{ID: docID, Info: person, Security: owner}); result.Outcome != store.DeleteSuccess {
		t.Errorf("expected owner delete to succeed, got %v", result.Outcome)
	}
}

// --- Idempotency Tests ---

func TestDelete_Idempotent(t *testing.T) {
	ctx := context.Background()
	person := personInfo(uuid.New().String()[:8])
	docID := document.IDForDocument(person)

	if result := testStore.Delete(ctx, store.DeleteRequest{ID: docID, Info: person}); result.Outcome != store.DeleteSuccess {
		t.Errorf("expected delete of absent document to succeed, got %v", result.Outcome)
	}
}

// --- List Tests ---

func TestGetList_Paginates(t *testing.T) {
	ctx := context.Background()

	var infos []document.DocumentInfo
	for i := 0; i < 3; i++ {
		person := personInfo(fmt.Sprintf("list-%s-%d", testID, i))
		infos = append(infos, person)
		if result := upsert(ctx, person, map[string]any{"personId": person.Identity[0].Value}, store.Security{}); result.Outcome != store.UpsertInserted {
			t.Fatalf("expected inserted, got %v", result.Outcome)
		}
	}

	var collected int
	var token string
	for {
		page := testStore.GetList(ctx, store.ListRequest{
			Info:      infos[0].ResourceInfo,
			Limit:     2,
			PageToken: token,
		})
		if page.Outcome != store.ListSuccess {
			t.Fatalf("expected list success, got %v", page.Outcome)
		}
		collected += len(page.Documents)
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	if collected < 3 {
		t.Errorf("expected at least 3 documents across pages, got %d", collected)
	}

	for _, info := range infos {
		testStore.Delete(ctx, store.DeleteRequest{ID: document.IDForDocument(info), Info: info})
	}
}
