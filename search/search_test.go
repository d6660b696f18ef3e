package search

import (
	"testing"

	"github.com/jacentio/edstore/document"
)

// --- Index Name Tests ---

func TestIndexNameFromTypeKey(t *testing.T) {
	tests := []struct {
		pk   string
		want string
	}{
		{"TYPE#Ed-Fi#3.3.1-b#School", "type$ed-fi$3-3-1-b$school"},
		{"TYPE#Ed-Fi#3.3.1-b#GradeLevelDescriptor", "type$ed-fi$3-3-1-b$gradeleveldescriptor"},
		{"TYPE#Sample#1.0#Bus", "type$sample$1-0$bus"},
	}
	for _, tc := range tests {
		if got := IndexNameFromTypeKey(tc.pk); got != tc.want {
			t.Errorf("IndexNameFromTypeKey(%q) = %q, want %q", tc.pk, got, tc.want)
		}
	}
}

func TestIndexNameForResource_DescriptorSuffix(t *testing.T) {
	got := IndexNameForResource(document.ResourceInfo{
		ProjectName:    "Ed-Fi",
		ProjectVersion: "3.3.1-b",
		ResourceName:   "GradeLevel",
		IsDescriptor:   true,
	})
	if got != "type$ed-fi$3-3-1-b$gradeleveldescriptor" {
		t.Errorf("unexpected index name %q", got)
	}
}

// --- Query Building Tests ---

func TestBuildQuery_NoFilters(t *testing.T) {
	got := buildQuery("type$ed-fi$3-3-1-b$school", nil, 0, 0)
	if got != "SELECT info FROM type$ed-fi$3-3-1-b$school" {
		t.Errorf("unexpected query %q", got)
	}
}

func TestBuildQuery_FiltersAreSortedAndAnded(t *testing.T) {
	got := buildQuery("idx", map[string]string{
		"schoolId":  "123",
		"nameOfInstitution": "Grand Bend",
	}, 0, 0)
	want := "SELECT info FROM idx WHERE nameOfInstitution = 'Grand Bend' AND schoolId = '123' ORDER BY _doc"
	if got != want {
		t.Errorf("unexpected query %q", got)
	}
}

func TestBuildQuery_LimitAndOffset(t *testing.T) {
	got := buildQuery("idx", map[string]string{"schoolId": "123"}, 10, 20)
	want := "SELECT info FROM idx WHERE schoolId = '123' ORDER BY _doc LIMIT 10 OFFSET 20"
	if got != want {
		t.Errorf("unexpected query %q", got)
	}
}

func TestBuildQuery_EscapesQuotes(t *testing.T) {
	got := buildQuery("idx", map[string]string{"name": "O'Brien"}, 0, 0)
	want := "SELECT info FROM idx WHERE name = 'O''Brien' ORDER BY _doc"
	if got != want {
		t.Errorf("unexpected query %q", got)
	}
}

// --- Result Parsing Tests ---

func TestDocumentsFromRows(t *testing.T) {
	raw := []byte(`{
		"schema": [{"name": "info", "type": "text"}],
		"datarows": [
			["{\"id\":\"abc\",\"schoolId\":\"123\"}"],
			["{\"id\":\"def\",\"schoolId\":\"456\"}"]
		],
		"total": 2
	}`)

	docs, err := documentsFromRows(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0]["id"] != "abc" || docs[0]["schoolId"] != "123" {
		t.Errorf("unexpected first document %v", docs[0])
	}
	if docs[1]["id"] != "def" {
		t.Errorf("unexpected second document %v", docs[1])
	}
}

func TestDocumentsFromRows_Empty(t *testing.T) {
	docs, err := documentsFromRows([]byte(`{"datarows": []}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected no documents, got %d", len(docs))
	}
}

func TestDocumentsFromRows_Malformed(t *testing.T) {
	if _, err := documentsFromRows([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed response")
	}
	if _, err := documentsFromRows([]byte(`{"datarows": [["not json"]]}`)); err == nil {
		t.Error("expected error for malformed row document")
	}
}

// --- Error Classification Tests ---

func TestClassifyQueryError(t *testing.T) {
	c := New(nil, nil)

	tests := []struct {
		name    string
		body    string
		outcome QueryOutcome
		detail  string
	}{
		{
			name:    "index not found",
			body:    `{"error":{"type":"IndexNotFoundException","reason":"no such index"},"status":404}`,
			outcome: QueryInvalid,
		},
		{
			name:    "semantic analysis",
			body:    `{"error":{"type":"SemanticAnalysisException","reason":"invalid","details":"field [bogus] cannot be found"},"status":400}`,
			outcome: QueryInvalid,
			detail:  "field [bogus] cannot be found",
		},
		{
			name:    "server fault",
			body:    `{"error":{"type":"SearchPhaseExecutionException","reason":"all shards failed"},"status":503}`,
			outcome: QueryUnknownFailure,
		},
		{
			name:    "unparseable",
			body:    `<html>bad gateway</html>`,
			outcome: QueryUnknownFailure,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := c.classifyQueryError([]byte(tc.body), "trace-1")
			if result.Outcome != tc.outcome {
				t.Errorf("expected outcome %v, got %v", tc.outcome, result.Outcome)
			}
			if result.InvalidDetail != tc.detail {
				t.Errorf("expected detail %q, got %q", tc.detail, result.InvalidDetail)
			}
		})
	}
}

// --- Config Tests ---

func TestConfigValidate_DefaultAddress(t *testing.T) {
	c := Config{}
	if err := c.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Addresses) != 1 || c.Addresses[0] != "http://localhost:9200" {
		t.Errorf("unexpected default addresses %v", c.Addresses)
	}
}
