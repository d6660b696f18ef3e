package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// Document is the denormalized shape indexed for a stored document. The body
// fields are indexed individually for filtering; security attributes are
// lifted alongside them so queries can be scoped without a join.
type Document struct {
	ID   string
	Body map[string]any

	EdOrgID           string
	StudentID         string
	SecurityEdOrgID   string
	SecurityStudentID string
}

// Client wraps an OpenSearch connection for index synchronization and queries.
type Client struct {
	es     *opensearch.Client
	logger *slog.Logger
}

// New wraps an already-constructed OpenSearch client. A nil logger falls back
// to slog.Default().
func New(es *opensearch.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{es: es, logger: logger}
}

// NewClient constructs the OpenSearch connection from config and wraps it.
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	es, err := opensearch.NewClient(opensearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("opensearch client: %w", err)
	}

	return New(es, logger), nil
}

// Upsert indexes a document under its id, replacing any previous version.
// The full body is duplicated as an "info" JSON string so queries can return
// the document in one column.
func (c *Client) Upsert(ctx context.Context, index string, doc Document) error {
	body := make(map[string]any, len(doc.Body)+6)
	for k, v := range doc.Body {
		body[k] = v
	}

	withID := make(map[string]any, len(doc.Body)+1)
	withID["id"] = doc.ID
	for k, v := range doc.Body {
		withID[k] = v
	}
	info, err := json.Marshal(withID)
	if err != nil {
		return fmt.Errorf("marshal index document: %w", err)
	}

	body["id"] = doc.ID
	body["info"] = string(info)
	if doc.EdOrgID != "" {
		body["extractedEdOrgId"] = doc.EdOrgID
	}
	if doc.StudentID != "" {
		body["extractedStudentId"] = doc.StudentID
	}
	if doc.SecurityEdOrgID != "" {
		body["securityEdOrgId"] = doc.SecurityEdOrgID
	}
	if doc.SecurityStudentID != "" {
		body["securityStudentId"] = doc.SecurityStudentID
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal index document: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index:      index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(payload),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index %s/%s: %w", index, doc.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index %s/%s: %s", index, doc.ID, res.Status())
	}
	return nil
}

// RemoveIfExists deletes a document from its index. A document or index that
// is already absent is not an error.
func (c *Client) RemoveIfExists(ctx context.Context, index, id string) error {
	req := opensearchapi.DeleteRequest{
		Index:      index,
		DocumentID: id,
		Refresh:    "true",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", index, id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("delete %s/%s: %s", index, id, res.Status())
	}
	return nil
}
