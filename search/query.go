package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/jacentio/edstore/document"
)

// sqlPath is the OpenSearch SQL plugin endpoint.
const sqlPath = "/_plugins/_sql"

// QueryRequest carries an equality-filter query over one resource type.
type QueryRequest struct {
	Info document.ResourceInfo

	// Filters are field = value equality conditions, ANDed together.
	Filters map[string]string

	// Limit and Offset page the result. Zero values are omitted from the query.
	Limit  int
	Offset int

	// TraceID correlates log entries for this query.
	TraceID string
}

// QueryOutcome is the result category of a Query operation.
type QueryOutcome int

const (
	QueryUnknownFailure QueryOutcome = iota
	QuerySuccess
	QueryInvalid
)

// QueryResult is the outcome of a Query operation.
type QueryResult struct {
	Outcome   QueryOutcome
	Documents []map[string]any

	// InvalidDetail describes the query problem when the outcome is
	// QueryInvalid, suitable for returning to the caller.
	InvalidDetail string
}

// sqlError is the error shape returned by the SQL plugin.
type sqlError struct {
	Error struct {
		Type    string `json:"type"`
		Reason  string `json:"reason"`
		Details string `json:"details"`
	} `json:"error"`
	Status int `json:"status"`
}

// Query runs an equality-filter query against a resource type's index via the
// SQL plugin. An index that does not exist yet, or a filter naming an unknown
// field, is an invalid query; transport and cluster faults are unknown
// failures.
func (c *Client) Query(ctx context.Context, req QueryRequest) QueryResult {
	sql := buildQuery(IndexNameForResource(req.Info), req.Filters, req.Limit, req.Offset)
	c.logger.Debug("search query", "traceId", req.TraceID, "query", sql)

	payload, err := json.Marshal(map[string]string{"query": sql})
	if err != nil {
		c.logger.Error("search query marshal failed", "traceId", req.TraceID, "error", err)
		return QueryResult{Outcome: QueryUnknownFailure}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, sqlPath, strings.NewReader(string(payload)))
	if err != nil {
		c.logger.Error("search query request build failed", "traceId", req.TraceID, "error", err)
		return QueryResult{Outcome: QueryUnknownFailure}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.es.Perform(httpReq)
	if err != nil {
		c.logger.Error("search query transport failed", "traceId", req.TraceID, "error", err)
		return QueryResult{Outcome: QueryUnknownFailure}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		c.logger.Error("search query read failed", "traceId", req.TraceID, "error", err)
		return QueryResult{Outcome: QueryUnknownFailure}
	}

	if res.StatusCode >= 300 {
		return c.classifyQueryError(raw, req.TraceID)
	}

	documents, err := documentsFromRows(raw)
	if err != nil {
		c.logger.Error("search query result parse failed", "traceId", req.TraceID, "error", err)
		return QueryResult{Outcome: QueryUnknownFailure}
	}

	return QueryResult{Outcome: QuerySuccess, Documents: documents}
}

// classifyQueryError separates caller-correctable query problems from cluster
// faults.
func (c *Client) classifyQueryError(raw []byte, traceID string) QueryResult {
	var failure sqlError
	if err := json.Unmarshal(raw, &failure); err != nil {
		c.logger.Error("search query failed with unparseable error", "traceId", traceID, "body", string(raw))
		return QueryResult{Outcome: QueryUnknownFailure}
	}

	switch failure.Error.Type {
	case "IndexNotFoundException":
		// No document of this type has been indexed yet.
		return QueryResult{Outcome: QueryInvalid}
	case "SemanticAnalysisException":
		c.logger.Debug("search query rejected", "traceId", traceID, "detail", failure.Error.Details)
		return QueryResult{Outcome: QueryInvalid, InvalidDetail: failure.Error.Details}
	default:
		c.logger.Error("search query failed", "traceId", traceID,
			"type", failure.Error.Type, "reason", failure.Error.Reason)
		return QueryResult{Outcome: QueryUnknownFailure}
	}
}

// buildQuery renders the SQL statement. Filter fields are sorted so the
// statement is deterministic for a given request.
func buildQuery(index string, filters map[string]string, limit, offset int) string {
	var b strings.Builder
	b.WriteString("SELECT info FROM ")
	b.WriteString(index)

	if len(filters) > 0 {
		fields := make([]string, 0, len(filters))
		for field := range filters {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		conditions := make([]string, 0, len(fields))
		for _, field := range fields {
			value := strings.ReplaceAll(filters[field], "'", "''")
			conditions = append(conditions, fmt.Sprintf("%s = '%s'", field, value))
		}

		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
		b.WriteString(" ORDER BY _doc")
	}

	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}

	return b.String()
}

// documentsFromRows parses the SQL plugin response. Each datarow holds one
// column: the "info" JSON string of the indexed document.
func documentsFromRows(raw []byte) ([]map[string]any, error) {
	var body struct {
		Datarows [][]json.RawMessage `json:"datarows"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}

	documents := make([]map[string]any, 0, len(body.Datarows))
	for _, row := range body.Datarows {
		if len(row) == 0 {
			continue
		}

		var info string
		if err := json.Unmarshal(row[0], &info); err != nil {
			return nil, err
		}

		var doc map[string]any
		if err := json.Unmarshal([]byte(info), &doc); err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}

	return documents, nil
}
