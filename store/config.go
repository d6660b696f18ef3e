package store

import "fmt"

// maxTransactionItems is the DynamoDB TransactWriteItems size limit.
const maxTransactionItems = 100

// Config holds configuration for the Store.
type Config struct {
	// TableName is the name of the document table.
	// Default: "edstore_documents"
	TableName string

	// SecurityIndexName is the GSI used to resolve indirect student to
	// education-organization relationships.
	// Default: "SecurityStudentEdOrgGSI"
	SecurityIndexName string

	// TransactionItemLimit bounds how many condition checks and writes are
	// submitted in one transaction. A document whose reference checks cannot
	// fit in a single transaction is rejected rather than partially checked.
	// Default: 25. Max: 100 (the DynamoDB transaction limit).
	TransactionItemLimit int

	// EdgeWriteRetries is how many times a failed reference-edge batch is
	// retried before the failure is logged and dropped. Edge batches commit
	// independently of the primary item; a dropped batch degrades
	// delete-protection coverage, never primary correctness.
	// Default: 2
	EdgeWriteRetries int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TableName:            "edstore_documents",
		SecurityIndexName:    "SecurityStudentEdOrgGSI",
		TransactionItemLimit: 25,
		EdgeWriteRetries:     2,
	}
}

// validate fills zero values with defaults and rejects values the backing
// store cannot honor. Rejection happens at construction, not mid-transaction.
func (c *Config) validate() error {
	if c.TableName == "" {
		c.TableName = "edstore_documents"
	}
	if c.SecurityIndexName == "" {
		c.SecurityIndexName = "SecurityStudentEdOrgGSI"
	}
	if c.TransactionItemLimit == 0 {
		c.TransactionItemLimit = 25
	}
	if c.TransactionItemLimit < 1 || c.TransactionItemLimit > maxTransactionItems {
		return fmt.Errorf("edstore: transaction item limit %d outside 1..%d", c.TransactionItemLimit, maxTransactionItems)
	}
	if c.EdgeWriteRetries < 0 {
		return fmt.Errorf("edstore: edge write retries must not be negative, got %d", c.EdgeWriteRetries)
	}
	return nil
}
