// Package search mirrors committed documents into an OpenSearch index and
// serves equality-filter queries over it through the SQL plugin.
package search

import (
	"strings"

	"github.com/jacentio/edstore/document"
	"github.com/jacentio/edstore/store"
)

// IndexNameFromTypeKey derives the index name for a resource-type partition
// key. Index names must be lowercase with no pound signs or dots.
func IndexNameFromTypeKey(pk string) string {
	return strings.NewReplacer("#", "$", ".", "-").Replace(strings.ToLower(pk))
}

// IndexNameForResource derives the index name for a resource type.
func IndexNameForResource(info document.ResourceInfo) string {
	return IndexNameFromTypeKey(store.TypeKeyFor(info))
}
