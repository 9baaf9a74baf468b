package docdb

import (
	"context"
)

// DefaultPageSize is the page size used when enumerating databases and collections.
const DefaultPageSize = 100

// Client defines the interface for interacting with the document database service
type Client interface {
	// Database operations
	ListDatabases(ctx context.Context, opts ListOptions) (*DatabasePage, error)
	CreateDatabase(ctx context.Context, spec DatabaseSpec) (*DatabaseInfo, error)
	ReadDatabase(ctx context.Context, id string) (*DatabaseInfo, error)
	DeleteDatabase(ctx context.Context, id string) error

	// Collection operations
	ListCollections(ctx context.Context, databaseID string, opts ListOptions) (*CollectionPage, error)
	CreateCollection(ctx context.Context, databaseID string, spec CollectionSpec) (*CollectionInfo, error)
	ReadCollection(ctx context.Context, databaseID, id string) (*CollectionInfo, error)
	ReplaceCollection(ctx context.Context, databaseID string, spec CollectionSpec) (*CollectionInfo, error)
	DeleteCollection(ctx context.Context, databaseID, id string) error

	// Offer operations
	ReadOffer(ctx context.Context, resourceLink string) (*OfferInfo, error)
	ReplaceOffer(ctx context.Context, resourceLink string, throughput int) (*OfferInfo, error)

	// Document operations
	CreateDocument(ctx context.Context, collectionLink string, doc Document) (*Document, error)
	ReadDocument(ctx context.Context, collectionLink, id string) (*Document, error)
	ReplaceDocument(ctx context.Context, collectionLink string, doc Document) (*Document, error)
	DeleteDocument(ctx context.Context, collectionLink, id string) error
	ListDocuments(ctx context.Context, collectionLink string, opts ListOptions) (*DocumentPage, error)

	// Connection management
	Connect(ctx context.Context) error
	Close() error
}

// ListOptions controls one page of a feed read
type ListOptions struct {
	PageSize     int
	Continuation string
}

// IndexingMode controls when the service updates a collection's index
type IndexingMode string

const (
	IndexingModeConsistent IndexingMode = "consistent"
	IndexingModeLazy       IndexingMode = "lazy"
	IndexingModeNone       IndexingMode = "none"
)

// IndexKind is the kind of index maintained for a path
type IndexKind string

const (
	IndexKindHash    IndexKind = "Hash"
	IndexKindRange   IndexKind = "Range"
	IndexKindSpatial IndexKind = "Spatial"
)

// Index describes one index on an included path
type Index struct {
	Kind      IndexKind `json:"kind" yaml:"kind"`
	DataType  string    `json:"dataType,omitempty" yaml:"dataType,omitempty"`
	Precision int       `json:"precision,omitempty" yaml:"precision,omitempty"`
}

// IncludedPath is a document path that is indexed
type IncludedPath struct {
	Path    string  `json:"path" yaml:"path"`
	Indexes []Index `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

// ExcludedPath is a document path that is left out of the index
type ExcludedPath struct {
	Path string `json:"path" yaml:"path"`
}

// IndexingPolicy represents a collection's indexing configuration
type IndexingPolicy struct {
	Mode          IndexingMode   `json:"indexingMode,omitempty" yaml:"mode,omitempty"`
	Automatic     *bool          `json:"automatic,omitempty" yaml:"automatic,omitempty"`
	IncludedPaths []IncludedPath `json:"includedPaths,omitempty" yaml:"includedPaths,omitempty"`
	ExcludedPaths []ExcludedPath `json:"excludedPaths,omitempty" yaml:"excludedPaths,omitempty"`
}

// PartitionKey defines the document paths a collection is partitioned on
type PartitionKey struct {
	Paths []string `json:"paths,omitempty" yaml:"paths,omitempty"`
}

// DatabaseSpec represents the specification for creating a database
type DatabaseSpec struct {
	ID         string `json:"id"`
	Throughput int    `json:"-"`
}

// DatabaseInfo represents database information
type DatabaseInfo struct {
	ID       string `json:"id"`
	RID      string `json:"_rid"`
	SelfLink string `json:"_self"`
	ETag     string `json:"_etag"`
}

// CollectionSpec represents the specification for creating or replacing a collection
type CollectionSpec struct {
	ID             string          `json:"id"`
	IndexingPolicy *IndexingPolicy `json:"indexingPolicy,omitempty"`
	PartitionKey   *PartitionKey   `json:"partitionKey,omitempty"`
	DefaultTTL     *int            `json:"defaultTtl,omitempty"`
	Throughput     int             `json:"-"`
}

// CollectionInfo represents collection information
type CollectionInfo struct {
	ID             string          `json:"id"`
	RID            string          `json:"_rid"`
	SelfLink       string          `json:"_self"`
	ETag           string          `json:"_etag"`
	IndexingPolicy *IndexingPolicy `json:"indexingPolicy,omitempty"`
	PartitionKey   *PartitionKey   `json:"partitionKey,omitempty"`
	DefaultTTL     *int            `json:"defaultTtl,omitempty"`
}

// OfferInfo represents the provisioned throughput attached to a resource
type OfferInfo struct {
	ID           string `json:"id"`
	ResourceLink string `json:"resource"`
	Throughput   int    `json:"offerThroughput"`
}

// Document is a JSON document stored in a collection
type Document struct {
	ID       string         `json:"id"`
	RID      string         `json:"_rid,omitempty"`
	SelfLink string         `json:"_self,omitempty"`
	ETag     string         `json:"_etag,omitempty"`
	Body     map[string]any `json:"body,omitempty"`
}

// DatabasePage is one page of a database feed
type DatabasePage struct {
	Items        []DatabaseInfo `json:"Databases"`
	Continuation string         `json:"-"`
}

// CollectionPage is one page of a collection feed
type CollectionPage struct {
	Items        []CollectionInfo `json:"DocumentCollections"`
	Continuation string           `json:"-"`
}

// DocumentPage is one page of a document feed
type DocumentPage struct {
	Items        []Document `json:"Documents"`
	Continuation string     `json:"-"`
}

// DatabaseLink returns the self link of a database
func DatabaseLink(databaseID string) string {
	return "dbs/" + databaseID
}

// CollectionLink returns the self link of a collection
func CollectionLink(databaseID, collectionID string) string {
	return DatabaseLink(databaseID) + "/colls/" + collectionID
}

// ListAllDatabases reads every page of the database feed
func ListAllDatabases(ctx context.Context, client Client, pageSize int) ([]DatabaseInfo, error) {
	var all []DatabaseInfo
	opts := ListOptions{PageSize: pageSize}
	for {
		page, err := client.ListDatabases(ctx, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.Continuation == "" {
			return all, nil
		}
		opts.Continuation = page.Continuation
	}
}

// ListAllCollections reads every page of a database's collection feed
func ListAllCollections(ctx context.Context, client Client, databaseID string, pageSize int) ([]CollectionInfo, error) {
	var all []CollectionInfo
	opts := ListOptions{PageSize: pageSize}
	for {
		page, err := client.ListCollections(ctx, databaseID, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.Continuation == "" {
			return all, nil
		}
		opts.Continuation = page.Continuation
	}
}
