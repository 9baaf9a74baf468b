package docdb

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultCollectionThroughput is the throughput assigned to a collection
// created without one
const DefaultCollectionThroughput = 400

// MemoryClient implements Client with in-process tables. It backs the local
// emulator and the tests.
type MemoryClient struct {
	databases   *xsync.MapOf[string, *DatabaseInfo]
	collections *xsync.MapOf[string, *CollectionInfo]
	offers      *xsync.MapOf[string, *OfferInfo]
	documents   *xsync.MapOf[string, *Document]

	seq atomic.Uint64

	mu sync.Mutex

	// Behavior controls
	shouldFailConnect bool
	operationErrors   map[string]error
	replaceConflicts  map[string][]time.Duration

	// Call tracking
	calls map[string]int
}

// NewMemoryClient creates an empty in-memory document service
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		databases:        xsync.NewMapOf[string, *DatabaseInfo](),
		collections:      xsync.NewMapOf[string, *CollectionInfo](),
		offers:           xsync.NewMapOf[string, *OfferInfo](),
		documents:        xsync.NewMapOf[string, *Document](),
		operationErrors:  make(map[string]error),
		replaceConflicts: make(map[string][]time.Duration),
		calls:            make(map[string]int),
	}
}

// Connect simulates connecting to the service
func (m *MemoryClient) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls["Connect"]++

	if m.shouldFailConnect {
		return NewUnavailable("Connect", "memory connection failed")
	}
	return nil
}

// Close simulates closing the connection
func (m *MemoryClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls["Close"]++
	return nil
}

// begin records the call and returns any injected failure for it
func (m *MemoryClient) begin(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[op]++
	return m.operationErrors[op]
}

// nextConflict pops the next scripted replace conflict for a resource link
func (m *MemoryClient) nextConflict(link string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hints, ok := m.replaceConflicts[link]
	if !ok || len(hints) == 0 {
		return 0, false
	}
	m.replaceConflicts[link] = hints[1:]
	return hints[0], true
}

func (m *MemoryClient) newRID() string {
	return strconv.FormatUint(m.seq.Add(1), 36)
}

func (m *MemoryClient) newETag() string {
	return fmt.Sprintf("\"%08x\"", m.seq.Add(1))
}

// ListDatabases returns one page of databases ordered by id
func (m *MemoryClient) ListDatabases(ctx context.Context, opts ListOptions) (*DatabasePage, error) {
	if err := m.begin("ListDatabases"); err != nil {
		return nil, err
	}

	var all []DatabaseInfo
	m.databases.Range(func(_ string, db *DatabaseInfo) bool {
		all = append(all, *db)
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	items, next, err := paginate(all, opts, "ListDatabases")
	if err != nil {
		return nil, err
	}
	return &DatabasePage{Items: items, Continuation: next}, nil
}

// CreateDatabase creates a database, failing with AlreadyExists on an id collision
func (m *MemoryClient) CreateDatabase(ctx context.Context, spec DatabaseSpec) (*DatabaseInfo, error) {
	if err := m.begin("CreateDatabase"); err != nil {
		return nil, err
	}
	if spec.ID == "" {
		return nil, NewBadRequest("CreateDatabase", "database id is required")
	}

	db := &DatabaseInfo{
		ID:       spec.ID,
		RID:      m.newRID(),
		SelfLink: DatabaseLink(spec.ID),
		ETag:     m.newETag(),
	}
	if _, loaded := m.databases.LoadOrStore(spec.ID, db); loaded {
		return nil, NewAlreadyExists("CreateDatabase", "database", spec.ID)
	}

	if spec.Throughput > 0 {
		m.storeOffer(db.SelfLink, spec.Throughput)
	}

	out := *db
	return &out, nil
}

// ReadDatabase returns a database by id
func (m *MemoryClient) ReadDatabase(ctx context.Context, id string) (*DatabaseInfo, error) {
	if err := m.begin("ReadDatabase"); err != nil {
		return nil, err
	}

	db, ok := m.databases.Load(id)
	if !ok {
		return nil, NewNotFound("ReadDatabase", "database", id)
	}
	out := *db
	return &out, nil
}

// DeleteDatabase removes a database with all its collections, offers and documents
func (m *MemoryClient) DeleteDatabase(ctx context.Context, id string) error {
	if err := m.begin("DeleteDatabase"); err != nil {
		return err
	}

	if _, ok := m.databases.LoadAndDelete(id); !ok {
		return NewNotFound("DeleteDatabase", "database", id)
	}

	prefix := DatabaseLink(id)
	m.offers.Delete(prefix)
	m.collections.Range(func(link string, _ *CollectionInfo) bool {
		if strings.HasPrefix(link, prefix+"/") {
			m.dropCollection(link)
		}
		return true
	})
	return nil
}

// ListCollections returns one page of a database's collections ordered by id
func (m *MemoryClient) ListCollections(ctx context.Context, databaseID string, opts ListOptions) (*CollectionPage, error) {
	if err := m.begin("ListCollections"); err != nil {
		return nil, err
	}
	if _, ok := m.databases.Load(databaseID); !ok {
		return nil, NewNotFound("ListCollections", "database", databaseID)
	}

	prefix := DatabaseLink(databaseID) + "/colls/"
	var all []CollectionInfo
	m.collections.Range(func(link string, coll *CollectionInfo) bool {
		if strings.HasPrefix(link, prefix) {
			all = append(all, *cloneCollection(coll))
		}
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	items, next, err := paginate(all, opts, "ListCollections")
	if err != nil {
		return nil, err
	}
	return &CollectionPage{Items: items, Continuation: next}, nil
}

// CreateCollection creates a collection inside an existing database
func (m *MemoryClient) CreateCollection(ctx context.Context, databaseID string, spec CollectionSpec) (*CollectionInfo, error) {
	if err := m.begin("CreateCollection"); err != nil {
		return nil, err
	}
	if spec.ID == "" {
		return nil, NewBadRequest("CreateCollection", "collection id is required")
	}
	if _, ok := m.databases.Load(databaseID); !ok {
		return nil, NewNotFound("CreateCollection", "database", databaseID)
	}

	policy := spec.IndexingPolicy.Clone()
	if policy == nil {
		policy = DefaultIndexingPolicy()
	}
	coll := cloneCollection(&CollectionInfo{
		ID:             spec.ID,
		IndexingPolicy: policy,
		PartitionKey:   spec.PartitionKey,
		DefaultTTL:     spec.DefaultTTL,
	})
	coll.RID = m.newRID()
	coll.SelfLink = CollectionLink(databaseID, spec.ID)
	coll.ETag = m.newETag()

	if _, loaded := m.collections.LoadOrStore(coll.SelfLink, coll); loaded {
		return nil, NewAlreadyExists("CreateCollection", "collection", spec.ID)
	}

	throughput := spec.Throughput
	if throughput <= 0 {
		throughput = DefaultCollectionThroughput
	}
	m.storeOffer(coll.SelfLink, throughput)

	return cloneCollection(coll), nil
}

// ReadCollection returns a collection by id
func (m *MemoryClient) ReadCollection(ctx context.Context, databaseID, id string) (*CollectionInfo, error) {
	if err := m.begin("ReadCollection"); err != nil {
		return nil, err
	}

	coll, ok := m.collections.Load(CollectionLink(databaseID, id))
	if !ok {
		return nil, NewNotFound("ReadCollection", "collection", id)
	}
	return cloneCollection(coll), nil
}

// ReplaceCollection replaces the mutable settings of a collection. Scripted
// conflicts are returned first, simulating an index transformation that is
// still in progress.
func (m *MemoryClient) ReplaceCollection(ctx context.Context, databaseID string, spec CollectionSpec) (*CollectionInfo, error) {
	if err := m.begin("ReplaceCollection"); err != nil {
		return nil, err
	}

	link := CollectionLink(databaseID, spec.ID)
	if hint, ok := m.nextConflict(link); ok {
		return nil, NewConflict("ReplaceCollection", "index transformation in progress", hint)
	}

	var replaceErr error
	updated, _ := m.collections.Compute(link, func(old *CollectionInfo, loaded bool) (*CollectionInfo, bool) {
		if !loaded {
			replaceErr = NewNotFound("ReplaceCollection", "collection", spec.ID)
			return nil, true
		}
		if spec.PartitionKey != nil && !samePartitionKey(old.PartitionKey, spec.PartitionKey) {
			replaceErr = NewBadRequest("ReplaceCollection", "partition key cannot be changed")
			return old, false
		}
		next := cloneCollection(old)
		if spec.IndexingPolicy != nil {
			next.IndexingPolicy = spec.IndexingPolicy.Clone()
		}
		next.DefaultTTL = nil
		if spec.DefaultTTL != nil {
			ttl := *spec.DefaultTTL
			next.DefaultTTL = &ttl
		}
		next.ETag = m.newETag()
		return next, false
	})
	if replaceErr != nil {
		return nil, replaceErr
	}
	return cloneCollection(updated), nil
}

// DeleteCollection removes a collection with its offer and documents
func (m *MemoryClient) DeleteCollection(ctx context.Context, databaseID, id string) error {
	if err := m.begin("DeleteCollection"); err != nil {
		return err
	}

	link := CollectionLink(databaseID, id)
	if _, ok := m.collections.Load(link); !ok {
		return NewNotFound("DeleteCollection", "collection", id)
	}
	m.dropCollection(link)
	return nil
}

func (m *MemoryClient) dropCollection(link string) {
	m.collections.Delete(link)
	m.offers.Delete(link)
	prefix := link + "/docs/"
	m.documents.Range(func(key string, _ *Document) bool {
		if strings.HasPrefix(key, prefix) {
			m.documents.Delete(key)
		}
		return true
	})
}

func (m *MemoryClient) storeOffer(resourceLink string, throughput int) {
	m.offers.Store(resourceLink, &OfferInfo{
		ID:           m.newRID(),
		ResourceLink: resourceLink,
		Throughput:   throughput,
	})
}

// ReadOffer returns the offer attached to a database or collection
func (m *MemoryClient) ReadOffer(ctx context.Context, resourceLink string) (*OfferInfo, error) {
	if err := m.begin("ReadOffer"); err != nil {
		return nil, err
	}

	offer, ok := m.offers.Load(resourceLink)
	if !ok {
		return nil, NewNotFound("ReadOffer", "offer", resourceLink)
	}
	out := *offer
	return &out, nil
}

// ReplaceOffer changes the throughput of an existing offer
func (m *MemoryClient) ReplaceOffer(ctx context.Context, resourceLink string, throughput int) (*OfferInfo, error) {
	if err := m.begin("ReplaceOffer"); err != nil {
		return nil, err
	}
	if throughput <= 0 {
		return nil, NewBadRequest("ReplaceOffer", "throughput must be positive")
	}
	if hint, ok := m.nextConflict(resourceLink); ok {
		return nil, NewConflict("ReplaceOffer", "offer replacement in progress", hint)
	}

	var replaceErr error
	updated, _ := m.offers.Compute(resourceLink, func(old *OfferInfo, loaded bool) (*OfferInfo, bool) {
		if !loaded {
			replaceErr = NewNotFound("ReplaceOffer", "offer", resourceLink)
			return nil, true
		}
		next := *old
		next.Throughput = throughput
		return &next, false
	})
	if replaceErr != nil {
		return nil, replaceErr
	}
	out := *updated
	return &out, nil
}

func documentKey(collectionLink, id string) string {
	return collectionLink + "/docs/" + id
}

// CreateDocument stores a new document in a collection
func (m *MemoryClient) CreateDocument(ctx context.Context, collectionLink string, doc Document) (*Document, error) {
	if err := m.begin("CreateDocument"); err != nil {
		return nil, err
	}
	if doc.ID == "" {
		return nil, NewBadRequest("CreateDocument", "document id is required")
	}
	if _, ok := m.collections.Load(collectionLink); !ok {
		return nil, NewNotFound("CreateDocument", "collection", collectionLink)
	}

	stored := cloneDocument(&doc)
	stored.RID = m.newRID()
	stored.SelfLink = documentKey(collectionLink, doc.ID)
	stored.ETag = m.newETag()
	if _, loaded := m.documents.LoadOrStore(stored.SelfLink, stored); loaded {
		return nil, NewAlreadyExists("CreateDocument", "document", doc.ID)
	}
	return cloneDocument(stored), nil
}

// ReadDocument returns a document by id
func (m *MemoryClient) ReadDocument(ctx context.Context, collectionLink, id string) (*Document, error) {
	if err := m.begin("ReadDocument"); err != nil {
		return nil, err
	}

	doc, ok := m.documents.Load(documentKey(collectionLink, id))
	if !ok {
		return nil, NewNotFound("ReadDocument", "document", id)
	}
	return cloneDocument(doc), nil
}

// ReplaceDocument replaces the body of an existing document
func (m *MemoryClient) ReplaceDocument(ctx context.Context, collectionLink string, doc Document) (*Document, error) {
	if err := m.begin("ReplaceDocument"); err != nil {
		return nil, err
	}

	var replaceErr error
	updated, _ := m.documents.Compute(documentKey(collectionLink, doc.ID), func(old *Document, loaded bool) (*Document, bool) {
		if !loaded {
			replaceErr = NewNotFound("ReplaceDocument", "document", doc.ID)
			return nil, true
		}
		next := cloneDocument(&doc)
		next.RID = old.RID
		next.SelfLink = old.SelfLink
		next.ETag = m.newETag()
		return next, false
	})
	if replaceErr != nil {
		return nil, replaceErr
	}
	return cloneDocument(updated), nil
}

// DeleteDocument removes a document
func (m *MemoryClient) DeleteDocument(ctx context.Context, collectionLink, id string) error {
	if err := m.begin("DeleteDocument"); err != nil {
		return err
	}

	if _, ok := m.documents.LoadAndDelete(documentKey(collectionLink, id)); !ok {
		return NewNotFound("DeleteDocument", "document", id)
	}
	return nil
}

// ListDocuments returns one page of a collection's documents ordered by id
func (m *MemoryClient) ListDocuments(ctx context.Context, collectionLink string, opts ListOptions) (*DocumentPage, error) {
	if err := m.begin("ListDocuments"); err != nil {
		return nil, err
	}
	if _, ok := m.collections.Load(collectionLink); !ok {
		return nil, NewNotFound("ListDocuments", "collection", collectionLink)
	}

	prefix := collectionLink + "/docs/"
	var all []Document
	m.documents.Range(func(key string, doc *Document) bool {
		if strings.HasPrefix(key, prefix) {
			all = append(all, *cloneDocument(doc))
		}
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	items, next, err := paginate(all, opts, "ListDocuments")
	if err != nil {
		return nil, err
	}
	return &DocumentPage{Items: items, Continuation: next}, nil
}

// paginate cuts one page out of a sorted feed. The continuation token is the
// offset of the next page.
func paginate[T any](all []T, opts ListOptions, op string) ([]T, string, error) {
	start := 0
	if opts.Continuation != "" {
		offset, err := strconv.Atoi(opts.Continuation)
		if err != nil || offset < 0 || offset > len(all) {
			return nil, "", NewBadRequest(op, fmt.Sprintf("invalid continuation %q", opts.Continuation))
		}
		start = offset
	}

	size := opts.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	end := start + size
	if end >= len(all) {
		return all[start:], "", nil
	}
	return all[start:end], strconv.Itoa(end), nil
}

// Test helper methods

// SetShouldFailConnect sets whether Connect should fail
func (m *MemoryClient) SetShouldFailConnect(shouldFail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailConnect = shouldFail
}

// SetShouldFailOperation makes an operation fail with a generic service error
func (m *MemoryClient) SetShouldFailOperation(operation string, shouldFail bool) {
	if shouldFail {
		m.SetOperationError(operation, NewUnavailable(operation, fmt.Sprintf("memory %s failed", operation)))
		return
	}
	m.SetOperationError(operation, nil)
}

// SetOperationError makes an operation return err; nil clears it
func (m *MemoryClient) SetOperationError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.operationErrors, operation)
		return
	}
	m.operationErrors[operation] = err
}

// ScriptReplaceConflicts queues conflicts for the next replace calls against a
// resource link, one per hint. A zero hint means the server sent no retry-after.
func (m *MemoryClient) ScriptReplaceConflicts(resourceLink string, hints ...time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceConflicts[resourceLink] = append(m.replaceConflicts[resourceLink], hints...)
}

// GetCallCount returns the number of times a method was called
func (m *MemoryClient) GetCallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Reset clears all data, behavior controls and call counts
func (m *MemoryClient) Reset() {
	m.databases.Clear()
	m.collections.Clear()
	m.offers.Clear()
	m.documents.Clear()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.operationErrors = make(map[string]error)
	m.replaceConflicts = make(map[string][]time.Duration)
	m.calls = make(map[string]int)
	m.shouldFailConnect = false
}
