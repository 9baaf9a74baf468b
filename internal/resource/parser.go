package resource

import (
	"bytes"
	"fmt"
	"strings"

	"docprov/internal/docdb"

	"github.com/goccy/go-yaml"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	KindDatabase   = "Database"
	KindCollection = "Collection"
)

// ManifestParser handles parsing of YAML manifests into resources
type ManifestParser struct {
	registry *ManifestRegistry
}

// NewManifestParser creates a new manifest parser
func NewManifestParser() *ManifestParser {
	return &ManifestParser{
		registry: NewManifestRegistry(),
	}
}

// ParseManifest parses a multi-document YAML manifest and adds every resource to the registry
func (p *ManifestParser) ParseManifest(content []byte) error {
	for _, doc := range splitDocuments(content) {
		resource, err := p.parseDocument(doc)
		if err != nil {
			return err
		}

		if resource != nil {
			if err := p.registry.AddResource(resource); err != nil {
				return fmt.Errorf("failed to add resource to registry: %w", err)
			}
		}
	}

	return nil
}

// splitDocuments splits on document separator lines only, so "---" inside a
// value does not start a new document
func splitDocuments(content []byte) [][]byte {
	var docs [][]byte
	var current bytes.Buffer
	flush := func() {
		if doc := bytes.TrimSpace(current.Bytes()); len(doc) > 0 {
			docs = append(docs, append([]byte(nil), doc...))
		}
		current.Reset()
	}

	for _, line := range bytes.SplitAfter(content, []byte("\n")) {
		if bytes.Equal(bytes.TrimRight(line, " \t\r\n"), []byte("---")) {
			flush()
			continue
		}
		current.Write(line)
	}
	flush()
	return docs
}

// parseDocument parses a single YAML document into a resource
func (p *ManifestParser) parseDocument(content []byte) (Resource, error) {
	var base struct {
		metav1.TypeMeta   `json:",inline"`
		metav1.ObjectMeta `json:"metadata,omitempty"`
	}

	if err := yaml.Unmarshal(content, &base); err != nil {
		return nil, fmt.Errorf("failed to parse YAML metadata: %w", err)
	}

	// Documents without a kind carry nothing to provision
	if base.Kind == "" {
		return nil, nil
	}

	switch base.Kind {
	case KindDatabase:
		return p.parseDatabase(content)
	case KindCollection:
		return p.parseCollection(content)
	default:
		return nil, fmt.Errorf("unsupported resource kind: %s", base.Kind)
	}
}

// parseDatabase parses a Database resource
func (p *ManifestParser) parseDatabase(content []byte) (Resource, error) {
	var database DatabaseResource
	if err := yaml.Unmarshal(content, &database); err != nil {
		return nil, fmt.Errorf("failed to parse Database: %w", err)
	}

	database.ResourceType = ResourceTypeDatabase

	if err := p.validateDatabase(&database); err != nil {
		return nil, err
	}

	return &database, nil
}

// parseCollection parses a Collection resource
func (p *ManifestParser) parseCollection(content []byte) (Resource, error) {
	var collection CollectionResource
	if err := yaml.Unmarshal(content, &collection); err != nil {
		return nil, fmt.Errorf("failed to parse Collection: %w", err)
	}

	collection.ResourceType = ResourceTypeCollection

	if err := p.validateCollection(&collection); err != nil {
		return nil, err
	}

	return &collection, nil
}

// validateID applies the service's id rules
func validateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s name cannot be empty", kind)
	}
	if len(id) > 255 {
		return fmt.Errorf("%s name %q is longer than 255 characters", kind, id)
	}
	if strings.ContainsAny(id, `/\?#`) {
		return fmt.Errorf("%s name %q cannot contain '/', '\\', '?' or '#'", kind, id)
	}
	if strings.HasSuffix(id, " ") {
		return fmt.Errorf("%s name %q cannot end with a space", kind, id)
	}
	return nil
}

// validateDatabase validates a database resource
func (p *ManifestParser) validateDatabase(database *DatabaseResource) error {
	if err := validateID("database", database.GetName()); err != nil {
		return err
	}

	if database.Spec.Throughput < 0 {
		return fmt.Errorf("database %s: throughput cannot be negative", database.GetName())
	}

	return nil
}

// validateCollection validates a collection resource
func (p *ManifestParser) validateCollection(collection *CollectionResource) error {
	name := collection.GetName()
	if err := validateID("collection", name); err != nil {
		return err
	}

	if collection.Spec.Database == "" {
		return fmt.Errorf("collection %s: spec.database cannot be empty", name)
	}

	if collection.Spec.Throughput < 0 {
		return fmt.Errorf("collection %s: throughput cannot be negative", name)
	}

	if ttl := collection.Spec.DefaultTTL; ttl != nil && (*ttl == 0 || *ttl < -1) {
		return fmt.Errorf("collection %s: defaultTtl must be -1 or a positive number of seconds", name)
	}

	for _, path := range collection.Spec.PartitionKey {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("collection %s: partition key path %q must start with '/'", name, path)
		}
	}

	if errs := ValidateIndexingPolicy(collection.Spec.IndexingPolicy); len(errs) > 0 {
		var messages []string
		for _, err := range errs {
			messages = append(messages, err.Error())
		}
		return fmt.Errorf("collection %s: indexing policy validation failed:\n%s", name, strings.Join(messages, "\n"))
	}

	return nil
}

// ValidateIndexingPolicy returns every problem found in policy. A nil policy is valid.
func ValidateIndexingPolicy(policy *docdb.IndexingPolicy) []error {
	if policy == nil {
		return nil
	}

	var errs []error
	switch policy.Mode {
	case "", docdb.IndexingModeConsistent, docdb.IndexingModeLazy, docdb.IndexingModeNone:
	default:
		errs = append(errs, fmt.Errorf("unknown indexing mode %q", policy.Mode))
	}

	for _, included := range policy.IncludedPaths {
		if !strings.HasPrefix(included.Path, "/") {
			errs = append(errs, fmt.Errorf("included path %q must start with '/'", included.Path))
		}
		for _, index := range included.Indexes {
			switch index.Kind {
			case docdb.IndexKindHash, docdb.IndexKindRange, docdb.IndexKindSpatial:
			default:
				errs = append(errs, fmt.Errorf("included path %q: unknown index kind %q", included.Path, index.Kind))
			}
		}
	}

	for _, excluded := range policy.ExcludedPaths {
		if !strings.HasPrefix(excluded.Path, "/") {
			errs = append(errs, fmt.Errorf("excluded path %q must start with '/'", excluded.Path))
		}
	}

	return errs
}

// GetRegistry returns the populated registry
func (p *ManifestParser) GetRegistry() *ManifestRegistry {
	return p.registry
}
