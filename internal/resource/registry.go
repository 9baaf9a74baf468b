package resource

import (
	"fmt"
	"sort"
)

// ManifestRegistry holds parsed resources keyed by reference and the edges
// between them
type ManifestRegistry struct {
	Resources    map[string]Resource
	Dependencies map[string][]string
}

// NewManifestRegistry creates a new empty registry
func NewManifestRegistry() *ManifestRegistry {
	return &ManifestRegistry{
		Resources:    make(map[string]Resource),
		Dependencies: make(map[string][]string),
	}
}

// AddResource adds a resource to the registry and records its dependencies
func (r *ManifestRegistry) AddResource(resource Resource) error {
	if resource.GetName() == "" {
		return fmt.Errorf("resource name cannot be empty")
	}

	key := ReferenceOf(resource).String()
	if _, exists := r.Resources[key]; exists {
		return fmt.Errorf("resource '%s' is declared more than once", key)
	}

	r.Resources[key] = resource

	var deps []string
	for _, dep := range resource.GetDependencies() {
		deps = append(deps, dep.String())
	}
	r.Dependencies[key] = deps

	return nil
}

// GetResource retrieves a resource by reference
func (r *ManifestRegistry) GetResource(ref ResourceReference) (Resource, bool) {
	resource, exists := r.Resources[ref.String()]
	return resource, exists
}

// GetResourcesByType returns all resources of a specific type, ordered by key
func (r *ManifestRegistry) GetResourcesByType(resourceType ResourceType) []Resource {
	var resources []Resource
	for _, key := range r.sortedKeys() {
		if resource := r.Resources[key]; resource.GetType() == resourceType {
			resources = append(resources, resource)
		}
	}
	return resources
}

// GetAllResources returns all resources in the registry, ordered by key
func (r *ManifestRegistry) GetAllResources() []Resource {
	var resources []Resource
	for _, key := range r.sortedKeys() {
		resources = append(resources, r.Resources[key])
	}
	return resources
}

func (r *ManifestRegistry) sortedKeys() []string {
	keys := make([]string, 0, len(r.Resources))
	for key := range r.Resources {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ValidateDependencies checks that all dependencies are declared and that
// there is no cycle
func (r *ManifestRegistry) ValidateDependencies() error {
	for _, key := range r.sortedKeys() {
		for _, dep := range r.Dependencies[key] {
			if _, exists := r.Resources[dep]; !exists {
				return fmt.Errorf("resource '%s' depends on '%s' which does not exist", key, dep)
			}
		}
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, key := range r.sortedKeys() {
		if !visited[key] && r.hasCycle(key, visited, recStack) {
			return fmt.Errorf("circular dependency detected involving resource '%s'", key)
		}
	}

	return nil
}

// hasCycle performs DFS to detect cycles in the dependency graph
func (r *ManifestRegistry) hasCycle(key string, visited, recStack map[string]bool) bool {
	visited[key] = true
	recStack[key] = true

	for _, dep := range r.Dependencies[key] {
		if !visited[dep] {
			if r.hasCycle(dep, visited, recStack) {
				return true
			}
		} else if recStack[dep] {
			return true
		}
	}

	recStack[key] = false
	return false
}

// GetCreationOrder returns resources grouped in levels; every resource comes
// after the resources it depends on
func (r *ManifestRegistry) GetCreationOrder() ([][]Resource, error) {
	if err := r.ValidateDependencies(); err != nil {
		return nil, err
	}

	return r.topologicalSort()
}

// GetDeletionOrder returns resources in reverse dependency order for deletion
func (r *ManifestRegistry) GetDeletionOrder() ([][]Resource, error) {
	creationOrder, err := r.GetCreationOrder()
	if err != nil {
		return nil, err
	}

	deletionOrder := make([][]Resource, len(creationOrder))
	for i, level := range creationOrder {
		deletionOrder[len(creationOrder)-1-i] = level
	}

	return deletionOrder, nil
}

// topologicalSort orders resources by level using Kahn's algorithm
func (r *ManifestRegistry) topologicalSort() ([][]Resource, error) {
	inDegree := make(map[string]int, len(r.Resources))
	dependents := make(map[string][]string)
	for key := range r.Resources {
		inDegree[key] = len(r.Dependencies[key])
		for _, dep := range r.Dependencies[key] {
			dependents[dep] = append(dependents[dep], key)
		}
	}

	var queue []string
	for key, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, key)
		}
	}

	var result [][]Resource
	processed := 0
	for len(queue) > 0 {
		sort.Strings(queue)

		level := make([]Resource, 0, len(queue))
		var next []string
		for _, key := range queue {
			level = append(level, r.Resources[key])
			for _, dependent := range dependents[key] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}

		processed += len(level)
		result = append(result, level)
		queue = next
	}

	if processed != len(r.Resources) {
		return nil, fmt.Errorf("circular dependency detected in resource graph")
	}

	return result, nil
}

// ResolveReference resolves a reference to a declared resource
func (r *ManifestRegistry) ResolveReference(ref ResourceReference) (Resource, error) {
	resource, exists := r.GetResource(ref)
	if !exists {
		return nil, fmt.Errorf("referenced resource '%s' not found", ref)
	}
	return resource, nil
}
