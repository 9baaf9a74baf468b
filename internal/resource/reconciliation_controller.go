package resource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docprov/internal/docdb"
	"docprov/internal/logging"
)

// ReconciliationController runs manifest-level workflows against the document service
type ReconciliationController interface {
	// Apply makes every declared resource exist, in dependency order
	Apply(ctx context.Context, manifests []Resource, projectName string, dryRun bool) (*ReconciliationResult, error)

	// ApplyIndexing replaces the indexing policy of existing collections that drifted from their manifest
	ApplyIndexing(ctx context.Context, manifests []Resource, projectName string) (*ReconciliationResult, error)

	// ApplyThroughput replaces offers whose throughput differs from the manifest
	ApplyThroughput(ctx context.Context, manifests []Resource, projectName string) (*ReconciliationResult, error)

	// Teardown deletes every declared resource in reverse dependency order
	Teardown(ctx context.Context, manifests []Resource, projectName string) (*ReconciliationResult, error)

	// Status reports which declared resources exist and how they are provisioned
	Status(ctx context.Context, manifests []Resource, projectName string) (*StatusReport, error)

	// GetStatus returns the outcome of the last workflow run for a project
	GetStatus(projectName string) (*ReconciliationStatus, error)
}

// ReconciliationResult contains the results of a reconciliation operation
type ReconciliationResult struct {
	CreatedResources []ResourceAction       `json:"created_resources"`
	AdoptedResources []ResourceAction       `json:"adopted_resources"`
	UpdatedResources []ResourceAction       `json:"updated_resources"`
	DeletedResources []ResourceAction       `json:"deleted_resources"`
	SkippedResources []ResourceAction       `json:"skipped_resources"`
	Errors           []*ReconciliationError `json:"errors"`
	Summary          string                 `json:"summary"`
	Duration         time.Duration          `json:"duration"`
	ProjectName      string                 `json:"project_name"`
	DryRun           bool                   `json:"dry_run,omitempty"`
}

// ReconciliationStatus represents the outcome of the last run for a project
type ReconciliationStatus struct {
	ProjectName    string                 `json:"project_name"`
	LastReconciled time.Time              `json:"last_reconciled"`
	ResourceCounts map[string]int         `json:"resource_counts"`
	Status         string                 `json:"status"`
	Errors         []*ReconciliationError `json:"errors,omitempty"`
}

// ResourceAction represents an action taken on a resource during reconciliation
type ResourceAction struct {
	Type      ResourceType  `json:"type"`
	Name      string        `json:"name"`
	Scope     Scope         `json:"scope,omitempty"`
	Action    ActionType    `json:"action"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// ActionType represents the type of action taken on a resource
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionAdopt  ActionType = "adopt"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
	ActionSkip   ActionType = "skip"
)

// ResourceStatus is the observed state of one declared resource
type ResourceStatus struct {
	Type       ResourceType `json:"type"`
	Name       string       `json:"name"`
	Scope      Scope        `json:"scope,omitempty"`
	Exists     bool         `json:"exists"`
	SelfLink   string       `json:"self_link,omitempty"`
	Throughput int          `json:"throughput,omitempty"`
	HasOffer   bool         `json:"has_offer"`

	// IndexingInSync is set for existing collections that declare an indexing policy
	IndexingInSync *bool `json:"indexing_in_sync,omitempty"`
}

// StatusReport is the result of Status
type StatusReport struct {
	ProjectName string                 `json:"project_name"`
	Resources   []ResourceStatus       `json:"resources"`
	Errors      []*ReconciliationError `json:"errors,omitempty"`
}

// ControllerOptions configures a DefaultReconciliationController
type ControllerOptions struct {
	// PageSize is used when listing databases and collections
	PageSize int

	// ConflictAsExisting makes Apply adopt a resource created concurrently by someone else
	ConflictAsExisting bool

	// Mutator runs indexing and throughput replacements; the default policy is used when nil
	Mutator *RetryingMutator
}

// DefaultReconciliationController implements ReconciliationController
type DefaultReconciliationController struct {
	client      docdb.Client
	reconciler  *Reconciler
	databases   *DatabaseManager
	collections *CollectionManager
	offers      *OfferManager
	managers    map[ResourceType]ResourceManager
	mu          sync.RWMutex
	lastStatus  map[string]*ReconciliationStatus
}

// NewReconciliationController creates a new reconciliation controller
func NewReconciliationController(client docdb.Client, opts ControllerOptions) (*DefaultReconciliationController, error) {
	mutator := opts.Mutator
	if mutator == nil {
		var err error
		mutator, err = NewRetryingMutator(DefaultRetryPolicy())
		if err != nil {
			return nil, err
		}
	}

	controller := &DefaultReconciliationController{
		client:      client,
		reconciler:  NewReconciler(opts.ConflictAsExisting),
		databases:   NewDatabaseManager(client, opts.PageSize),
		collections: NewCollectionManager(client, opts.PageSize, mutator),
		offers:      NewOfferManager(client, mutator),
		lastStatus:  make(map[string]*ReconciliationStatus),
	}
	controller.managers = map[ResourceType]ResourceManager{
		ResourceTypeDatabase:   controller.databases,
		ResourceTypeCollection: controller.collections,
	}

	return controller, nil
}

func newResult(projectName string) *ReconciliationResult {
	return &ReconciliationResult{
		CreatedResources: make([]ResourceAction, 0),
		AdoptedResources: make([]ResourceAction, 0),
		UpdatedResources: make([]ResourceAction, 0),
		DeletedResources: make([]ResourceAction, 0),
		SkippedResources: make([]ResourceAction, 0),
		Errors:           make([]*ReconciliationError, 0),
		ProjectName:      projectName,
	}
}

// prepare builds the registry of the manifests and opens the connection
func (rc *DefaultReconciliationController) prepare(ctx context.Context, manifests []Resource, result *ReconciliationResult) (*ManifestRegistry, *docdb.ConnectedClient, error) {
	registry := NewManifestRegistry()
	for _, manifest := range manifests {
		if _, ok := rc.managers[manifest.GetType()]; !ok {
			return nil, nil, rc.addError(result, ErrorTypeConfiguration, ReferenceOf(manifest),
				fmt.Sprintf("no manager for resource type %s", manifest.GetType()), nil, false)
		}
		if err := registry.AddResource(manifest); err != nil {
			return nil, nil, rc.addError(result, ErrorTypeValidation, ReferenceOf(manifest),
				"manifest validation failed", err, false)
		}
	}

	if err := registry.ValidateDependencies(); err != nil {
		return nil, nil, rc.addError(result, ErrorTypeDependency, ResourceReference{},
			"failed to determine resource order", err, false)
	}

	conn := docdb.NewConnectedClient(rc.client)
	if _, err := conn.GetClient(ctx); err != nil {
		return nil, nil, rc.addError(result, ErrorTypeService, ResourceReference{},
			"unable to reach the document service", err, true)
	}

	return registry, conn, nil
}

// release closes conn once a workflow is done with it
func release(conn *docdb.ConnectedClient) {
	if err := conn.Close(); err != nil {
		logging.Warn("Controller", "failed to close document service client: %v", err)
	}
}

// creationOrder levels registry for creation, recording a dependency error
// in result when it cannot
func (rc *DefaultReconciliationController) creationOrder(registry *ManifestRegistry, result *ReconciliationResult) ([][]Resource, error) {
	order, err := registry.GetCreationOrder()
	if err != nil {
		return nil, rc.addError(result, ErrorTypeDependency, ResourceReference{},
			"failed to determine creation order", err, false)
	}
	return order, nil
}

// Apply performs the ensure-exists workflow for every manifest
func (rc *DefaultReconciliationController) Apply(ctx context.Context, manifests []Resource, projectName string, dryRun bool) (*ReconciliationResult, error) {
	startTime := time.Now()
	result := newResult(projectName)
	result.DryRun = dryRun

	if len(manifests) == 0 {
		result.Summary = "No resources to reconcile"
		return result, nil
	}

	registry, conn, err := rc.prepare(ctx, manifests, result)
	if err != nil {
		return result, err
	}
	defer release(conn)

	creationOrder, err := rc.creationOrder(registry, result)
	if err != nil {
		return result, err
	}

	failed := make(map[string]bool)
	for levelIndex, level := range creationOrder {
		logging.Debug("Controller", "applying level %d with %d resources", levelIndex, len(level))
		for _, resource := range level {
			if ctx.Err() != nil {
				rc.addError(result, ErrorTypeService, ResourceReference{}, "apply interrupted", ctx.Err(), true)
				rc.finish(result, startTime)
				return result, nil
			}

			ref := ReferenceOf(resource)
			if dep, blocked := blockedBy(resource, failed); blocked {
				failed[ref.String()] = true
				rc.addError(result, ErrorTypeDependency, ref,
					fmt.Sprintf("dependency %s was not applied", dep), nil, false)
				continue
			}

			if dryRun {
				rc.planEnsure(ctx, result, resource)
				continue
			}
			if !rc.executeEnsure(ctx, result, resource) {
				failed[ref.String()] = true
			}
		}
	}

	rc.finish(result, startTime)
	return result, nil
}

func blockedBy(resource Resource, failed map[string]bool) (ResourceReference, bool) {
	for _, dep := range resource.GetDependencies() {
		if failed[dep.String()] {
			return dep, true
		}
	}
	return ResourceReference{}, false
}

// planEnsure records what Apply would do without creating anything
func (rc *DefaultReconciliationController) planEnsure(ctx context.Context, result *ReconciliationResult, resource Resource) {
	desc := resource.Descriptor()
	lookup, err := rc.reconciler.Lookup(ctx, desc.Scope, desc.ID, rc.managers[desc.Type])
	switch {
	case err != nil && IsNotFound(err):
		// The parent is missing, so the resource would be created along with it
	case err != nil:
		rc.addError(result, ErrorTypeService, desc.Reference(), "failed to look up resource", err, false)
		return
	case lookup.Found:
		result.SkippedResources = append(result.SkippedResources, newAction(desc, ActionSkip, "already exists", 0))
		return
	}
	result.CreatedResources = append(result.CreatedResources, newAction(desc, ActionCreate, "would be created", 0))
}

// executeEnsure runs EnsureExists for one resource and reports whether it succeeded
func (rc *DefaultReconciliationController) executeEnsure(ctx context.Context, result *ReconciliationResult, resource Resource) bool {
	desc := resource.Descriptor()
	manager := rc.managers[desc.Type]
	actionStart := time.Now()

	ensured, err := rc.reconciler.EnsureExists(ctx, desc, manager, manager)
	if err != nil {
		logging.Error("Controller", err, "failed to ensure %s", desc.Reference())
		rc.addError(result, ErrorTypeService, desc.Reference(), "failed to ensure resource exists", err, false)
		return false
	}

	elapsed := time.Since(actionStart)
	switch ensured.Action {
	case EnsureActionCreated:
		result.CreatedResources = append(result.CreatedResources, newAction(desc, ActionCreate, ensured.Handle.SelfLink, elapsed))
	case EnsureActionAdopted:
		result.AdoptedResources = append(result.AdoptedResources, newAction(desc, ActionAdopt, "created concurrently, adopted", elapsed))
	default:
		result.SkippedResources = append(result.SkippedResources, newAction(desc, ActionSkip, "already exists", elapsed))
	}
	return true
}

// ApplyIndexing replaces drifted indexing policies of declared collections
func (rc *DefaultReconciliationController) ApplyIndexing(ctx context.Context, manifests []Resource, projectName string) (*ReconciliationResult, error) {
	startTime := time.Now()
	result := newResult(projectName)

	registry, conn, err := rc.prepare(ctx, manifests, result)
	if err != nil {
		return result, err
	}
	defer release(conn)

	for _, resource := range registry.GetResourcesByType(ResourceTypeCollection) {
		collection, ok := resource.(*CollectionResource)
		if !ok {
			continue
		}
		desc := collection.Descriptor()
		desired := collection.Spec.IndexingPolicy
		if desired == nil {
			result.SkippedResources = append(result.SkippedResources, newAction(desc, ActionSkip, "no indexing policy declared", 0))
			continue
		}

		current, err := rc.collections.Read(ctx, collection.Spec.Database, collection.GetName())
		if err != nil {
			rc.addError(result, ErrorTypeService, desc.Reference(), "failed to read collection", err, false)
			continue
		}
		if docdb.IndexingPolicyEqual(current.IndexingPolicy, desired) {
			result.SkippedResources = append(result.SkippedResources, newAction(desc, ActionSkip, "indexing policy up to date", 0))
			continue
		}

		actionStart := time.Now()
		if _, err := rc.collections.ReplaceIndexingPolicy(ctx, collection.Spec.Database, collection.GetName(), desired); err != nil {
			rc.addError(result, ErrorTypeService, desc.Reference(), "failed to replace indexing policy", err, false)
			continue
		}
		result.UpdatedResources = append(result.UpdatedResources,
			newAction(desc, ActionUpdate, "indexing policy replaced", time.Since(actionStart)))
	}

	rc.finish(result, startTime)
	return result, nil
}

// desiredThroughput returns the offer link and declared throughput of a resource
func desiredThroughput(resource Resource) (string, int) {
	switch r := resource.(type) {
	case *DatabaseResource:
		return docdb.DatabaseLink(r.GetName()), r.Spec.Throughput
	case *CollectionResource:
		return docdb.CollectionLink(r.Spec.Database, r.GetName()), r.Spec.Throughput
	default:
		return "", 0
	}
}

// ApplyThroughput replaces offers whose throughput differs from the manifests
func (rc *DefaultReconciliationController) ApplyThroughput(ctx context.Context, manifests []Resource, projectName string) (*ReconciliationResult, error) {
	startTime := time.Now()
	result := newResult(projectName)

	registry, conn, err := rc.prepare(ctx, manifests, result)
	if err != nil {
		return result, err
	}
	defer release(conn)

	for _, resource := range registry.GetAllResources() {
		desc := resource.Descriptor()
		link, throughput := desiredThroughput(resource)
		if throughput <= 0 {
			result.SkippedResources = append(result.SkippedResources, newAction(desc, ActionSkip, "no throughput declared", 0))
			continue
		}

		current, hasOffer, err := rc.offers.Throughput(ctx, link)
		if err != nil {
			rc.addError(result, ErrorTypeService, desc.Reference(), "failed to read offer", err, false)
			continue
		}
		if !hasOffer {
			rc.addError(result, ErrorTypeConfiguration, desc.Reference(),
				fmt.Sprintf("%s has no offer of its own", link), nil, false)
			continue
		}
		if current == throughput {
			result.SkippedResources = append(result.SkippedResources, newAction(desc, ActionSkip, "throughput up to date", 0))
			continue
		}

		actionStart := time.Now()
		if _, err := rc.offers.SetThroughput(ctx, link, throughput); err != nil {
			rc.addError(result, ErrorTypeService, desc.Reference(), "failed to replace offer", err, false)
			continue
		}
		result.UpdatedResources = append(result.UpdatedResources,
			newAction(desc, ActionUpdate, fmt.Sprintf("throughput %d -> %d", current, throughput), time.Since(actionStart)))
	}

	rc.finish(result, startTime)
	return result, nil
}

// Teardown deletes declared resources, dependents first. Resources that are
// already gone are skipped.
func (rc *DefaultReconciliationController) Teardown(ctx context.Context, manifests []Resource, projectName string) (*ReconciliationResult, error) {
	startTime := time.Now()
	result := newResult(projectName)

	registry, conn, err := rc.prepare(ctx, manifests, result)
	if err != nil {
		return result, err
	}
	defer release(conn)

	deletionOrder, err := registry.GetDeletionOrder()
	if err != nil {
		return result, rc.addError(result, ErrorTypeDependency, ResourceReference{},
			"failed to determine deletion order", err, false)
	}

	for _, level := range deletionOrder {
		for _, resource := range level {
			if ctx.Err() != nil {
				rc.addError(result, ErrorTypeService, ResourceReference{}, "teardown interrupted", ctx.Err(), true)
				rc.finish(result, startTime)
				return result, nil
			}

			desc := resource.Descriptor()
			actionStart := time.Now()
			err := rc.managers[desc.Type].Delete(ctx, desc.Reference())
			switch {
			case err == nil:
				result.DeletedResources = append(result.DeletedResources, newAction(desc, ActionDelete, "", time.Since(actionStart)))
			case IsNotFound(err):
				result.SkippedResources = append(result.SkippedResources, newAction(desc, ActionSkip, "already absent", 0))
			default:
				rc.addError(result, ErrorTypeService, desc.Reference(), "failed to delete resource", err, false)
			}
		}
	}

	rc.finish(result, startTime)
	return result, nil
}

// Status observes every declared resource without changing anything
func (rc *DefaultReconciliationController) Status(ctx context.Context, manifests []Resource, projectName string) (*StatusReport, error) {
	report := &StatusReport{ProjectName: projectName, Resources: make([]ResourceStatus, 0)}
	result := newResult(projectName)

	registry, conn, err := rc.prepare(ctx, manifests, result)
	if err != nil {
		report.Errors = result.Errors
		return report, err
	}
	defer release(conn)

	creationOrder, err := rc.creationOrder(registry, result)
	if err != nil {
		report.Errors = result.Errors
		return report, err
	}

	for _, level := range creationOrder {
		for _, resource := range level {
			desc := resource.Descriptor()
			status := ResourceStatus{Type: desc.Type, Name: desc.ID, Scope: desc.Scope}

			lookup, err := rc.reconciler.Lookup(ctx, desc.Scope, desc.ID, rc.managers[desc.Type])
			if err != nil && !IsNotFound(err) {
				report.Errors = append(report.Errors, NewServiceError(desc.Reference(), "failed to look up resource", err))
				report.Resources = append(report.Resources, status)
				continue
			}
			if !lookup.Found {
				report.Resources = append(report.Resources, status)
				continue
			}

			status.Exists = true
			status.SelfLink = lookup.Handle.SelfLink

			throughput, hasOffer, err := rc.offers.Throughput(ctx, lookup.Handle.SelfLink)
			if err != nil {
				report.Errors = append(report.Errors, NewServiceError(desc.Reference(), "failed to read offer", err))
			}
			status.Throughput = throughput
			status.HasOffer = hasOffer

			if collection, ok := resource.(*CollectionResource); ok && collection.Spec.IndexingPolicy != nil {
				if info, ok := lookup.Handle.Metadata.(*docdb.CollectionInfo); ok {
					inSync := docdb.IndexingPolicyEqual(info.IndexingPolicy, collection.Spec.IndexingPolicy)
					status.IndexingInSync = &inSync
				}
			}

			report.Resources = append(report.Resources, status)
		}
	}

	return report, nil
}

// GetStatus returns the outcome of the last run for a project
func (rc *DefaultReconciliationController) GetStatus(projectName string) (*ReconciliationStatus, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	status, exists := rc.lastStatus[projectName]
	if !exists {
		return &ReconciliationStatus{
			ProjectName:    projectName,
			ResourceCounts: make(map[string]int),
			Status:         "unknown",
		}, nil
	}
	return status, nil
}

func newAction(desc Descriptor, action ActionType, message string, duration time.Duration) ResourceAction {
	return ResourceAction{
		Type:      desc.Type,
		Name:      desc.ID,
		Scope:     desc.Scope,
		Action:    action,
		Message:   message,
		Duration:  duration,
		Timestamp: time.Now(),
	}
}

func (rc *DefaultReconciliationController) addError(result *ReconciliationResult, errorType ErrorType, resource ResourceReference, message string, cause error, recoverable bool) error {
	var recErr *ReconciliationError
	if errorType == ErrorTypeService && cause != nil {
		recErr = NewServiceError(resource, message, cause)
	} else {
		recErr = NewReconciliationError(errorType, resource, message, cause, recoverable)
	}
	result.Errors = append(result.Errors, recErr)
	return recErr
}

func (rc *DefaultReconciliationController) finish(result *ReconciliationResult, startTime time.Time) {
	rc.updateReconciliationStatus(result, startTime)
	result.Duration = time.Since(startTime)
	result.Summary = generateSummary(result)
}

// updateReconciliationStatus updates the internal status tracking
func (rc *DefaultReconciliationController) updateReconciliationStatus(result *ReconciliationResult, startTime time.Time) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	status := &ReconciliationStatus{
		ProjectName:    result.ProjectName,
		LastReconciled: startTime,
		ResourceCounts: map[string]int{
			"created": len(result.CreatedResources),
			"adopted": len(result.AdoptedResources),
			"updated": len(result.UpdatedResources),
			"deleted": len(result.DeletedResources),
			"skipped": len(result.SkippedResources),
		},
		Errors: result.Errors,
	}

	if len(result.Errors) == 0 {
		status.Status = "healthy"
	} else {
		status.Status = "degraded"
		for _, err := range result.Errors {
			if !err.Recoverable {
				status.Status = "failed"
				break
			}
		}
	}

	rc.lastStatus[result.ProjectName] = status
}

func generateSummary(result *ReconciliationResult) string {
	prefix := "Reconciliation"
	if result.DryRun {
		prefix = "Dry run"
	}

	counts := fmt.Sprintf("%d created, %d adopted, %d updated, %d deleted, %d unchanged",
		len(result.CreatedResources), len(result.AdoptedResources), len(result.UpdatedResources),
		len(result.DeletedResources), len(result.SkippedResources))

	if len(result.Errors) > 0 {
		return fmt.Sprintf("%s completed with errors: %s, %d errors", prefix, counts, len(result.Errors))
	}
	return fmt.Sprintf("%s completed successfully: %s", prefix, counts)
}
