// Package domain holds the shared entity types for the bounce pipeline.
//
// These are plain data structures with no behavior beyond small helpers.
// Business logic lives in the service packages (bounce, eventstore,
// engagement, reconciler); persistence lives in internal/repository.
// Nothing in this package imports database/sql or net/http.
package domain
