// Package docdb is the client surface of the remote document database service.
//
// It defines the Client interface covering databases, collections, offers and
// documents, together with three implementations:
//   - MemoryClient keeps everything in process and supports failure injection
//     and scripted conflicts for tests
//   - HTTPClient talks to the service's REST surface
//   - Handler serves any Client over that same REST surface
//
// Failures are returned as *ServiceError, which satisfies the apimachinery
// APIStatus interface.
package docdb
