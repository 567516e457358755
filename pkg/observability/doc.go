/*
Package observability turns session lifecycle hooks into Prometheus metrics.

Metrics registers its collectors on a caller supplied registerer and exposes
domain.LifecycleHooks that can be merged with any other hooks the host uses.
*/
package observability
