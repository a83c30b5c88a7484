// Package driving provides interfaces for inbound use cases
// (primary ports). The HTTP/API layer, auth and the presentation
// agent live outside this repository and call the core through these
// interfaces only.
package driving
