package connectors

import "github.com/shashank-sharma/flowforge/pkg/connector"

// Register adds every reference connector (SPEC_FULL.md §4.2.1) to r. Engine
// composition roots call this once at startup before accepting workflows.
func Register(r *connector.Registry) {
	r.Register(StaticSourceID, NewStaticSource)
	r.Register(HTTPSourceID, NewHTTPSource)
	r.Register(IdentityProcessorID, NewIdentityProcessor)
	r.Register(JSONSchemaGateID, NewJSONSchemaGate)
	r.Register(FilterProcessorID, NewFilterProcessor)
	r.Register(MemoryDestinationID, NewMemoryDestination)
}
