// Package stage defines the contract between the pipeline orchestrator and its
// stage units, the opaque JSON Payload passed between them, and the two stage
// implementations vidflow ships: HTTPHandler for remotely hosted units and
// Func for in-process ones.
package stage
