// Package view implements the distributed render-view core: the per-pass
// render decision, the process-role derivation and the collective delivery
// of representation pieces to the ranks that render them.
//
// # Collective passes
//
// Every exported RenderView method that triggers a pass (Update, UpdateLOD,
// StillRender, InteractiveRender, StreamingUpdate, DeliverStreamedPieces) is
// collective: every rank of the session must call it, in the same order,
// with representations registered in the same order. Decisions are always
// derived from reduced values so every rank reaches the same outcome; no
// code path in this package skips a collective on a subset of ranks.
//
// # Recoverable conditions
//
// Authoring errors (conflicting policy flags, a representation requiring both
// distributed and local-only rendering), empty inputs and partial
// redistribution failures are logged and resolved with a conservative
// default. They are never returned as errors.
package view
