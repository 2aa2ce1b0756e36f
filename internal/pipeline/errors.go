// Package pipeline contains the per-call audio processing core: the
// utterance segmenter state machine, the turn round-trip orchestrator, the
// stream session that ties them together, and the manager that owns all
// live sessions.
//
// Transport adapters feed the pipeline exclusively through the three
// [Manager] operations (StartSession, HandleChunk, StopSession) and receive
// reply audio through the [Sink] they register at session start. All
// VAD gating, segmentation, and collaborator orchestration lives here, so
// adapters stay pure translation layers.
package pipeline

import "errors"

// ErrDuplicateSession is returned by StartSession when a session already
// exists for the given call id.
var ErrDuplicateSession = errors.New("pipeline: session already exists for call")

// ErrSessionNotFound is returned by HandleChunk when the session id is
// unknown or the session has been stopped. StopSession treats the same
// condition as a no-op instead.
var ErrSessionNotFound = errors.New("pipeline: session not found")
