package common

import "errors"

// Error categories used across the Parser/LLM/Embedder clients and the
// IngestionPipeline to decide whether a failure should be retried, whether
// it should fail a single document, or whether it should abort a batch.
var (
	// ErrTransientExternal marks a failure from an external dependency
	// (Parser, Claude, embedder) that is expected to succeed on retry:
	// timeouts, rate limits, 5xx responses, connection resets.
	ErrTransientExternal = errors.New("transient external failure")

	// ErrMalformedExternal marks a failure caused by the input itself:
	// an unparseable document, a response that fails schema validation.
	// Retrying will not help; the document is routed to error state.
	ErrMalformedExternal = errors.New("malformed external input")

	// ErrPipelineFatal marks an internal invariant violation (storage
	// corruption, missing required configuration) that should abort the
	// current batch rather than be retried or attributed to one document.
	ErrPipelineFatal = errors.New("pipeline fatal error")

	// ErrIndexCapExceeded marks a document whose dynamic field count
	// exceeds the search index's configured MaxDynamicFields: the document
	// itself is the problem, not the indexing backend, so it is attributed
	// to the document rather than retried or treated as a batch abort.
	ErrIndexCapExceeded = errors.New("dynamic field count exceeds search index cap")
)

// IsTransient reports whether err (or any error it wraps) should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientExternal)
}

// IsMalformed reports whether err (or any error it wraps) indicates the
// input document is the problem, not the external dependency.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedExternal)
}

// IsFatal reports whether err (or any error it wraps) should abort the
// enclosing batch outright.
func IsFatal(err error) bool {
	return errors.Is(err, ErrPipelineFatal)
}

// IsIndexCapExceeded reports whether err (or any error it wraps) is a
// rejection of a document past the search index's dynamic field cap.
func IsIndexCapExceeded(err error) bool {
	return errors.Is(err, ErrIndexCapExceeded)
}
