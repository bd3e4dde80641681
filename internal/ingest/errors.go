package ingest

import "fmt"

// Pipeline stages, used as the stage label on error metrics and logs.
const (
	StageValidate = "validate"
	StageParse    = "parse"
	StageStorage  = "storage"
)

// ValidationError reports a request that never reaches the pipeline:
// no file content, or a missing client id. Mapped to a client error by
// the transport layer.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "ingest: " + e.Msg
}

// StorageError wraps a failure from the persistence collaborator.
// Mapped to a server error by the transport layer. Persistence is
// best-effort, not transactional: transactions written before the
// failing operation stay written, and no compensating rollback runs.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ingest: storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
