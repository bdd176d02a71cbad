package live

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	ErrNilSnapshot    = errors.New("nil snapshot")
	ErrCycle          = errors.New("derivation would create a cycle")
	ErrTooDeep        = errors.New("derivation graph too deep")
	ErrDocumentClosed = errors.New("document closed")
)

// NonUniqueKeyError is returned when a snapshot contains repeated row keys.
// The model is left unchanged.
type NonUniqueKeyError struct {
	Model string
	Keys  []any
}

func (e *NonUniqueKeyError) Error() string {
	keys := make([]string, len(e.Keys))
	for i, k := range e.Keys {
		keys[i] = fmt.Sprint(k)
	}
	return fmt.Sprintf("model %q: snapshot keys must be unique, repeated: [%s]", e.Model, strings.Join(keys, ", "))
}

// TransformError wraps a failure of a derivation transform.
type TransformError struct {
	Model     string // derived model whose transform failed
	Transform string
	Err       error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("model %q: transform %s: %v", e.Model, e.Transform, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// DeliveryError describes a failed delivery to a sink. It is only logged.
type DeliveryError struct {
	Model string
	Sink  SinkHandle
	Kind  DeliveryKind
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("model %q: %s delivery to sink %d: %v", e.Model, e.Kind, e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func nonUniqueKeys[K comparable](model string, dups []K) *NonUniqueKeyError {
	keys := make([]any, len(dups))
	for i, k := range dups {
		keys[i] = k
	}
	return &NonUniqueKeyError{Model: model, Keys: keys}
}
