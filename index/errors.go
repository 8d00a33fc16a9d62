package index

import "github.com/juju/errors"

const (
	// SchemaUnavailable means the schema could not be read or was malformed.
	SchemaUnavailable = errors.ConstError("schema unavailable")

	// MalformedDocument means an upstream document lacks its identifier.
	MalformedDocument = errors.ConstError("malformed document")

	// BackendRejected means the backend refused a request or document as
	// invalid. Resubmitting the same payload will fail again.
	BackendRejected = errors.ConstError("backend rejected request")

	// BackendUnavailable means the backend could not be reached or failed
	// for reasons unrelated to the payload.
	BackendUnavailable = errors.ConstError("backend unavailable")

	// ValueFormat means a stored or returned value could not be decoded.
	ValueFormat = errors.ConstError("value format error")
)
