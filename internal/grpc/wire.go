package grpc

import (
	"bytes"
	"encoding/base64"
	"encoding/gob"

	"github.com/oriys/workerexec/internal/domain"
	"github.com/oriys/workerexec/internal/routing"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// golemErrorPrefix tags a status message as a base64-encoded gob-serialized
// routing.GolemError so the client can recover the original error shape
// instead of collapsing it to a bare status string.
const golemErrorPrefix = "golem-error:"

// codeForError maps a domain error code to the closest standard gRPC status
// code, purely for tooling that inspects status codes (grpc-cli, load
// balancers); the authoritative error shape is the encoded GolemError.
func codeForError(code domain.ErrorCode) codes.Code {
	switch code {
	case domain.ErrWorkerNotFound, domain.ErrPromiseNotFound, domain.ErrPayloadNotFound:
		return codes.NotFound
	case domain.ErrWorkerAlreadyExists, domain.ErrPromiseAlreadyCompleted:
		return codes.AlreadyExists
	case domain.ErrInvalidRequest, domain.ErrParamTypeMismatch, domain.ErrValueMismatch, domain.ErrNoValueInMessage:
		return codes.InvalidArgument
	case domain.ErrInvalidShardId:
		return codes.FailedPrecondition
	case domain.ErrInterrupted:
		return codes.Aborted
	default:
		return codes.Internal
	}
}

// encodeStatusErr converts a routing.GolemError into a *status.Status error
// carrying the gob-encoded GolemError in its message, so decodeStatusErr can
// recover it losslessly on the other side of the wire.
func encodeStatusErr(gerr *routing.GolemError) error {
	if gerr == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gerr); err != nil {
		return status.Error(codes.Internal, gerr.Details)
	}
	msg := golemErrorPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
	return status.Error(codeForError(gerr.Code), msg)
}

// decodeStatusErr recovers a *routing.GolemError from an error returned by a
// gRPC call, falling back to a best-effort GolemError for errors that did
// not originate from this package's handlers (connection failures, context
// cancellation, a peer running an older/incompatible build).
func decodeStatusErr(err error) *routing.GolemError {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return &routing.GolemError{Code: domain.ErrUnknown, Details: err.Error()}
	}
	msg := st.Message()
	if len(msg) <= len(golemErrorPrefix) || msg[:len(golemErrorPrefix)] != golemErrorPrefix {
		return &routing.GolemError{Code: domain.ErrUnknown, Details: msg}
	}
	raw, decErr := base64.StdEncoding.DecodeString(msg[len(golemErrorPrefix):])
	if decErr != nil {
		return &routing.GolemError{Code: domain.ErrUnknown, Details: msg}
	}
	var gerr routing.GolemError
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&gerr); err != nil {
		return &routing.GolemError{Code: domain.ErrUnknown, Details: msg}
	}
	return &gerr
}
