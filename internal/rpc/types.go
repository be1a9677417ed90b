// Package rpc implements the HTTP wire surface between Drift workers: the
// request/response types, the error envelope, the gin server exposing a
// worker, and the JSON client used to reach remote workers.
package rpc

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/born-ml/drift/internal/autograd"
	"github.com/born-ml/drift/internal/optim"
	"github.com/born-ml/drift/internal/rref"
	"github.com/born-ml/drift/internal/tensor"
)

// CreateModuleRequest constructs a module on the receiving worker.
type CreateModuleRequest struct {
	Rows int   `json:"rows"`
	Cols int   `json:"cols"`
	Seed int64 `json:"seed"`
}

// CreateModuleResponse carries the handle of the new module.
type CreateModuleResponse struct {
	Module rref.Handle `json:"module"`
}

// ModuleParamRequest asks for a handle to a module's weight.
type ModuleParamRequest struct {
	Module rref.Handle `json:"module"`
}

// ModuleParamResponse carries the weight's handle.
type ModuleParamResponse struct {
	Param rref.Handle `json:"param"`
}

// ForwardRequest applies a module to an input under a gradient context.
type ForwardRequest struct {
	Context autograd.ContextID `json:"context"`
	Module  rref.Handle        `json:"module"`
	Input   *tensor.Matrix     `json:"input"`
}

// ForwardResponse carries the module output.
type ForwardResponse struct {
	Output *tensor.Matrix `json:"output"`
}

// BackwardRequest propagates an upstream gradient through a module.
type BackwardRequest struct {
	Context  autograd.ContextID `json:"context"`
	Module   rref.Handle        `json:"module"`
	Upstream *tensor.Matrix     `json:"upstream"`
}

// BackwardResponse carries the gradient with respect to the module input.
type BackwardResponse struct {
	InputGrad *tensor.Matrix `json:"input_grad"`
}

// ParamValueRequest reads the current value behind a parameter handle.
type ParamValueRequest struct {
	Param rref.Handle `json:"param"`
}

// ParamValueResponse carries a copy of the parameter value.
type ParamValueResponse struct {
	Value *tensor.Matrix `json:"value"`
}

// HandleRequest retains or releases a handle on its owner.
type HandleRequest struct {
	Handle rref.Handle `json:"handle"`
}

// EndContextRequest tears down a gradient context on the receiving worker.
type EndContextRequest struct {
	Context autograd.ContextID `json:"context"`
}

// OptimStepRequest runs one local optimizer step on the receiving worker.
type OptimStepRequest struct {
	Context  autograd.ContextID `json:"context"`
	Instance string             `json:"instance"`
	Variant  string             `json:"variant"`
	Args     optim.Args         `json:"args,omitempty"`
	Params   []rref.Handle      `json:"params"`
}

// OptimCloseRequest drops the optimizer instance cached on the receiving
// worker.
type OptimCloseRequest struct {
	Instance string `json:"instance"`
}

// VersionResponse reports the worker's name and build version.
type VersionResponse struct {
	Worker  string `json:"worker"`
	Version string `json:"version"`
}

// Machine-readable error codes carried in the error envelope.
const (
	CodeUnknownHandle        = "unknown_handle"
	CodeNoGradient           = "no_gradient"
	CodeContextClosed        = "context_closed"
	CodeInvalidConfiguration = "invalid_configuration"
	CodeInternal             = "internal"
)

// ErrorResponse is the JSON error envelope every endpoint uses.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// StatusError is the client-side form of a non-2xx response. Error returns
// the server's message unmodified so failure text survives the wire; Unwrap
// maps the code back onto the matching sentinel so errors.Is keeps working
// across process boundaries.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e StatusError) Unwrap() error {
	switch e.Code {
	case CodeUnknownHandle:
		return rref.ErrUnknownHandle
	case CodeNoGradient:
		return autograd.ErrNoGradient
	case CodeContextClosed:
		return autograd.ErrContextClosed
	case CodeInvalidConfiguration:
		return optim.ErrInvalidConfiguration
	default:
		return nil
	}
}

// statusFor maps an error onto its HTTP status and wire code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, rref.ErrUnknownHandle):
		return http.StatusNotFound, CodeUnknownHandle
	case errors.Is(err, autograd.ErrNoGradient):
		return http.StatusBadRequest, CodeNoGradient
	case errors.Is(err, autograd.ErrContextClosed):
		return http.StatusBadRequest, CodeContextClosed
	case errors.Is(err, optim.ErrInvalidConfiguration):
		return http.StatusBadRequest, CodeInvalidConfiguration
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
