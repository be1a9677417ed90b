package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/born-ml/drift/internal/autograd"
	"github.com/born-ml/drift/internal/optim"
	"github.com/born-ml/drift/internal/rref"
	"github.com/born-ml/drift/internal/tensor"
)

// Client talks to one remote worker.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient creates a client for the worker at base. A nil httpClient
// falls back to http.DefaultClient.
func NewClient(base *url.URL, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: base, http: httpClient}
}

func checkError(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiError := StatusError{StatusCode: resp.StatusCode}

	var envelope ErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		// Use the full body as the message if we fail to decode a response.
		apiError.Message = string(body)
		return apiError
	}
	apiError.Code = envelope.Code
	apiError.Message = envelope.Error
	return apiError
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var reqBody io.Reader
	if reqData != nil {
		data, err := json.Marshal(reqData)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	requestURL := c.base.JoinPath(path)
	request, err := http.NewRequestWithContext(ctx, method, requestURL.String(), reqBody)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}
	if err := checkError(response, respBody); err != nil {
		return err
	}

	if respData != nil {
		if err := json.Unmarshal(respBody, respData); err != nil {
			return fmt.Errorf("rpc: decode response: %w", err)
		}
	}
	return nil
}

// CreateModule constructs a module on the remote worker.
func (c *Client) CreateModule(ctx context.Context, rows, cols int, seed int64) (rref.Handle, error) {
	var resp CreateModuleResponse
	err := c.do(ctx, http.MethodPost, "/api/module/create", CreateModuleRequest{Rows: rows, Cols: cols, Seed: seed}, &resp)
	return resp.Module, err
}

// ModuleParam fetches a handle to the module's weight.
func (c *Client) ModuleParam(ctx context.Context, module rref.Handle) (rref.Handle, error) {
	var resp ModuleParamResponse
	err := c.do(ctx, http.MethodPost, "/api/module/param", ModuleParamRequest{Module: module}, &resp)
	return resp.Param, err
}

// Forward applies the remote module to input under the given context.
func (c *Client) Forward(ctx context.Context, id autograd.ContextID, module rref.Handle, input *tensor.Matrix) (*tensor.Matrix, error) {
	var resp ForwardResponse
	err := c.do(ctx, http.MethodPost, "/api/module/forward", ForwardRequest{Context: id, Module: module, Input: input}, &resp)
	return resp.Output, err
}

// Backward propagates an upstream gradient through the remote module and
// returns the gradient with respect to its input.
func (c *Client) Backward(ctx context.Context, id autograd.ContextID, module rref.Handle, upstream *tensor.Matrix) (*tensor.Matrix, error) {
	var resp BackwardResponse
	err := c.do(ctx, http.MethodPost, "/api/module/backward", BackwardRequest{Context: id, Module: module, Upstream: upstream}, &resp)
	return resp.InputGrad, err
}

// ParamValue reads the current value behind a remote parameter handle.
func (c *Client) ParamValue(ctx context.Context, param rref.Handle) (*tensor.Matrix, error) {
	var resp ParamValueResponse
	err := c.do(ctx, http.MethodPost, "/api/param/get", ParamValueRequest{Param: param}, &resp)
	return resp.Value, err
}

// Retain increments the handle's reference count on its owner.
func (c *Client) Retain(ctx context.Context, h rref.Handle) error {
	return c.do(ctx, http.MethodPost, "/api/rref/retain", HandleRequest{Handle: h}, nil)
}

// Release decrements the handle's reference count on its owner.
func (c *Client) Release(ctx context.Context, h rref.Handle) error {
	return c.do(ctx, http.MethodPost, "/api/rref/release", HandleRequest{Handle: h}, nil)
}

// EndContext tears down the gradient context on the remote worker.
func (c *Client) EndContext(ctx context.Context, id autograd.ContextID) error {
	return c.do(ctx, http.MethodPost, "/api/context/end", EndContextRequest{Context: id}, nil)
}

// OptimStep runs one local optimizer step on the remote worker.
func (c *Client) OptimStep(ctx context.Context, instance, variant string, args optim.Args, params []rref.Handle, id autograd.ContextID) error {
	req := OptimStepRequest{
		Context:  id,
		Instance: instance,
		Variant:  variant,
		Args:     args,
		Params:   params,
	}
	return c.do(ctx, http.MethodPost, "/api/optim/step", req, nil)
}

// OptimClose drops the remote worker's optimizer instance.
func (c *Client) OptimClose(ctx context.Context, instance string) error {
	return c.do(ctx, http.MethodPost, "/api/optim/close", OptimCloseRequest{Instance: instance}, nil)
}

// Version reports the remote worker's name and build version.
func (c *Client) Version(ctx context.Context) (VersionResponse, error) {
	var resp VersionResponse
	err := c.do(ctx, http.MethodGet, "/api/version", nil, &resp)
	return resp, err
}
