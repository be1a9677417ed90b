// Copyright 2025 Drift Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cluster provides the public API for wiring Drift workers
// together.
//
// # Basic Usage
//
//	local := cluster.NewWorker("worker0")
//	c := cluster.New(local)
//
//	base, _ := url.Parse("http://worker1:11435")
//	c.AddRemote("worker1", cluster.NewClient(base, nil))
//
//	mod, _ := c.CreateModule(ctx, "worker1", 3, 3, 0)
//	param, _ := c.ModuleParam(ctx, mod)
//
//	id, tape, _ := c.BeginContext()
//	out, _ := c.Forward(ctx, tape, mod, input)
//	_ = tape.Backward(ctx, c, out)
//
//	opt, _ := optim.NewDistributed(ctx, c, "sgd", []rref.Handle{param},
//	    optim.Args{"lr": 0.05})
//	_ = opt.Step(ctx, id)
//	_ = c.EndContext(ctx, id)
package cluster

import (
	"net/http"
	"net/url"

	"github.com/born-ml/drift/internal/cluster"
	"github.com/born-ml/drift/internal/rpc"
	"github.com/born-ml/drift/internal/worker"
)

// Cluster is the caller-side view of a set of workers.
type Cluster = cluster.Cluster

// Worker is one node of the cluster.
type Worker = worker.Worker

// Client talks to one remote worker.
type Client = rpc.Client

// Server exposes a worker over HTTP.
type Server = rpc.Server

// New creates a cluster around an optional local worker.
func New(local *Worker) *Cluster {
	return cluster.New(local)
}

// NewWorker creates a worker named name.
func NewWorker(name string) *Worker {
	return worker.New(name)
}

// NewClient creates a client for the worker at base. A nil httpClient
// falls back to http.DefaultClient.
func NewClient(base *url.URL, httpClient *http.Client) *Client {
	return rpc.NewClient(base, httpClient)
}

// NewServer creates an HTTP server for the given worker.
func NewServer(w *Worker) *Server {
	return rpc.NewServer(w)
}
