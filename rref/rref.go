// Copyright 2025 Drift Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package rref provides the public API for remote reference handles.
//
// A Handle points at a value owned by exactly one worker process and keeps
// it alive through an explicit reference count.
package rref

import (
	"github.com/born-ml/drift/internal/rref"
)

// Handle identifies a value owned by a single worker process.
type Handle = rref.Handle

// Registry holds the values one worker owns on behalf of remote handle
// holders.
type Registry = rref.Registry

// ErrUnknownHandle is returned when a handle refers to a value the owner
// has already reclaimed, or never created.
var ErrUnknownHandle = rref.ErrUnknownHandle

// NewRegistry creates a registry for the worker named owner.
func NewRegistry(owner string) *Registry {
	return rref.NewRegistry(owner)
}
