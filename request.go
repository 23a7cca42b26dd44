package httpcore

import (
	"httpcore/internal/model"
	"httpcore/internal/wire"
)

// Method is one of the HTTP methods spec.md §3 enumerates.
type Method = model.Method

const (
	GET     = model.GET
	POST    = model.POST
	PUT     = model.PUT
	DELETE  = model.DELETE
	HEAD    = model.HEAD
	PATCH   = model.PATCH
	OPTIONS = model.OPTIONS
)

// Headers is a case-insensitive, order-preserving, duplicate-preserving
// header map, per spec.md §9 ("model as a mapping whose lookup key is the
// lowercased name while preserving the original casing for serialization").
type Headers = wire.Headers

// NewHeaders returns an empty Headers ready for use.
func NewHeaders() *Headers { return wire.NewHeaders() }

// Request is spec.md §3's Request: immutable after submission to Execute.
type Request = model.Request
