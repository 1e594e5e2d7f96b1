package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEventType marks a lookup for an event type nobody registered.
// This is a configuration error, not a transient publish failure: the
// publisher routes such rows to the dead-letter table instead of retrying.
var ErrUnknownEventType = errors.New("unknown event type")

type entry struct {
	topic  string
	decode func([]byte) (any, error)
}

// Registry is an immutable mapping from event-type string to payload decoder
// and destination topic. Built once at process start, passed by injection;
// no runtime mutation.
type Registry struct {
	entries map[string]entry
}

// NewRegistry builds the registry for all product event types. Every type
// currently routes to the single product-events topic.
func NewRegistry(productEventsTopic string) *Registry {
	return &Registry{entries: map[string]entry{
		TypeProductCreated: {
			topic:  productEventsTopic,
			decode: decodeInto[ProductCreated],
		},
		TypeProductUpdated: {
			topic:  productEventsTopic,
			decode: decodeInto[ProductUpdated],
		},
		TypeProductPriceUpdated: {
			topic:  productEventsTopic,
			decode: decodeInto[ProductPriceUpdated],
		},
		TypeProductDeleted: {
			topic:  productEventsTopic,
			decode: decodeInto[ProductDeleted],
		},
	}}
}

// Topic returns the destination topic for an event type. Fails closed.
func (r *Registry) Topic(eventType string) (string, error) {
	e, ok := r.entries[eventType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	return e.topic, nil
}

// Decode parses a stored payload into its typed event. Fails closed on
// unknown types and on malformed payloads.
func (r *Registry) Decode(eventType string, payload []byte) (any, error) {
	e, ok := r.entries[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	v, err := e.decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return v, nil
}

func decodeInto[T any](payload []byte) (any, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
