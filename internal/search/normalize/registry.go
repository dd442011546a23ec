package normalize

import (
	"fmt"
	"log/slog"

	"recon/internal/search/models"
)

// SuccessMapper converts a raw adapter payload into an envelope.
type SuccessMapper func(raw models.Document) (Envelope, error)

// ErrorMapper converts an adapter failure into an envelope.
type ErrorMapper func(err error) (Envelope, error)

// Builder collects mappers before the registry is frozen.
type Builder struct {
	success map[string]SuccessMapper
	failure map[string]ErrorMapper
}

func NewBuilder() *Builder {
	return &Builder{
		success: make(map[string]SuccessMapper),
		failure: make(map[string]ErrorMapper),
	}
}

// RegisterSuccessMapper binds fn to adapter. A later registration replaces an earlier one.
func (b *Builder) RegisterSuccessMapper(adapter string, fn SuccessMapper) *Builder {
	if fn != nil {
		b.success[adapter] = fn
	}
	return b
}

// RegisterErrorMapper binds fn to adapter. A later registration replaces an earlier one.
func (b *Builder) RegisterErrorMapper(adapter string, fn ErrorMapper) *Builder {
	if fn != nil {
		b.failure[adapter] = fn
	}
	return b
}

// Build freezes the current registrations. Later Builder changes do not affect it.
func (b *Builder) Build(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		success: make(map[string]SuccessMapper, len(b.success)),
		failure: make(map[string]ErrorMapper, len(b.failure)),
		logger:  logger,
	}
	for k, v := range b.success {
		r.success[k] = v
	}
	for k, v := range b.failure {
		r.failure[k] = v
	}
	return r
}

// Registry is read-only after Build.
type Registry struct {
	success map[string]SuccessMapper
	failure map[string]ErrorMapper
	logger  *slog.Logger
}

// HasSuccessMapper reports whether adapter has a custom success mapper.
func (r *Registry) HasSuccessMapper(adapter string) bool {
	_, ok := r.success[adapter]
	return ok
}

// HasErrorMapper reports whether adapter has a custom error mapper.
func (r *Registry) HasErrorMapper(adapter string) bool {
	_, ok := r.failure[adapter]
	return ok
}

// MapSuccess normalizes raw through the adapter's mapper, or the default one.
func (r *Registry) MapSuccess(adapter string, raw models.Document) Envelope {
	fn, ok := r.success[adapter]
	if !ok {
		return DefaultSuccess(raw)
	}
	env, err := safeSuccess(fn, raw)
	if err != nil {
		r.logger.Error("success mapper failed", "adapter", adapter, "error", err)
		return DefaultSuccess(raw)
	}
	return env
}

// MapError normalizes err through the adapter's mapper, or the default one.
func (r *Registry) MapError(adapter string, failure error) Envelope {
	fn, ok := r.failure[adapter]
	if !ok {
		return DefaultError(failure)
	}
	env, err := safeError(fn, failure)
	if err != nil {
		r.logger.Error("error mapper failed", "adapter", adapter, "error", err)
		return DefaultError(failure)
	}
	return env
}

func safeSuccess(fn SuccessMapper, raw models.Document) (env Envelope, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("mapper panic: %v", p)
		}
	}()
	return fn(raw)
}

func safeError(fn ErrorMapper, failure error) (env Envelope, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("mapper panic: %v", p)
		}
	}()
	return fn(failure)
}
