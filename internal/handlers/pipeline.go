package handlers

import (
	"context"
	"net/http"
)

// Stage is one step of a request pipeline. It may enrich the request (usually
// its context) or stop the pipeline by returning an error.
type Stage func(*http.Request) (*http.Request, error)

// Pipeline runs stages in order and then h. The first failing stage
// short-circuits and its error is written as the response.
func Pipeline(h http.HandlerFunc, stages ...Stage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, stage := range stages {
			next, err := stage(r)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			r = next
		}
		h(w, r)
	}
}

// Middleware adapts a stage to chi middleware.
func Middleware(stage Stage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return Pipeline(next.ServeHTTP, stage)
	}
}

type valueKey[T any] struct{}

func withValue[T any](r *http.Request, value T) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), valueKey[T]{}, value))
}

func valueFrom[T any](r *http.Request) T {
	value, _ := r.Context().Value(valueKey[T]{}).(T)
	return value
}

// decode reads the JSON body into a T for later stages.
func decode[T any]() Stage {
	return func(r *http.Request) (*http.Request, error) {
		var body T
		if err := decodeBody(r, &body); err != nil {
			return nil, err
		}
		return withValue(r, body), nil
	}
}

// validate converts the decoded In into a validated Out.
func validate[In, Out any](check func(In) (Out, error)) Stage {
	return func(r *http.Request) (*http.Request, error) {
		out, err := check(valueFrom[In](r))
		if err != nil {
			return nil, err
		}
		return withValue(r, out), nil
	}
}
