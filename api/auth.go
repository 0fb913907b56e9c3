/*
auth.go - Caller identity middleware

PURPOSE:
  Session issuance and authentication are external to this service. The
  engine only consumes a caller identity {id, role}, delivered here through
  the X-Caller-ID and X-Caller-Role headers set by the fronting gateway.
  Requests without a known identity are rejected with 401 before any
  handler runs.

This is deliberately NOT an auth system. It is the data contract of one.
*/
package api

import (
	"context"
	"net/http"

	"github.com/warp/canteen-engine/canteen"
)

type contextKey string

const callerKey contextKey = "caller"

const (
	headerCallerID   = "X-Caller-ID"
	headerCallerRole = "X-Caller-Role"
)

// CallerFromHeaders extracts the caller identity and rejects unknown or
// unauthenticated callers.
func CallerFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := canteen.Caller{
			ID:   r.Header.Get(headerCallerID),
			Role: canteen.Role(r.Header.Get(headerCallerRole)),
		}
		if caller.ID == "" || !caller.Role.Known() {
			writeError(w, http.StatusUnauthorized, "Unknown caller", nil)
			return
		}
		ctx := context.WithValue(r.Context(), callerKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerFrom returns the caller stored by the middleware.
func callerFrom(r *http.Request) canteen.Caller {
	caller, _ := r.Context().Value(callerKey).(canteen.Caller)
	return caller
}
