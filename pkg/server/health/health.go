// Package health contains the handler that checks the health of a Stargate server.
package health

import (
	"context"
	"encoding/json"
	"net/http"
)

const (
	StatusServing    = "SERVING"
	StatusNotServing = "NOT_SERVING"
)

// TargetService defines an interface that services can implement for server health checks.
type TargetService interface {
	IsReady(ctx context.Context) (bool, error)
}

type Checker struct {
	TargetService
	TargetServiceName string
}

type checkResponse struct {
	Service string `json:"service"`
	Status  string `json:"status"`
}

var _ http.Handler = (*Checker)(nil)

// Check reports the serving status of the target service.
func (o *Checker) Check(ctx context.Context) (string, error) {
	ready, err := o.IsReady(ctx)
	if err != nil {
		return StatusNotServing, err
	}

	if !ready {
		return StatusNotServing, nil
	}

	return StatusServing, nil
}

func (o *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, _ := o.Check(r.Context())

	code := http.StatusOK
	if status != StatusServing {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(checkResponse{Service: o.TargetServiceName, Status: status})
}
