// Package handlers implements the LEGACORE REST API.
//
// Every JSON response uses the envelope {"success": bool, "data": ...} or
// {"success": false, "error": "..."}.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/legacore/legacore/control-plane/internal/catalog"
	"github.com/legacore/legacore/control-plane/internal/executor"
	"github.com/legacore/legacore/control-plane/internal/router"
	"github.com/legacore/legacore/control-plane/internal/store"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

// ModelRouter is the slice of the provider router the API uses.
type ModelRouter interface {
	Generate(ctx context.Context, req *router.Request) models.AIResponse
	Stream(ctx context.Context, req *router.Request) (*router.StreamResponse, error)
	Status() router.Status
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	Store    store.Store
	Catalog  *catalog.Catalog
	Router   ModelRouter
	Executor *executor.Executor
}

// New creates a new Handlers instance.
func New(s store.Store, cat *catalog.Catalog, mr ModelRouter, exec *executor.Executor) *Handlers {
	return &Handlers{
		Store:    s,
		Catalog:  cat,
		Router:   mr,
		Executor: exec,
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, envelope{Success: false, Error: message})
}

// respondErr maps domain errors onto HTTP status codes.
func respondErr(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	var (
		taskNF   *executor.TaskNotFoundError
		agentNF  *executor.AgentConfigNotFoundError
		threadNF *executor.ThreadNotFoundError
		storeNF  *store.ErrNotFound
		badTrans *store.ErrInvalidTransition
	)
	switch {
	case errors.As(err, &taskNF), errors.As(err, &agentNF), errors.As(err, &threadNF), errors.As(err, &storeNF):
		return http.StatusNotFound
	case errors.As(err, &badTrans):
		return http.StatusConflict
	case errors.Is(err, router.ErrNoStreamingProvider):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// queryLimit parses ?limit=, returning def when absent or invalid.
func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
