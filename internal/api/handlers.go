// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/sentinel/internal/engine"
	"github.com/tomtom215/sentinel/internal/nodescan"
	"github.com/tomtom215/sentinel/internal/reputation"
	"github.com/tomtom215/sentinel/internal/validation"
)

// Service is the subset of the engine the HTTP API exposes.
type Service interface {
	InspectPayload(ctx context.Context, req nodescan.PayloadRequest) (nodescan.Verdict, error)
	IngestMemorySample(ctx context.Context, serverID int64, sample nodescan.Sample) (nodescan.LeakReport, error)
	SecurityScore(ctx context.Context, serverID int64) (nodescan.Score, error)
	Quarantine(ctx context.Context, serverID int64, minutes int) (engine.QuarantineSummary, error)
	QuarantineStatus(ctx context.Context, serverID int64) (engine.QuarantineSummary, error)
	LookupIndicator(ctx context.Context, typ, value string) ([]reputation.Indicator, error)
}

var _ Service = (*engine.Engine)(nil)

// Handler serves the API routes.
type Handler struct {
	svc     Service
	maxBody int64
	checks  map[string]func(context.Context) error
}

// NewHandler creates a Handler.
func NewHandler(svc Service, maxBody int64, checks map[string]func(context.Context) error) *Handler {
	return &Handler{svc: svc, maxBody: maxBody, checks: checks}
}

// memoryRequest is one runtime memory sample reported by a node agent.
type memoryRequest struct {
	ServerID int64 `json:"server_id" validate:"required,gt=0"`
	nodescan.Sample
}

type quarantineRequest struct {
	Minutes int `json:"minutes" validate:"required,gt=0,lte=10080"`
}

// InspectPayload runs node secure mode over a console or file payload.
func (h *Handler) InspectPayload(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req nodescan.PayloadRequest
	if !h.decode(rw, r, &req) {
		return
	}
	verdict, err := h.svc.InspectPayload(r.Context(), req)
	if err != nil {
		rw.Fail(err)
		return
	}
	rw.Success(verdict)
}

// IngestMemory feeds one memory sample to the leak tracker.
func (h *Handler) IngestMemory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req memoryRequest
	if !h.decode(rw, r, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		rw.Fail(err)
		return
	}
	report, err := h.svc.IngestMemorySample(r.Context(), req.ServerID, req.Sample)
	if err != nil {
		rw.Fail(err)
		return
	}
	rw.Success(report)
}

// SecurityScore returns the composite node security score.
func (h *Handler) SecurityScore(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id, ok := serverID(rw, r)
	if !ok {
		return
	}
	score, err := h.svc.SecurityScore(r.Context(), id)
	if err != nil {
		rw.Fail(err)
		return
	}
	rw.Success(score)
}

// QuarantineStatus reports whether a server is quarantined.
func (h *Handler) QuarantineStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id, ok := serverID(rw, r)
	if !ok {
		return
	}
	status, err := h.svc.QuarantineStatus(r.Context(), id)
	if err != nil {
		rw.Fail(err)
		return
	}
	rw.Success(status)
}

// Quarantine flags a server for the requested number of minutes.
func (h *Handler) Quarantine(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id, ok := serverID(rw, r)
	if !ok {
		return
	}
	var req quarantineRequest
	if !h.decode(rw, r, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		rw.Fail(err)
		return
	}
	summary, err := h.svc.Quarantine(r.Context(), id, req.Minutes)
	if errors.Is(err, engine.ErrInvalidQuarantine) {
		rw.BadRequest(err.Error())
		return
	}
	if err != nil {
		rw.Fail(err)
		return
	}
	rw.Success(summary)
}

// LookupIndicator returns active reputation indicators for ?type=&value=.
func (h *Handler) LookupIndicator(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q := r.URL.Query()
	typ := strings.TrimSpace(q.Get("type"))
	if typ == "" {
		typ = reputation.TypeIP
	}
	value := strings.TrimSpace(q.Get("value"))
	if value == "" {
		rw.BadRequest("value is required")
		return
	}
	if typ == reputation.TypeIP && !validation.IsIPOrCIDR(value) {
		rw.BadRequest("value must be an IP address or CIDR range")
		return
	}
	found, err := h.svc.LookupIndicator(r.Context(), typ, value)
	if err != nil {
		rw.Fail(err)
		return
	}
	if found == nil {
		found = []reputation.Indicator{}
	}
	rw.Success(found)
}

// decode reads a JSON body into v. It writes the error response and
// returns false on failure.
func (h *Handler) decode(rw *ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(rw.w, r.Body, h.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rw.Error(http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return false
		}
		rw.BadRequest("invalid JSON body: " + err.Error())
		return false
	}
	return true
}

func serverID(rw *ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		rw.BadRequest("server id must be a positive integer")
		return 0, false
	}
	return id, true
}
