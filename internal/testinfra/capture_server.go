// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Capture is one recorded request.
type Capture struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// CaptureServer is an httptest server that records every request and
// answers through an optional handler.
type CaptureServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	captures []Capture
	handler  http.HandlerFunc
}

// NewCaptureServer starts a server that replies 200 with an empty body
// unless a handler is set. It is closed on test cleanup.
func NewCaptureServer(t *testing.T) *CaptureServer {
	t.Helper()

	cs := &CaptureServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()

		cs.mu.Lock()
		cs.captures = append(cs.captures, Capture{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: r.Header.Clone(),
			Body:    body,
		})
		handler := cs.handler
		cs.mu.Unlock()

		if handler != nil {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(cs.Server.Close)
	return cs
}

// URL returns the server base URL.
func (cs *CaptureServer) URL() string {
	return cs.Server.URL
}

// Handle sets the response handler.
func (cs *CaptureServer) Handle(h http.HandlerFunc) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.handler = h
}

// Captures returns a copy of every request received.
func (cs *CaptureServer) Captures() []Capture {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]Capture, len(cs.captures))
	copy(out, cs.captures)
	return out
}

// Paths returns "METHOD /path" for every request received.
func (cs *CaptureServer) Paths() []string {
	captures := cs.Captures()
	out := make([]string, len(captures))
	for i, c := range captures {
		out[i] = c.Method + " " + c.Path
	}
	return out
}
