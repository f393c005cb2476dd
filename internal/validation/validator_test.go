// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package validation

import (
	"errors"
	"strings"
	"testing"
)

type profileRequest struct {
	Profile   string   `json:"profile" validate:"required,oneof=normal elevated under_attack"`
	Whitelist []string `json:"whitelist" validate:"dive,ip_or_cidr"`
	Intensity int      `json:"intensity" validate:"gte=0,lte=5000"`
}

func TestIsIPOrCIDR(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"10.0.0.0/8", true},
		{"2001:db8::/32", true},
		{"not-an-ip", false},
		{"300.1.1.1", false},
		{"10.0.0.0/33", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsIPOrCIDR(tt.in); got != tt.want {
			t.Errorf("IsIPOrCIDR(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     profileRequest
		wantErr string
	}{
		{"valid", profileRequest{Profile: "under_attack", Whitelist: []string{"127.0.0.1", "10.0.0.0/8"}}, ""},
		{"unknown profile", profileRequest{Profile: "panic"}, "profile must be one of"},
		{"missing profile", profileRequest{}, "profile is required"},
		{"bad whitelist entry", profileRequest{Profile: "normal", Whitelist: []string{"nope"}}, "must be an IP address or CIDR range"},
		{"intensity too high", profileRequest{Profile: "normal", Intensity: 9000}, "intensity must be less than or equal to 5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Struct(tt.req)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}
