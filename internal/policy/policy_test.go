// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package policy

import "testing"

func TestEvaluate(t *testing.T) {
	t.Parallel()

	storageOnly := Permanent{
		Enabled:       true,
		OnlyOnStorage: true,
		BanIP:         true,
		DeleteServer:  true,
		DeleteOwner:   true,
	}
	forced := storageOnly
	forced.ForceOnCPUSuper = true
	ungated := storageOnly
	ungated.OnlyOnStorage = false
	noBan := storageOnly
	noBan.BanIP = false

	tests := []struct {
		name   string
		req    Request
		allow  bool
		reason string
	}{
		{
			name:  "stop on cpu spike",
			req:   Request{Action: ActionStop, Reasons: []string{ReasonCPUSpike}},
			allow: true, reason: DecisionAllowed,
		},
		{
			name:  "ban on cpu spike only is refused under storage-only",
			req:   Request{Action: ActionBanIP, Reasons: []string{ReasonCPUSpike}, Permanent: storageOnly},
			allow: false, reason: DecisionStorageOnly,
		},
		{
			name:  "delete server on disk jump",
			req:   Request{Action: ActionDeleteServer, Reasons: []string{ReasonCPUSpike, ReasonDiskJumpSpike}, Permanent: storageOnly},
			allow: true, reason: DecisionAllowed,
		},
		{
			name:  "cpu super without force is refused",
			req:   Request{Action: ActionDeleteOwner, Reasons: []string{ReasonCPUSuperSustain}, Permanent: storageOnly},
			allow: false, reason: DecisionStorageOnly,
		},
		{
			name:  "cpu super with force",
			req:   Request{Action: ActionDeleteOwner, Reasons: []string{ReasonCPUSuperSustain}, Permanent: forced},
			allow: true, reason: DecisionAllowed,
		},
		{
			name:  "external cpu with force",
			req:   Request{Action: ActionBanIP, Reasons: []string{ReasonExternalCPUSpike}, Permanent: forced},
			allow: true, reason: DecisionAllowed,
		},
		{
			name:  "ungated permits memory spike",
			req:   Request{Action: ActionBanIP, Reasons: []string{ReasonMemorySpike}, Permanent: ungated},
			allow: true, reason: DecisionAllowed,
		},
		{
			name:  "permanent disabled",
			req:   Request{Action: ActionDeleteServer, Reasons: []string{ReasonDiskSpike}},
			allow: false, reason: DecisionPermanentOff,
		},
		{
			name:  "per-action toggle off",
			req:   Request{Action: ActionBanIP, Reasons: []string{ReasonDiskSpike}, Permanent: noBan},
			allow: false, reason: DecisionActionOff,
		},
		{
			name:  "root owner never suspended",
			req:   Request{Action: ActionSuspend, OwnerIsRoot: true, Reasons: []string{ReasonDiskSpike}},
			allow: false, reason: DecisionRootExempt,
		},
		{
			name:  "root owner never deleted",
			req:   Request{Action: ActionDeleteServer, OwnerIsRoot: true, Reasons: []string{ReasonDiskSpike}, Permanent: storageOnly},
			allow: false, reason: DecisionRootExempt,
		},
		{
			name:  "root owner may be quarantined",
			req:   Request{Action: ActionQuarantine, OwnerIsRoot: true},
			allow: true, reason: DecisionAllowed,
		},
		{
			name:  "root payload is never blocked",
			req:   Request{Action: ActionBlockPayload, OwnerIsRoot: true},
			allow: false, reason: DecisionRootExempt,
		},
		{
			name:  "under attack profile for root-owned trigger",
			req:   Request{Action: ActionUnderAttack, OwnerIsRoot: true},
			allow: true, reason: DecisionAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.req)
			if got.Allowed != tt.allow || got.Reason != tt.reason {
				t.Errorf("Evaluate = %+v, want allowed=%v reason=%s", got, tt.allow, tt.reason)
			}
		})
	}
}

func TestNewRejectsMalformedPolicy(t *testing.T) {
	t.Parallel()

	if _, err := New(embeddedModel, "p, role:tenant, stop"); err == nil {
		t.Error("expected error for short policy line")
	}
}
