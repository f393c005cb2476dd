// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package settings

// Kind is the value type of a setting.
type Kind int

// Setting kinds.
const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
)

// Definition documents a setting's default and, for numeric kinds, its
// inclusive bounds. Reads are clamped to [Min, Max].
type Definition struct {
	Key     string
	Kind    Kind
	Default string
	Min     float64
	Max     float64
}

// Setting keys.
const (
	AdaptiveAlpha            = "adaptive_alpha"
	AdaptiveAnomalyThreshold = "adaptive_anomaly_threshold"
	AdaptivePageSize         = "adaptive_page_size"

	DDoSAutoTuneEnabled   = "ddos_auto_tune_enabled"
	DDoSBurstThreshold10s = "ddos_burst_threshold_10s"
	DDoSProfile           = "ddos_profile"
	DDoSRateLimitPerMin   = "ddos_rate_limit_per_minute"
	DDoSBlockDurationMin  = "ddos_block_duration_minutes"
	DDoSChallengeEnabled  = "ddos_challenge_enabled"
	DDoSWhitelist         = "ddos_whitelist"

	TrustEnabled             = "trust_automation_enabled"
	TrustQuarantineThreshold = "trust_automation_quarantine_threshold"
	TrustElevatedThreshold   = "trust_automation_elevated_threshold"
	TrustQuarantineMinutes   = "trust_automation_quarantine_minutes"
	TrustProfileCooldownMin  = "trust_automation_profile_cooldown_minutes"
	TrustDropThreshold       = "trust_automation_drop_threshold"
	TrustDropWindowMinutes   = "trust_automation_drop_window_minutes"
	TrustLockdownCooldownMin = "trust_automation_lockdown_cooldown_minutes"
	TrustStaleMinutes        = "trust_automation_stale_minutes"
	TrustPageSize            = "trust_automation_page_size"

	SecurityEmergencyMode      = "security_emergency_mode"
	SecurityRegistrationLocked = "security_registration_locked"
	SecurityAPIWriteLocked     = "security_api_write_locked"
	ProgressiveSecurityMode    = "progressive_security_mode"

	ResourceEnabled                  = "resource_safety_enabled"
	ResourceCPUThresholdPercent      = "resource_cpu_threshold_percent"
	ResourceCPUSuperPerCorePercent   = "resource_cpu_super_per_core_percent"
	ResourceCPUSuperTotalPercent     = "resource_cpu_super_total_percent"
	ResourceCPUSuperCycles           = "resource_cpu_super_cycles"
	ResourceCPUSuperSeconds          = "resource_cpu_super_seconds"
	ResourceMemoryThresholdPercent   = "resource_memory_threshold_percent"
	ResourceDiskThresholdPercent     = "resource_disk_threshold_percent"
	ResourceDiskJumpGB               = "resource_disk_jump_gb"
	ResourceDiskJumpMultiplier       = "resource_disk_jump_multiplier"
	ResourceExternalSignalMinutes    = "resource_external_signal_minutes"
	ResourceViolationWindowSeconds   = "resource_violation_window_seconds"
	ResourceViolationThreshold       = "resource_violation_threshold"
	ResourceQuarantineMinutes        = "resource_quarantine_minutes"
	ResourceSuspendOnEnforce         = "resource_suspend_on_enforce"
	ResourceUnderAttackOnEnforce     = "resource_under_attack_on_enforce"
	ResourcePermanentEnabled         = "resource_permanent_actions_enabled"
	ResourcePermanentOnlyStorage     = "permanent_actions_only_on_storage_spike"
	ResourceForcePermanentOnCPUSuper = "resource_force_permanent_on_cpu_super"
	ResourcePermanentBanIP           = "resource_permanent_ban_ip"
	ResourcePermanentDeleteServer    = "resource_permanent_delete_server"
	ResourcePermanentDeleteOwner     = "resource_permanent_delete_owner"
	ResourcePageSize                 = "resource_safety_page_size"

	NodeSecureModeEnabled     = "node_secure_mode_enabled"
	NodeSecretAutoQuarantine  = "node_secret_auto_quarantine"
	NodeSecretAction          = "node_secret_action"
	NodeSecretQuarantineMin   = "node_secret_quarantine_minutes"
	NodeEscapeBlock           = "node_escape_block"
	NodeScanMaxFiles          = "node_scan_max_files"
	NodeScanMaxFileBytes      = "node_scan_max_file_bytes"
	NodeScanMaxPayloadBytes   = "node_scan_max_payload_bytes"
	NodeDeployGateEnabled     = "node_deploy_gate_enabled"
	NodeDeployBlockOnHigh     = "node_deploy_block_on_high"
	NodeMemoryLeakGrowthPct   = "node_memory_leak_growth_percent"
	NodeMemoryLeakReclaimPct  = "node_memory_leak_gc_reclaim_percent"
	NodeMemoryLeakMinSamples  = "node_memory_leak_min_samples"
	NodeServerRootTemplate    = "node_server_root_template"

	ReputationEnabled       = "reputation_network_enabled"
	ReputationEndpoint      = "reputation_network_endpoint"
	ReputationToken         = "reputation_network_token"
	ReputationSource        = "reputation_network_source"
	ReputationMinConfidence = "reputation_network_min_confidence"
)

// Catalog lists every setting the engine reads.
var Catalog = map[string]Definition{}

func def(key string, kind Kind, dflt string, min, max float64) {
	Catalog[key] = Definition{Key: key, Kind: kind, Default: dflt, Min: min, Max: max}
}

//nolint:gochecknoinits // the catalog is static data
func init() {
	def(AdaptiveAlpha, KindFloat, "0.05", 0.05, 0.8)
	def(AdaptiveAnomalyThreshold, KindFloat, "2.5", 1.2, 8.0)
	def(AdaptivePageSize, KindInt, "200", 10, 1000)

	def(DDoSAutoTuneEnabled, KindBool, "true", 0, 0)
	def(DDoSBurstThreshold10s, KindInt, "150", 40, 800)
	def(DDoSProfile, KindString, "normal", 0, 0)
	def(DDoSRateLimitPerMin, KindInt, "600", 10, 100000)
	def(DDoSBlockDurationMin, KindInt, "10", 1, 10080)
	def(DDoSChallengeEnabled, KindBool, "false", 0, 0)
	def(DDoSWhitelist, KindString, "", 0, 0)

	def(TrustEnabled, KindBool, "true", 0, 0)
	def(TrustQuarantineThreshold, KindInt, "30", 0, 100)
	def(TrustElevatedThreshold, KindInt, "50", 0, 100)
	def(TrustQuarantineMinutes, KindInt, "30", 1, 10080)
	def(TrustProfileCooldownMin, KindInt, "15", 1, 1440)
	def(TrustDropThreshold, KindInt, "20", 1, 100)
	def(TrustDropWindowMinutes, KindInt, "10", 1, 1440)
	def(TrustLockdownCooldownMin, KindInt, "10", 1, 1440)
	def(TrustStaleMinutes, KindInt, "10", 1, 1440)
	def(TrustPageSize, KindInt, "100", 10, 1000)

	def(SecurityEmergencyMode, KindBool, "false", 0, 0)
	def(SecurityRegistrationLocked, KindBool, "false", 0, 0)
	def(SecurityAPIWriteLocked, KindBool, "false", 0, 0)
	def(ProgressiveSecurityMode, KindString, "normal", 0, 0)

	def(ResourceEnabled, KindBool, "true", 0, 0)
	def(ResourceCPUThresholdPercent, KindFloat, "95", 10, 10000)
	def(ResourceCPUSuperPerCorePercent, KindFloat, "98", 50, 100)
	def(ResourceCPUSuperTotalPercent, KindFloat, "780", 100, 25600)
	def(ResourceCPUSuperCycles, KindInt, "3", 1, 100)
	def(ResourceCPUSuperSeconds, KindInt, "180", 10, 86400)
	def(ResourceMemoryThresholdPercent, KindFloat, "95", 10, 100)
	def(ResourceDiskThresholdPercent, KindFloat, "95", 10, 100)
	def(ResourceDiskJumpGB, KindFloat, "5", 0.1, 10000)
	def(ResourceDiskJumpMultiplier, KindFloat, "3", 1.5, 100)
	def(ResourceExternalSignalMinutes, KindInt, "10", 1, 1440)
	def(ResourceViolationWindowSeconds, KindInt, "300", 30, 86400)
	def(ResourceViolationThreshold, KindInt, "3", 1, 100)
	def(ResourceQuarantineMinutes, KindInt, "60", 1, 10080)
	def(ResourceSuspendOnEnforce, KindBool, "true", 0, 0)
	def(ResourceUnderAttackOnEnforce, KindBool, "false", 0, 0)
	def(ResourcePermanentEnabled, KindBool, "false", 0, 0)
	def(ResourcePermanentOnlyStorage, KindBool, "true", 0, 0)
	def(ResourceForcePermanentOnCPUSuper, KindBool, "false", 0, 0)
	def(ResourcePermanentBanIP, KindBool, "true", 0, 0)
	def(ResourcePermanentDeleteServer, KindBool, "true", 0, 0)
	def(ResourcePermanentDeleteOwner, KindBool, "false", 0, 0)
	def(ResourcePageSize, KindInt, "100", 10, 1000)

	def(NodeSecureModeEnabled, KindBool, "true", 0, 0)
	def(NodeSecretAutoQuarantine, KindBool, "true", 0, 0)
	def(NodeSecretAction, KindString, "redact", 0, 0)
	def(NodeSecretQuarantineMin, KindInt, "60", 1, 10080)
	def(NodeEscapeBlock, KindBool, "true", 0, 0)
	def(NodeScanMaxFiles, KindInt, "2000", 10, 100000)
	def(NodeScanMaxFileBytes, KindInt, "524288", 1024, 67108864)
	def(NodeScanMaxPayloadBytes, KindInt, "1048576", 1024, 67108864)
	def(NodeDeployGateEnabled, KindBool, "true", 0, 0)
	def(NodeDeployBlockOnHigh, KindBool, "false", 0, 0)
	def(NodeMemoryLeakGrowthPct, KindFloat, "5", 0.5, 100)
	def(NodeMemoryLeakReclaimPct, KindFloat, "10", 0, 100)
	def(NodeMemoryLeakMinSamples, KindInt, "5", 3, 30)
	def(NodeServerRootTemplate, KindString, "/var/lib/pterodactyl/volumes/{uuid}", 0, 0)

	def(ReputationEnabled, KindBool, "false", 0, 0)
	def(ReputationEndpoint, KindString, "", 0, 0)
	def(ReputationToken, KindString, "", 0, 0)
	def(ReputationSource, KindString, "sentinel", 0, 0)
	def(ReputationMinConfidence, KindInt, "50", 0, 100)
}
