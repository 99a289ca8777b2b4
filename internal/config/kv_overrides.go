package config

import (
	"strconv"
	"strings"
)

// ApplyKVOverrides applies free-form -c key=value overrides.
func ApplyKVOverrides(cfg Config, overrides []string) Config {
	if len(overrides) == 0 {
		return cfg
	}
	for _, raw := range overrides {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "workdir":
			cfg.Workdir = val
		case "sandbox_mode":
			cfg.SandboxMode = val
		case "approval_policy":
			cfg.ApprovalPolicy = val
		case "policy_file":
			cfg.PolicyFile = val
		case "log_level":
			cfg.LogLevel = val
		case "audit.path":
			cfg.Audit.Path = val
		case "rag.base_url":
			cfg.RAG.BaseURL = val
		case "rag.model":
			cfg.RAG.Model = val
		case "limits.command_timeout_seconds":
			setInt(&cfg.Limits.CommandTimeoutSeconds, val)
		case "limits.max_output_bytes":
			setInt(&cfg.Limits.MaxOutputBytes, val)
		case "limits.max_results":
			setInt(&cfg.Limits.MaxResults, val)
		case "limits.max_concurrent_commands":
			setInt(&cfg.Limits.MaxConcurrentCommands, val)
		case "limits.max_concurrent_calls":
			setInt(&cfg.Limits.MaxConcurrentCalls, val)
		}
	}
	return cfg
}

func setInt(dst *int, raw string) {
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		*dst = n
	}
}
