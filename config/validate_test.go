package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateConfigurationValidDefaultsPass(t *testing.T) {
	cfg := DefaultConfig()
	issues := ValidateConfiguration(cfg)
	for _, issue := range issues {
		assert.NotEqual(t, "error", issue.Level, issue.String())
	}
}

func TestValidateConfigurationCatchesEmptyAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.Address = ""
	issues := ValidateConfiguration(cfg)
	assert.Contains(t, issueFields(issues), "node.address")
}

func TestValidateConfigurationCatchesBadTrustLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.TrustDefault = "SUPER_TRUSTED"
	issues := ValidateConfiguration(cfg)
	assert.Contains(t, issueFields(issues), "security.trust_default")
}

func TestValidateConfigurationCatchesNonPositiveRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resilience.RateLimit.TokensPerSecond = 0
	issues := ValidateConfiguration(cfg)
	assert.Contains(t, issueFields(issues), "resilience.rate_limit.tokens_per_second")
}

func TestValidateConfigurationWarnsOnLowExponentialBase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resilience.Retry.ExponentialBase = 1
	issues := ValidateConfiguration(cfg)
	for _, issue := range issues {
		if issue.Field == "resilience.retry.exponential_base" {
			assert.Equal(t, "warning", issue.Level)
			return
		}
	}
	t.Fatal("expected a warning for exponential_base == 1")
}

func issueFields(issues []ValidationIssue) []string {
	fields := make([]string, len(issues))
	for i, issue := range issues {
		fields[i] = issue.Field
	}
	return fields
}
