package policy

import (
	"fmt"

	"github.com/fulmenhq/pkgscout/pkg/config"
)

// ParseCoolingConfig extracts cooling configuration from raw policy data.
// It returns nil when the policy has no cooling section.
func ParseCoolingConfig(policyData map[string]interface{}) (*config.CoolingConfig, error) {
	raw, present := policyData["cooling"]
	if !present || raw == nil {
		return nil, nil
	}
	coolingCfg, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("cooling must be a mapping, got %T", raw)
	}

	enabled, _ := coolingCfg["enabled"].(bool)
	if !enabled {
		return &config.CoolingConfig{Enabled: false}, nil
	}

	cfg := config.CoolingConfig{
		Enabled:    true,
		MinAgeDays: 7, // default: 1 week
	}
	if minAge, ok := coolingCfg["min_age_days"].(int); ok {
		if minAge < 0 {
			return nil, fmt.Errorf("cooling.min_age_days must not be negative")
		}
		cfg.MinAgeDays = minAge
	}

	if exceptions, ok := coolingCfg["exceptions"].([]interface{}); ok {
		cfg.Exceptions = parseExceptions(exceptions)
	}

	return &cfg, nil
}

// parseExceptions extracts cooling exception rules from raw policy data
func parseExceptions(exceptions []interface{}) []config.CoolingException {
	var result []config.CoolingException

	for _, exc := range exceptions {
		excMap, ok := exc.(map[string]interface{})
		if !ok {
			continue
		}

		exception := config.CoolingException{}
		if pattern, ok := excMap["pattern"].(string); ok {
			exception.Pattern = pattern
		}
		if reason, ok := excMap["reason"].(string); ok {
			exception.Reason = reason
		}
		if until, ok := excMap["until"].(string); ok {
			exception.Until = until
		}

		// pattern is the minimum requirement
		if exception.Pattern != "" {
			result = append(result, exception)
		}
	}

	return result
}
