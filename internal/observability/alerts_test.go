package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestAlertRules(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "carsale.yml"))
	require.NoError(t, err)

	var spec alertSpec
	require.NoError(t, yaml.Unmarshal(data, &spec))
	require.Len(t, spec.Groups, 1)
	group := spec.Groups[0]
	assert.Equal(t, "carsale", group.Name)

	expected := map[string]struct {
		severity string
		runbook  string
	}{
		"HighErrorRate":        {severity: "critical", runbook: "docs/runbook.md#high-error-rate"},
		"HighLatency":          {severity: "warning", runbook: "docs/runbook.md#high-latency"},
		"MediaCleanupFailing":  {severity: "warning", runbook: "docs/runbook.md#media-cleanup-failing"},
		"AnalyticsWarmupStale": {severity: "warning", runbook: "docs/runbook.md#analytics-warmup-stale"},
	}
	require.Len(t, group.Rules, len(expected))

	runbook, err := os.ReadFile(filepath.Join("..", "..", "docs", "runbook.md"))
	require.NoError(t, err)

	for _, rule := range group.Rules {
		want, ok := expected[rule.Alert]
		require.True(t, ok, "unexpected rule %q", rule.Alert)
		assert.Equal(t, want.severity, rule.Labels["severity"], rule.Alert)
		assert.Equal(t, want.runbook, rule.Annotations["runbook"], rule.Alert)
		anchor := want.runbook[strings.Index(want.runbook, "#")+1:]
		assert.Contains(t, string(runbook), "\n## "+anchor+"\n", "runbook section for %s", rule.Alert)
		assert.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		assert.NotEmpty(t, rule.Annotations["description"], rule.Alert)
		assert.NotEmpty(t, rule.For, rule.Alert)
		assert.True(t, strings.Contains(rule.Expr, "carsale_"), "rule %s must use carsale metrics", rule.Alert)
	}
}
