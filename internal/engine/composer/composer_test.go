package composer

import (
	"strings"
	"testing"
	"time"

	"github.com/crimson-sun/nocdash/internal/engine/rules"
	"github.com/crimson-sun/nocdash/internal/model"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func profile(t *testing.T, name string) *rules.Profile {
	t.Helper()
	c, err := rules.NewCatalog(rules.DefaultProfiles())
	if err != nil {
		t.Fatal(err)
	}
	p, ok := c.Lookup(name)
	if !ok {
		t.Fatalf("no profile %q", name)
	}
	return p
}

func reading(overrides map[string]float64) model.Reading {
	r := model.Reading{}
	for _, f := range model.Fields() {
		r[f.Name] = f.Default
	}
	for k, v := range overrides {
		r[k] = v
	}
	return r
}

func compose(t *testing.T, p *rules.Profile, r model.Reading) (string, []rules.Rule) {
	t.Helper()
	v, fired, err := p.Evaluate(r)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return Compose(p, r, v, fired, fixedNow), fired
}

func TestComposeNormal(t *testing.T) {
	p := profile(t, "noc")
	out, _ := compose(t, p, reading(nil))

	for _, want := range []string{
		"System Status Report - 2026-03-14 09:30:00",
		"Overall Status: Normal",
		"Power:\n- Grid Voltage: 220 V\n- Grid Frequency: 50 Hz\n",
		"- Cooling Temperature: 25°C",
		"- File Integrity: Pass",
		"- Network Traffic: 100 Mbps",
		"- Network Traffic Breach: No",
		"Diagnosis:\n- No significant issues detected\n",
		"Remediation:\n- No immediate actions required.\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n---\n%s", want, out)
		}
	}
}

func TestComposeHighCPUScenario(t *testing.T) {
	p := profile(t, "noc")
	r := reading(map[string]float64{
		model.CPUUsage:             90,
		model.MemoryUsage:          50,
		model.ErrorCount:           0,
		model.NetworkTrafficBreach: 0,
		model.FirewallAlerts:       0,
	})
	out, fired := compose(t, p, r)

	if len(fired) != 1 {
		t.Fatalf("expected exactly one fired rule, got %v", fired)
	}
	if !strings.Contains(out, "Overall Status: Abnormal") {
		t.Errorf("expected Abnormal status\n%s", out)
	}
	if !strings.Contains(out, "- High CPU utilization (CPU Usage 90% >= 80%)") {
		t.Errorf("missing diagnosis line\n%s", out)
	}
	block := "[High CPU utilization]\n- Identify the processes with the highest CPU consumption\n"
	if !strings.Contains(out, block) {
		t.Errorf("missing remediation block\n%s", out)
	}
	if strings.Contains(out, noIssues) || strings.Contains(out, noActions) {
		t.Errorf("abnormal report should not contain the all-clear lines\n%s", out)
	}
}

func TestComposeDiagnosisListsExactlyFiredInOrder(t *testing.T) {
	p := profile(t, "noc")
	r := reading(map[string]float64{
		model.FirewallAlerts: 12,
		model.MemoryUsage:    91,
	})
	out, _ := compose(t, p, r)

	diag := section(out, "Diagnosis:", "Remediation:")
	lines := strings.Split(strings.TrimSpace(diag), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 diagnosis lines, got %d:\n%s", len(lines), diag)
	}
	if !strings.HasPrefix(lines[0], "- High memory usage") {
		t.Errorf("first diagnosis = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "- Multiple firewall alerts") {
		t.Errorf("second diagnosis = %q", lines[1])
	}

	rem := section(out, "Remediation:", "")
	if strings.Index(rem, "[High memory usage]") > strings.Index(rem, "[Multiple firewall alerts]") {
		t.Errorf("remediation blocks out of rule-table order:\n%s", rem)
	}
}

func TestComposeDeterministic(t *testing.T) {
	p := profile(t, "security")
	r := reading(map[string]float64{model.FileIntegrity: 0})
	a, _ := compose(t, p, r)
	b, _ := compose(t, p, r)
	if a != b {
		t.Fatal("Compose is not deterministic")
	}
}

func TestComposeOnlyProfileFields(t *testing.T) {
	p := profile(t, "power")
	out, _ := compose(t, p, reading(nil))
	if strings.Contains(out, "CPU Usage") || strings.Contains(out, "Security:") {
		t.Errorf("power report should only list power and cooling fields\n%s", out)
	}
}

func TestFormatValue(t *testing.T) {
	traffic, _ := model.LookupField(model.NetworkTraffic)
	breach, _ := model.LookupField(model.NetworkTrafficBreach)
	errs, _ := model.LookupField(model.ErrorCount)
	freq, _ := model.LookupField(model.GridFrequency)
	cpu, _ := model.LookupField(model.CPUUsage)

	tests := []struct {
		f    model.Field
		v    float64
		want string
	}{
		{traffic, 10000, "10,000 Mbps"},
		{traffic, 12.5, "12.5 Mbps"},
		{breach, 1, "Yes"},
		{breach, 0, "No"},
		{errs, 1000, "1,000"},
		{freq, 49.5, "49.5 Hz"},
		{cpu, 79.5, "79.5%"},
		{cpu, 80, "80%"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.f, tt.v); got != tt.want {
			t.Errorf("FormatValue(%s, %v) = %q, want %q", tt.f.Name, tt.v, got, tt.want)
		}
	}
}

func TestDiagnosisLineFractionalBound(t *testing.T) {
	rule := rules.Rule{Field: model.CPUUsage, Op: rules.GE, Bound: 79.5, Diagnosis: "High CPU utilization"}
	got := DiagnosisLine(rule, model.Reading{model.CPUUsage: 80})
	if want := "High CPU utilization (CPU Usage 80% >= 79.5%)"; got != want {
		t.Fatalf("DiagnosisLine = %q, want %q", got, want)
	}
}

func section(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	s = s[i+len(start):]
	if end == "" {
		return s
	}
	if j := strings.Index(s, end); j >= 0 {
		return s[:j]
	}
	return s
}
