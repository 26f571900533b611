package collector

import (
	"errors"
	"strings"
	"testing"

	"github.com/crimson-sun/nocdash/internal/engine/rules"
	"github.com/crimson-sun/nocdash/internal/model"
)

func profile(t *testing.T, name string) *rules.Profile {
	t.Helper()
	c, err := rules.NewCatalog(rules.DefaultProfiles())
	if err != nil {
		t.Fatal(err)
	}
	p, _ := c.Lookup(name)
	return p
}

func form(values map[string]string) func(string) string {
	return func(name string) string { return values[name] }
}

func TestCollectDefaults(t *testing.T) {
	p := profile(t, "noc")
	r, err := Collect(p, form(nil))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(r) != len(p.Fields) {
		t.Fatalf("got %d fields, want %d", len(r), len(p.Fields))
	}
	if r[model.GridVoltage] != 220 || r[model.CPUUsage] != 50 || r[model.FileIntegrity] != 1 {
		t.Fatalf("unexpected defaults: %v", r)
	}
}

func TestCollectParsesValues(t *testing.T) {
	p := profile(t, "noc")
	r, err := Collect(p, form(map[string]string{
		model.CPUUsage:             " 90 ",
		model.NetworkTraffic:       "1234.5",
		model.NetworkTrafficBreach: "1",
	}))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if r[model.CPUUsage] != 90 || r[model.NetworkTraffic] != 1234.5 || r[model.NetworkTrafficBreach] != 1 {
		t.Fatalf("unexpected reading: %v", r)
	}
}

func TestCollectOnlyProfileFields(t *testing.T) {
	p := profile(t, "power")
	r, err := Collect(p, form(map[string]string{model.CPUUsage: "99"}))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r[model.CPUUsage]; ok {
		t.Fatal("power reading should not contain cpu_usage")
	}
	if len(r) != 4 {
		t.Fatalf("got %d fields, want 4", len(r))
	}
}

func TestCollectRejectsBadValues(t *testing.T) {
	p := profile(t, "noc")
	_, err := Collect(p, form(map[string]string{
		model.CPUUsage:             "101",
		model.ErrorCount:           "2.5",
		model.NetworkTrafficBreach: "2",
		model.GridVoltage:          "abc",
		model.GridFrequency:        "NaN",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	var fe *FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FieldError, got %T", err)
	}
	msg := err.Error()
	for _, want := range []string{"cpu_usage", "whole number", "0 or 1", "grid_voltage", "grid_frequency"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected error to mention %q, got: %v", want, msg)
		}
	}
}

func TestDefaults(t *testing.T) {
	p := profile(t, "security")
	r := Defaults(p)
	if len(r) != len(p.Fields) || r[model.FirewallAlerts] != 0 {
		t.Fatalf("unexpected defaults: %v", r)
	}
}
