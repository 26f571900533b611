package rules

import "github.com/crimson-sun/nocdash/internal/model"

// DefaultProfileName is used when no profile is configured.
const DefaultProfileName = "noc"

var (
	highCPU = Rule{
		Field: model.CPUUsage, Op: GE, Bound: 80,
		Diagnosis: "High CPU utilization",
		Remediation: []string{
			"Identify the processes with the highest CPU consumption",
			"Consider scaling out or redistributing the workload",
			"Review recent deployments for runaway jobs",
		},
	}
	highMemory = Rule{
		Field: model.MemoryUsage, Op: GE, Bound: 80,
		Diagnosis: "High memory usage",
		Remediation: []string{
			"Check for memory leaks in long-running services",
			"Restart services that hold excessive memory",
			"Plan a memory upgrade if usage stays high",
		},
	}
	highErrors = Rule{
		Field: model.ErrorCount, Op: GE, Bound: 10,
		Diagnosis: "Elevated error count",
		Remediation: []string{
			"Review the system and application logs for recurring errors",
			"Correlate errors with recent configuration changes",
		},
	}
	trafficBreach = Rule{
		Field: model.NetworkTrafficBreach, Op: EQ, Bound: 1,
		Diagnosis: "Network traffic breach detected",
		Remediation: []string{
			"Isolate the affected network segment",
			"Inspect traffic captures for unauthorized flows",
			"Escalate to the security team",
		},
	}
	firewallAlerts = Rule{
		Field: model.FirewallAlerts, Op: GE, Bound: 5,
		Diagnosis: "Multiple firewall alerts",
		Remediation: []string{
			"Review firewall logs for the source of the alerts",
			"Block offending addresses and tighten rules",
		},
	}
)

// classicFeatures is the feature order the NOC classifier was trained with.
var classicFeatures = []string{
	model.GridVoltage,
	model.GridFrequency,
	model.CoolingTemp,
	model.CoolingHumidity,
	model.ErrorCount,
	model.CPUUsage,
	model.MemoryUsage,
	model.NetworkTraffic,
	model.NetworkTrafficBreach,
	model.FirewallAlerts,
}

// DefaultProfiles returns fresh copies of the built-in profiles so callers
// may override rule tables without affecting each other.
func DefaultProfiles() []*Profile {
	all := make([]string, 0, len(model.Fields()))
	for _, f := range model.Fields() {
		all = append(all, f.Name)
	}
	common := []Rule{highCPU, highMemory, highErrors, trafficBreach, firewallAlerts}

	return []*Profile{
		{
			Name:     "noc",
			Title:    "Network Operations Center",
			Fields:   all,
			Features: clone(classicFeatures),
			Rules:    cloneRules(common),
		},
		{
			Name:     "classic",
			Title:    "Classic Telemetry",
			Fields:   clone(classicFeatures),
			Features: clone(classicFeatures),
			Rules:    cloneRules(common),
		},
		{
			Name:   "power",
			Title:  "Power & Cooling",
			Fields: []string{model.GridVoltage, model.GridFrequency, model.CoolingTemp, model.CoolingHumidity},
			Rules: []Rule{
				{
					Field: model.GridVoltage, Op: LT, Bound: 200,
					Diagnosis:   "Grid undervoltage",
					Remediation: []string{"Verify the utility feed and UPS input", "Switch critical load to backup power if the sag persists"},
				},
				{
					Field: model.GridVoltage, Op: GT, Bound: 250,
					Diagnosis:   "Grid overvoltage",
					Remediation: []string{"Check surge protection and voltage regulators", "Notify the facility electrician"},
				},
				{
					Field: model.GridFrequency, Op: LT, Bound: 49.5,
					Diagnosis:   "Grid frequency below nominal",
					Remediation: []string{"Confirm generator governor settings", "Monitor for load shedding events"},
				},
				{
					Field: model.GridFrequency, Op: GT, Bound: 50.5,
					Diagnosis:   "Grid frequency above nominal",
					Remediation: []string{"Confirm generator governor settings", "Report the deviation to the utility"},
				},
				{
					Field: model.CoolingTemp, Op: GE, Bound: 35,
					Diagnosis:   "Cooling temperature too high",
					Remediation: []string{"Inspect CRAC units and airflow paths", "Reduce rack density until temperature recovers"},
				},
				{
					Field: model.CoolingHumidity, Op: GE, Bound: 80,
					Diagnosis:   "Cooling humidity too high",
					Remediation: []string{"Check dehumidifier operation", "Look for water ingress near the cooling plant"},
				},
			},
		},
		{
			Name:  "security",
			Title: "Security & Resources",
			Fields: []string{
				model.FileIntegrity, model.ErrorCount, model.CPUUsage, model.MemoryUsage,
				model.NetworkTraffic, model.NetworkTrafficBreach, model.FirewallAlerts,
			},
			Rules: append(cloneRules(common),
				Rule{
					Field: model.FileIntegrity, Op: EQ, Bound: 0,
					Diagnosis:   "File integrity check failed",
					Remediation: []string{"Compare changed files against the last known good baseline", "Restore tampered files from backup"},
				},
				Rule{
					Field: model.NetworkTraffic, Op: GE, Bound: 8000,
					Diagnosis:   "Network traffic near link capacity",
					Remediation: []string{"Identify top talkers on the uplink", "Apply rate limits or add capacity"},
				},
			),
		},
	}
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}

func cloneRules(rs []Rule) []Rule {
	out := make([]Rule, len(rs))
	for i, r := range rs {
		r.Remediation = clone(r.Remediation)
		out[i] = r
	}
	return out
}
