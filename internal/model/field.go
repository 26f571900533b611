package model

// Kind describes how a field's value is collected and rendered.
type Kind int

const (
	Real    Kind = iota // free floating point value
	Integer             // whole number
	Flag                // 0 or 1
)

// Group names used to section a reading in reports and forms.
const (
	GroupPower    = "Power"
	GroupCooling  = "Cooling"
	GroupSystem   = "System"
	GroupNetwork  = "Network"
	GroupSecurity = "Security"
)

// Groups lists the field groups in display order.
var Groups = []string{GroupPower, GroupCooling, GroupSystem, GroupNetwork, GroupSecurity}

// Field describes one telemetry metric an operator can enter.
type Field struct {
	Name    string // column and form key, e.g. "cpu_usage"
	Label   string // human label, e.g. "CPU Usage"
	Unit    string // "V", "Hz", "%", ...; empty for counts and flags
	Group   string
	Kind    Kind
	Min     float64
	Max     float64
	Default float64
	// OnLabel/OffLabel render Flag values (1/0), e.g. "Pass"/"Fail".
	OnLabel  string
	OffLabel string
}

// Field names. They double as the column names of the reports table.
const (
	GridVoltage          = "grid_voltage"
	GridFrequency        = "grid_frequency"
	CoolingTemp          = "cooling_temp"
	CoolingHumidity      = "cooling_humidity"
	FileIntegrity        = "file_integrity"
	ErrorCount           = "error_count"
	CPUUsage             = "cpu_usage"
	MemoryUsage          = "memory_usage"
	NetworkTraffic       = "network_traffic"
	NetworkTrafficBreach = "network_traffic_breach"
	FirewallAlerts       = "firewall_alerts"
)

var registry = []Field{
	{Name: GridVoltage, Label: "Grid Voltage", Unit: "V", Group: GroupPower, Kind: Real, Min: 0, Max: 500, Default: 220},
	{Name: GridFrequency, Label: "Grid Frequency", Unit: "Hz", Group: GroupPower, Kind: Real, Min: 0, Max: 100, Default: 50},
	{Name: CoolingTemp, Label: "Cooling Temperature", Unit: "°C", Group: GroupCooling, Kind: Real, Min: 0, Max: 100, Default: 25},
	{Name: CoolingHumidity, Label: "Cooling Humidity", Unit: "%", Group: GroupCooling, Kind: Integer, Min: 0, Max: 100, Default: 50},
	{Name: FileIntegrity, Label: "File Integrity", Group: GroupSystem, Kind: Flag, Min: 0, Max: 1, Default: 1, OnLabel: "Pass", OffLabel: "Fail"},
	{Name: ErrorCount, Label: "Error Count", Group: GroupSystem, Kind: Integer, Min: 0, Max: 1000, Default: 0},
	{Name: CPUUsage, Label: "CPU Usage", Unit: "%", Group: GroupSystem, Kind: Integer, Min: 0, Max: 100, Default: 50},
	{Name: MemoryUsage, Label: "Memory Usage", Unit: "%", Group: GroupSystem, Kind: Integer, Min: 0, Max: 100, Default: 50},
	{Name: NetworkTraffic, Label: "Network Traffic", Unit: "Mbps", Group: GroupNetwork, Kind: Real, Min: 0, Max: 10000, Default: 100},
	{Name: NetworkTrafficBreach, Label: "Network Traffic Breach", Group: GroupSecurity, Kind: Flag, Min: 0, Max: 1, Default: 0, OnLabel: "Yes", OffLabel: "No"},
	{Name: FirewallAlerts, Label: "Firewall Alerts", Group: GroupSecurity, Kind: Integer, Min: 0, Max: 1000, Default: 0},
}

var byName = func() map[string]Field {
	m := make(map[string]Field, len(registry))
	for _, f := range registry {
		m[f.Name] = f
	}
	return m
}()

// Fields returns every known field in registry order.
func Fields() []Field {
	out := make([]Field, len(registry))
	copy(out, registry)
	return out
}

// LookupField returns the field with the given name.
func LookupField(name string) (Field, bool) {
	f, ok := byName[name]
	return f, ok
}
