package history

// Visualization is the rule-table output used to pick a chart style.
type Visualization map[string]any

var byDeviceClass = map[string]Visualization{
	"current": {
		"type": "chart", "chart_type": "line", "color": "#FFA726",
		"show_points": true, "interpolation": "linear",
	},
	"voltage": {
		"type": "chart", "chart_type": "line", "color": "#42A5F5",
		"show_points": true, "interpolation": "linear",
	},
	"power": {
		"type": "chart", "chart_type": "line", "color": "#EF5350",
		"show_points": true, "interpolation": "linear",
	},
	"temperature": {
		"type": "chart", "chart_type": "line", "color": "#FF7043",
		"show_points": false, "interpolation": "monotone",
	},
	"battery": {
		"type": "gauge", "min": 0, "max": 100, "color": "#66BB6A",
	},
	"power_factor": {
		"type": "gauge", "min": 0, "max": 1, "color": "#7E57C2",
	},
}

var byDomain = map[string]Visualization{
	"switch": {
		"type": "timeline", "on_color": "#66BB6A", "off_color": "#BDBDBD",
	},
	"light": {
		"type": "timeline", "on_color": "#FFCA28", "off_color": "#BDBDBD",
	},
	"lock": {
		"type": "timeline", "on_color": "#EF5350", "off_color": "#66BB6A",
	},
	"cover": {
		"type": "timeline", "on_color": "#42A5F5", "off_color": "#BDBDBD",
	},
}

var neutralLineChart = Visualization{
	"type": "chart", "chart_type": "line", "color": "#90A4AE",
	"show_points": false, "interpolation": "linear",
}

// ResolveVisualization keys first by device_class, then domain, falling
// back to a neutral line chart for anything unrecognized.
func ResolveVisualization(deviceClass, domain string) Visualization {
	if deviceClass != "" {
		if v, ok := byDeviceClass[deviceClass]; ok {
			return v
		}
	}
	if v, ok := byDomain[domain]; ok {
		return v
	}
	return neutralLineChart
}
