package model

// Views are the boundary representations handed to the HTTP layer: traffic in
// Kbps rounded to two decimals and timestamps already formatted.

type MetricsView struct {
	CPU    string `json:"cpu"`
	Memory string `json:"memory"`
	Uptime string `json:"uptime"`
}

type NetworkView struct {
	Incoming string `json:"incoming"`
	Outgoing string `json:"outgoing"`
}

type DeviceView struct {
	ID              string `json:"id"`
	IP              string `json:"ip"`
	Port            string `json:"port"`
	BytesIn         string `json:"bytesIn"`
	BytesOut        string `json:"bytesOut"`
	Protocol        string `json:"protocol"`
	ConnectionCount int    `json:"connectionCount"`
	LastSeen        string `json:"lastSeen"`
}

type FindingView struct {
	ID         string   `json:"id"`
	Timestamp  string   `json:"timestamp"`
	Message    string   `json:"message"`
	Mitigation string   `json:"mitigation"`
	Category   Category `json:"category"`
	Severity   string   `json:"severity"`
}
