package render

import (
	"encoding/xml"
	"strconv"

	"OptionsFlow/internal/domain/models"
)

type healthXML struct {
	XMLName    xml.Name      `xml:"data_broker_health"`
	Status     string        `xml:"status,attr"`
	Connection connectionXML `xml:"connection"`
	CheckedAt  string        `xml:"timestamp"`
	Message    string        `xml:"message"`
}

type connectionXML struct {
	Target         string `xml:"target"`
	Connected      bool   `xml:"connected"`
	Serving        string `xml:"serving"`
	ResponseTimeMs string `xml:"response_time_ms"`
}

// Health renders a successful probe.
func Health(hs models.HealthStatus) string {
	doc := healthXML{
		Status: "healthy",
		Connection: connectionXML{
			Target:         hs.Target,
			Connected:      hs.Reachable,
			Serving:        hs.Serving,
			ResponseTimeMs: ms(hs.Latency),
		},
		CheckedAt: ts(hs.CheckedAt),
		Message:   "Data broker is accessible and responding",
	}
	if hs.Serving == "UNKNOWN" {
		doc.Message = "Data broker is reachable; it does not expose a health service"
	}
	return marshal(doc)
}

// HealthDetails lists probe fields for an error envelope.
func HealthDetails(hs models.HealthStatus) map[string]string {
	d := map[string]string{
		"target":           hs.Target,
		"reachable":        strconv.FormatBool(hs.Reachable),
		"response_time_ms": ms(hs.Latency),
		"timestamp":        ts(hs.CheckedAt),
	}
	if hs.Serving != "" {
		d["serving"] = hs.Serving
	}
	return d
}
