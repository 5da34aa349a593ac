package render

import (
	"encoding/xml"
	"strings"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/pkg/util"
)

// Monitoring status values of the status document.
const (
	StatusActive       = "active"
	StatusNoMonitoring = "no_monitoring"
)

type statusXML struct {
	XMLName        xml.Name          `xml:"monitoring_status"`
	Ticker         string            `xml:"ticker,attr"`
	Status         string            `xml:"status,attr"`
	TotalContracts int               `xml:"total_contracts,attr"`
	Message        string            `xml:"message,omitempty"`
	Suggestion     string            `xml:"suggestion,omitempty"`
	Configurations configurationsXML `xml:"configurations"`
	Contracts      monitoredKeysXML  `xml:"monitored_contracts"`
}

type configurationsXML struct {
	Count int                `xml:"count,attr"`
	Sets  []configuredSetXML `xml:"configuration"`
}

type configuredSetXML struct {
	Expiration    string        `xml:"expiration,attr"`
	ContractCount int           `xml:"contract_count,attr"`
	Active        bool          `xml:"is_active,attr"`
	ConfiguredAt  string        `xml:"configured_at,attr,omitempty"`
	Strikes       strikeListXML `xml:"strikes"`
	OptionTypes   string        `xml:"option_types"`
}

type strikeListXML struct {
	Count   int            `xml:"count,attr"`
	Strikes []strikeRefXML `xml:"strike"`
}

type strikeRefXML struct {
	Price string `xml:"price,attr"`
}

type monitoredKeysXML struct {
	Count     int              `xml:"count,attr"`
	Contracts []contractRefXML `xml:"contract"`
}

// Status renders what the broker currently monitors for a ticker. A ticker
// without configurations renders the no_monitoring state.
func Status(st models.MonitoringStatus) string {
	keys := st.Keys()
	doc := statusXML{
		Ticker:         st.Ticker,
		Status:         StatusActive,
		TotalContracts: len(keys),
		Configurations: configurationsXML{Count: len(st.Configurations)},
		Contracts:      monitoredKeysXML{Count: len(keys), Contracts: contractRefs(keys)},
	}
	if len(st.Configurations) == 0 {
		doc.Status = StatusNoMonitoring
		doc.Message = "No monitoring configured for " + st.Ticker
		doc.Suggestion = "Use configure_options_monitoring to set up monitoring"
	} else if st.Message != "" {
		doc.Message = st.Message
	}

	for _, c := range st.Configurations {
		sides := make([]string, 0, len(c.Sides))
		for _, s := range c.Sides {
			sides = append(sides, string(s))
		}
		set := configuredSetXML{
			Expiration:    util.FormatExpiration(c.Expiration),
			ContractCount: c.ContractCount,
			Active:        c.Active,
			ConfiguredAt:  ts(c.ConfiguredAt),
			Strikes:       strikeListXML{Count: len(c.Strikes)},
			OptionTypes:   strings.Join(sides, ", "),
		}
		for _, s := range c.Strikes {
			set.Strikes.Strikes = append(set.Strikes.Strikes, strikeRefXML{Price: s.StringFixed(2)})
		}
		doc.Configurations.Sets = append(doc.Configurations.Sets, set)
	}
	return marshal(doc)
}
