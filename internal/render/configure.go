package render

import (
	"encoding/xml"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/pkg/apperr"
	"OptionsFlow/pkg/util"
)

// Overall outcomes of a configuration request.
const (
	ConfigSuccess = "success"
	ConfigPartial = "partial"
	ConfigFailed  = "failed"
)

// ConfigurationStatus folds per-configuration outcomes into one status.
func ConfigurationStatus(outcomes []models.ConfigurationOutcome) string {
	accepted := 0
	for _, o := range outcomes {
		if o.Accepted() {
			accepted++
		}
	}
	switch {
	case len(outcomes) > 0 && accepted == len(outcomes):
		return ConfigSuccess
	case accepted > 0:
		return ConfigPartial
	default:
		return ConfigFailed
	}
}

type configurationXML struct {
	XMLName   xml.Name     `xml:"options_monitoring_config"`
	Ticker    string       `xml:"ticker,attr"`
	Status    string       `xml:"status,attr"`
	Kind      string       `xml:"kind,attr,omitempty"`
	Hint      string       `xml:"hint,omitempty"`
	Processed processedXML `xml:"processed_configurations"`
}

type processedXML struct {
	Count    int             `xml:"count,attr"`
	Accepted int             `xml:"accepted,attr"`
	Rejected int             `xml:"rejected,attr"`
	Items    []configItemXML `xml:"configuration"`
}

type configItemXML struct {
	Index      int              `xml:"index,attr"`
	Expiration string           `xml:"expiration,attr"`
	Status     string           `xml:"status,attr"`
	Strikes    strikeListXML    `xml:"strikes"`
	Contracts  monitoredKeysXML `xml:"contracts"`
	Broker     *brokerReplyXML  `xml:"broker,omitempty"`
	Warnings   []string         `xml:"warning"`
	Error      *errorXML        `xml:"error,omitempty"`
}

type brokerReplyXML struct {
	ContractsAdded          int    `xml:"contracts_added,attr"`
	TotalContractsMonitored int    `xml:"total_contracts_monitored,attr"`
	Timestamp               string `xml:"timestamp,attr,omitempty"`
	Message                 string `xml:"message,omitempty"`
}

// Configuration renders the per-configuration confirmation document. A mix
// of accepted and rejected configurations is reported as partial with kind
// PARTIAL; nothing is collapsed into a single pass/fail.
func Configuration(ticker string, outcomes []models.ConfigurationOutcome) string {
	doc := configurationXML{
		Ticker:    ticker,
		Status:    ConfigurationStatus(outcomes),
		Processed: processedXML{Count: len(outcomes)},
	}
	var firstErr error
	for _, o := range outcomes {
		item := configItemXML{
			Index:      o.Index,
			Expiration: util.FormatExpiration(o.Configuration.Expiration),
			Status:     "accepted",
			Strikes:    strikeListXML{Count: len(o.Configuration.Strikes)},
			Contracts:  monitoredKeysXML{Count: len(o.Keys), Contracts: contractRefs(o.Keys)},
			Warnings:   o.Warnings,
		}
		for _, s := range o.Configuration.Strikes {
			item.Strikes.Strikes = append(item.Strikes.Strikes, strikeRefXML{Price: s.StringFixed(2)})
		}
		if o.Accepted() {
			doc.Processed.Accepted++
			if r := o.Reply; r != nil {
				item.Broker = &brokerReplyXML{
					ContractsAdded:          r.ContractsAdded,
					TotalContractsMonitored: r.TotalContractsMonitored,
					Timestamp:               ts(r.Timestamp),
					Message:                 r.Message,
				}
			}
		} else {
			doc.Processed.Rejected++
			item.Status = "rejected"
			el := errorElement(FromError("configure_options_monitoring", o.Err))
			item.Error = &el
			if firstErr == nil {
				firstErr = o.Err
			}
		}
		doc.Processed.Items = append(doc.Processed.Items, item)
	}

	switch doc.Status {
	case ConfigPartial:
		doc.Kind = string(apperr.Partial)
		doc.Hint = apperr.DefaultHint(apperr.Partial)
	case ConfigFailed:
		if firstErr != nil {
			kind := apperr.KindOf(firstErr)
			doc.Kind = string(kind)
			doc.Hint = apperr.DefaultHint(kind)
		}
	}
	return marshal(doc)
}
