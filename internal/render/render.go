// Package render turns aggregated views, monitoring state and failures into
// the XML documents returned by the tools.
//
// Every document is produced with encoding/xml so text and attribute values
// are escaped, and characters that XML cannot carry are replaced with U+FFFD.
// Numbers use fixed precision and instants use util.TimestampLayout so that
// the same input always renders byte-identical output.
package render

import (
	"encoding/xml"
	"sort"
	"strconv"
	"time"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/pkg/util"
)

const indent = "  "

// fallback is returned when marshalling itself fails, which only happens on
// programming errors. It is still a well-formed error document.
const fallback = `<error operation="render" kind="PROTOCOL"><message>document could not be rendered</message></error>`

func marshal(v interface{}) string {
	b, err := xml.MarshalIndent(v, "", indent)
	if err != nil {
		return fallback
	}
	return string(b) + "\n"
}

func f2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func ms(d time.Duration) string {
	return f2(float64(d) / float64(time.Millisecond))
}

func ts(t time.Time) string {
	return util.FormatTimestamp(t)
}

type contractRefXML struct {
	Key        string `xml:"key,attr"`
	Expiration string `xml:"expiration,attr"`
	Strike     string `xml:"strike,attr"`
	OptionType string `xml:"option_type,attr"`
}

func contractRef(k models.ContractKey) contractRefXML {
	return contractRefXML{
		Key:        k.String(),
		Expiration: util.FormatExpiration(k.Expiration),
		Strike:     k.Strike.StringFixed(2),
		OptionType: string(k.Side),
	}
}

func contractRefs(keys []models.ContractKey) []contractRefXML {
	out := make([]contractRefXML, 0, len(keys))
	for _, k := range keys {
		out = append(out, contractRef(k))
	}
	return out
}

type countXML struct {
	Type  string `xml:"type,attr"`
	Count int    `xml:",chardata"`
}

func counts(m map[string]int) []countXML {
	kinds := make([]string, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	out := make([]countXML, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, countXML{Type: k, Count: m[k]})
	}
	return out
}
