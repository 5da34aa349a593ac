package render

import (
	"encoding/xml"
	"sort"

	"OptionsFlow/pkg/apperr"
)

// Envelope is the content of an error document. Details are rendered as
// name/value pairs sorted by name.
type Envelope struct {
	Operation string
	Kind      apperr.Kind
	Message   string
	Hint      string
	Field     string
	Ticker    string
	Details   map[string]string
}

// FromError builds an envelope for op out of any error. Unclassified errors
// go through apperr.As; a missing hint falls back to the kind default.
func FromError(op string, err error) Envelope {
	ae := apperr.As(err)
	if ae == nil {
		ae = apperr.New(apperr.Unavailable, "unknown failure")
	}
	env := Envelope{
		Operation: op,
		Kind:      ae.Kind,
		Message:   ae.Message,
		Hint:      ae.Hint,
		Field:     ae.Field,
	}
	if ae.Err != nil && ae.Err.Error() != ae.Message {
		env.Message = ae.Message + ": " + ae.Err.Error()
	}
	if env.Hint == "" {
		env.Hint = apperr.DefaultHint(ae.Kind)
	}
	return env
}

type errorXML struct {
	XMLName   xml.Name    `xml:"error"`
	Operation string      `xml:"operation,attr"`
	Kind      string      `xml:"kind,attr"`
	Ticker    string      `xml:"ticker,attr,omitempty"`
	Field     string      `xml:"field,attr,omitempty"`
	Message   string      `xml:"message"`
	Hint      string      `xml:"hint,omitempty"`
	Details   []detailXML `xml:"detail"`
}

type detailXML struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// Error renders the error document shared by every operation.
func Error(env Envelope) string {
	return marshal(errorElement(env))
}

func errorElement(env Envelope) errorXML {
	doc := errorXML{
		Operation: env.Operation,
		Kind:      string(env.Kind),
		Ticker:    env.Ticker,
		Field:     env.Field,
		Message:   env.Message,
		Hint:      env.Hint,
	}
	names := make([]string, 0, len(env.Details))
	for name := range env.Details {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		doc.Details = append(doc.Details, detailXML{Name: name, Value: env.Details[name]})
	}
	return doc
}
