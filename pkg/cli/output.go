package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"mercator-hq/dispatch/pkg/sockets"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is plain text output (default).
	FormatText OutputFormat = "text"
	// FormatJSON is JSON output.
	FormatJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// Formatter formats command output.
type Formatter interface {
	Format(data any) ([]byte, error)
	FormatTo(w io.Writer, data any) error
}

// TextFormatter formats output as plain text.
type TextFormatter struct{}

// Format converts data to text format.
func (f *TextFormatter) Format(data any) ([]byte, error) {
	return []byte(fmt.Sprintf("%v\n", data)), nil
}

// FormatTo writes data to writer in text format.
func (f *TextFormatter) FormatTo(w io.Writer, data any) error {
	_, err := fmt.Fprintf(w, "%v\n", data)
	return err
}

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	Indent bool
}

// Format converts data to JSON format.
func (f *JSONFormatter) Format(data any) ([]byte, error) {
	if f.Indent {
		return json.MarshalIndent(data, "", "  ")
	}
	return json.Marshal(data)
}

// FormatTo writes data to writer in JSON format.
func (f *JSONFormatter) FormatTo(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// NewFormatter creates a new formatter for the specified format.
func NewFormatter(format OutputFormat) Formatter {
	if format == FormatJSON {
		return &JSONFormatter{Indent: true}
	}
	return &TextFormatter{}
}

// AdvertisePrefix starts every line of the endpoint advertisement.
const AdvertisePrefix = "!> "

// EndpointInfo is the JSON form of an advertised endpoint.
type EndpointInfo struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	Kind        string `json:"kind"`
	Protocol    string `json:"protocol"`
	Concurrency int    `json:"concurrency"`
}

// AdvertiseEndpoints writes the endpoints in the given format. The text
// format is line oriented:
//
//	!> socket: main;unix:/tmp/dispatch.1/backends/backend.x;session;4
//	!> socket: http;tcp://127.0.0.1:40123;http;1
//	!>
func AdvertiseEndpoints(w io.Writer, format OutputFormat, endpoints []*sockets.Endpoint) error {
	if format == FormatJSON {
		infos := make([]EndpointInfo, 0, len(endpoints))
		for _, ep := range endpoints {
			infos = append(infos, EndpointInfo{
				Name:        ep.Name,
				Address:     ep.Address,
				Kind:        string(ep.Kind),
				Protocol:    string(ep.Protocol),
				Concurrency: ep.Concurrency,
			})
		}
		return NewFormatter(FormatJSON).FormatTo(w, infos)
	}

	for _, ep := range endpoints {
		if _, err := fmt.Fprintf(w, "%ssocket: %s\n", AdvertisePrefix, ep); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s\n", AdvertisePrefix)
	return err
}
