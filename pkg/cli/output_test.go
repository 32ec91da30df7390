package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"mercator-hq/dispatch/pkg/sockets"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{in: "", want: FormatText},
		{in: "text", want: FormatText},
		{in: "json", want: FormatJSON},
		{in: "csv", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatters(t *testing.T) {
	data := map[string]string{"key": "value"}

	text, err := NewFormatter(FormatText).Format("hello")
	if err != nil || string(text) != "hello\n" {
		t.Errorf("text Format() = %q, %v", text, err)
	}

	for _, indent := range []bool{false, true} {
		f := &JSONFormatter{Indent: indent}
		out, err := f.Format(data)
		if err != nil {
			t.Fatalf("Format() error = %v", err)
		}
		var got map[string]string
		if err := json.Unmarshal(out, &got); err != nil || got["key"] != "value" {
			t.Errorf("indent=%v: got %s (%v)", indent, out, err)
		}
	}
}

func testEndpoints() []*sockets.Endpoint {
	return []*sockets.Endpoint{
		{
			Name:        sockets.PrimaryName,
			Address:     "unix:/tmp/d/backends/backend.abc",
			Kind:        sockets.KindUnix,
			Protocol:    sockets.ProtocolSession,
			Concurrency: 4,
		},
		{
			Name:        sockets.SecondaryName,
			Address:     "tcp://127.0.0.1:40123",
			Kind:        sockets.KindTCP,
			Protocol:    sockets.ProtocolHTTP,
			Concurrency: 1,
		},
	}
}

func TestAdvertiseEndpoints_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := AdvertiseEndpoints(&buf, FormatText, testEndpoints()); err != nil {
		t.Fatalf("AdvertiseEndpoints() error = %v", err)
	}

	want := "!> socket: main;unix:/tmp/d/backends/backend.abc;session;4\n" +
		"!> socket: http;tcp://127.0.0.1:40123;http;1\n" +
		"!> \n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestAdvertiseEndpoints_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := AdvertiseEndpoints(&buf, FormatJSON, testEndpoints()); err != nil {
		t.Fatalf("AdvertiseEndpoints() error = %v", err)
	}

	var got []EndpointInfo
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d endpoints, want 2", len(got))
	}
	if got[0].Kind != "unix" || got[0].Protocol != "session" || got[0].Concurrency != 4 {
		t.Errorf("main = %+v", got[0])
	}
	if got[1].Address != "tcp://127.0.0.1:40123" {
		t.Errorf("http = %+v", got[1])
	}
}
