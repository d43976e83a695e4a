package measure

import (
	"errors"
	"testing"

	pkgerrors "speedtest-exporter/pkg/errors"
)

func TestToMbps(t *testing.T) {
	tests := []struct {
		bps  float64
		want float64
	}{
		{bps: 123456789, want: 123.46},
		{bps: 50000000, want: 50},
		{bps: 10000000, want: 10},
		{bps: 0, want: 0},
		{bps: 4999, want: 0},
		{bps: 5000, want: 0.01},
		{bps: 987654321.5, want: 987.65},
		{bps: 2675000, want: 2.67},
		{bps: 1125000, want: 1.12},
		{bps: 10125000, want: 10.12},
		{bps: 1135000, want: 1.14},
	}
	for _, tc := range tests {
		if got := ToMbps(tc.bps); got != tc.want {
			t.Errorf("ToMbps(%v) = %v, want %v", tc.bps, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(`{"ping": 12.3, "download": 50000000, "upload": 10000000}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Measurement{LatencyMs: 12.3, DownloadMbps: 50, UploadMbps: 10}
	if m != want {
		t.Fatalf("Parse = %+v, want %+v", m, want)
	}
}

func TestParseFullSpeedtestCLIDocument(t *testing.T) {
	out := `{"download": 123456789.01, "upload": 23456789.9, "ping": 18.512,
"server": {"url": "http://example.net/speedtest/upload.php", "name": "Example", "id": "1234"},
"timestamp": "2026-10-17T09:00:00.000000Z", "bytes_sent": 29360128, "bytes_received": 154539624,
"share": null, "client": {"ip": "192.0.2.1", "isp": "Example ISP"}}
`
	m, err := Parse([]byte(out))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.LatencyMs != 18.512 || m.DownloadMbps != 123.46 || m.UploadMbps != 23.46 {
		t.Fatalf("Parse = %+v", m)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{name: "empty", in: "", want: pkgerrors.ErrMalformedOutput},
		{name: "not json", in: "Retrieving speedtest.net configuration...", want: pkgerrors.ErrMalformedOutput},
		{name: "truncated", in: `{"ping": 12.3, "download"`, want: pkgerrors.ErrMalformedOutput},
		{name: "array", in: `[1, 2, 3]`, want: pkgerrors.ErrMalformedOutput},
		{name: "trailing", in: `{"ping": 1, "download": 2, "upload": 3} {"ping": 4}`, want: pkgerrors.ErrMalformedOutput},
		{name: "missing ping", in: `{"download": 2, "upload": 3}`, want: pkgerrors.ErrMissingField},
		{name: "missing upload", in: `{"ping": 1, "download": 2}`, want: pkgerrors.ErrMissingField},
		{name: "null download", in: `{"ping": 1, "download": null, "upload": 3}`, want: pkgerrors.ErrMissingField},
		{name: "string ping", in: `{"ping": "fast", "download": 2, "upload": 3}`, want: pkgerrors.ErrInvalidValue},
		{name: "negative", in: `{"ping": 1, "download": -2, "upload": 3}`, want: pkgerrors.ErrInvalidValue},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.in))
			if !errors.Is(err, tc.want) {
				t.Fatalf("Parse(%q) err = %v, want %v", tc.in, err, tc.want)
			}
		})
	}
}
