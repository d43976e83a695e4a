package measure

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	pkgerrors "speedtest-exporter/pkg/errors"
)

// Measurement is the result of one successful speed test.
type Measurement struct {
	LatencyMs    float64 `json:"ping_latency_ms"`
	DownloadMbps float64 `json:"download_speed_mbps"`
	UploadMbps   float64 `json:"upload_speed_mbps"`
}

// rawResult mirrors the fields of speedtest-cli --json we rely on.
// Pointers distinguish a missing field from a zero value.
type rawResult struct {
	Ping     *float64 `json:"ping"`
	Download *float64 `json:"download"`
	Upload   *float64 `json:"upload"`
}

// ToMbps converts bits per second to megabits per second rounded to two
// decimal places. Rounding works on the exact binary value with ties to even,
// so 2.675 (stored just below) gives 2.67 and 1.125 gives 1.12.
func ToMbps(bps float64) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(bps/1_000_000, 'f', 2, 64), 64)
	return v
}

// Parse decodes the JSON document printed by the speed-test command.
// ping is taken as reported; download and upload are converted from bit/s.
func Parse(out []byte) (Measurement, error) {
	dec := json.NewDecoder(bytes.NewReader(out))

	var raw rawResult
	if err := dec.Decode(&raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return Measurement{}, fmt.Errorf("%w: %s is %s, want number", pkgerrors.ErrInvalidValue, typeErr.Field, typeErr.Value)
		}
		return Measurement{}, fmt.Errorf("%w: %v", pkgerrors.ErrMalformedOutput, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Measurement{}, fmt.Errorf("%w: trailing data after JSON object", pkgerrors.ErrMalformedOutput)
	}

	fields := []struct {
		name string
		v    *float64
	}{
		{"ping", raw.Ping},
		{"download", raw.Download},
		{"upload", raw.Upload},
	}
	for _, f := range fields {
		if f.v == nil {
			return Measurement{}, fmt.Errorf("%w: %s", pkgerrors.ErrMissingField, f.name)
		}
		if *f.v < 0 || math.IsInf(*f.v, 0) || math.IsNaN(*f.v) {
			return Measurement{}, fmt.Errorf("%w: %s = %v", pkgerrors.ErrInvalidValue, f.name, *f.v)
		}
	}

	return Measurement{
		LatencyMs:    *raw.Ping,
		DownloadMbps: ToMbps(*raw.Download),
		UploadMbps:   ToMbps(*raw.Upload),
	}, nil
}
