// internal/protocol/waveform.go
package protocol

import (
	"strconv"
	"strings"

	"siggen-service/internal/model"
)

// Waveform is the closed set of wave shapes the control plane can select.
// The device code for each shape comes from the active Profile.
type Waveform string

const (
	WaveformSine            Waveform = "sine"
	WaveformSquare          Waveform = "square"
	WaveformTriangle        Waveform = "triangle"
	WaveformSawtooth        Waveform = "sawtooth"
	WaveformReverseSawtooth Waveform = "reverse-sawtooth"
	WaveformPulse           Waveform = "pulse"
	WaveformArbitrary       Waveform = "arbitrary"
)

// Waveforms lists every supported shape in display order
var Waveforms = []Waveform{
	WaveformSine,
	WaveformSquare,
	WaveformTriangle,
	WaveformSawtooth,
	WaveformReverseSawtooth,
	WaveformPulse,
	WaveformArbitrary,
}

// ParseWaveform accepts a shape name ("sine", "reverse_sawtooth", ...) or a numeric
// device code valid for the given profile.
func ParseWaveform(s string, profile *Profile) (Waveform, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "_", "-")
	for _, w := range Waveforms {
		if string(w) == name {
			return w, nil
		}
	}

	if code, err := strconv.Atoi(name); err == nil && profile != nil {
		if w, ok := profile.WaveformForCode(code); ok {
			return w, nil
		}
		return "", model.InvalidParameter("unknown waveform code %d for profile %s", code, profile.Name)
	}

	return "", model.InvalidParameter("unknown waveform %q", s)
}
