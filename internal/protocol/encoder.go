// internal/protocol/encoder.go
package protocol

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"siggen-service/internal/model"
)

// Command is a framed ASCII line ready to be written to the port
type Command string

// String returns the command including its terminator
func (c Command) String() string { return string(c) }

// Bytes returns the wire bytes of the command
func (c Command) Bytes() []byte { return []byte(c) }

// Request is a typed parameter change for one channel
type Request struct {
	Parameter Parameter
	Channel   Channel
	Value     float64
	Enable    bool
	Waveform  Waveform
}

// Encoder turns typed requests into command lines using one Profile.
// It performs no I/O and is safe for concurrent use.
type Encoder struct {
	profile *Profile
}

// NewEncoder creates an encoder for the given profile
func NewEncoder(profile *Profile) *Encoder {
	return &Encoder{profile: profile}
}

// Profile returns the profile the encoder was built with
func (e *Encoder) Profile() *Profile {
	return e.profile
}

// Encode dispatches a Request to the matching parameter encoder
func (e *Encoder) Encode(req Request) (Command, error) {
	switch req.Parameter {
	case ParamOutput:
		return e.Output(req.Channel, req.Enable)
	case ParamWaveform:
		return e.Waveform(req.Channel, req.Waveform)
	default:
		return e.Value(req.Parameter, req.Channel, req.Value)
	}
}

// Frequency encodes a frequency in hertz
func (e *Encoder) Frequency(ch Channel, hz float64) (Command, error) {
	return e.Value(ParamFrequency, ch, hz)
}

// Amplitude encodes a peak amplitude in volts
func (e *Encoder) Amplitude(ch Channel, volts float64) (Command, error) {
	return e.Value(ParamAmplitude, ch, volts)
}

// Offset encodes a DC offset in volts
func (e *Encoder) Offset(ch Channel, volts float64) (Command, error) {
	return e.Value(ParamOffset, ch, volts)
}

// DutyCycle encodes a duty cycle in percent
func (e *Encoder) DutyCycle(ch Channel, percent float64) (Command, error) {
	return e.Value(ParamDutyCycle, ch, percent)
}

// Phase encodes a phase in degrees
func (e *Encoder) Phase(ch Channel, degrees float64) (Command, error) {
	return e.Value(ParamPhase, ch, degrees)
}

// Attenuation encodes an attenuation step
func (e *Encoder) Attenuation(ch Channel, step int) (Command, error) {
	return e.Value(ParamAttenuation, ch, float64(step))
}

// Value encodes any numeric parameter through the profile's field table
func (e *Encoder) Value(param Parameter, ch Channel, v float64) (Command, error) {
	prefix, spec, err := e.prefix(param, ch)
	if err != nil {
		return "", err
	}

	payload, err := FormatField(v, spec.Field)
	if err != nil {
		return "", fmt.Errorf("%s on channel %d: %w", param, ch, err)
	}

	return e.Frame(prefix + payload), nil
}

// Output selects the enable or disable command for a channel
func (e *Encoder) Output(ch Channel, enable bool) (Command, error) {
	prefix, _, err := e.prefix(ParamOutput, ch)
	if err != nil {
		return "", err
	}

	suffix := e.profile.DisableSuffix
	if enable {
		suffix = e.profile.EnableSuffix
	}
	return e.Frame(prefix + suffix), nil
}

// Waveform encodes a waveform selection; shapes missing from the profile are rejected
func (e *Encoder) Waveform(ch Channel, w Waveform) (Command, error) {
	prefix, spec, err := e.prefix(ParamWaveform, ch)
	if err != nil {
		return "", err
	}

	code, ok := e.profile.WaveformCodes[w]
	if !ok {
		return "", model.InvalidParameter("unknown waveform %q", w)
	}

	payload, err := FormatField(float64(code), spec.Field)
	if err != nil {
		return "", fmt.Errorf("waveform code %d: %w", code, err)
	}
	return e.Frame(prefix + payload), nil
}

// Frame appends the profile terminator to a raw command
func (e *Encoder) Frame(raw string) Command {
	return Command(raw + e.profile.Terminator)
}

func (e *Encoder) prefix(param Parameter, ch Channel) (string, CommandSpec, error) {
	letter, ok := e.profile.ChannelLetters[ch]
	if !ok {
		return "", CommandSpec{}, model.InvalidParameter("unsupported channel %d", ch)
	}
	spec, ok := e.profile.Commands[param]
	if !ok {
		return "", CommandSpec{}, model.InvalidParameter("parameter %s not supported by profile %s", param, e.profile.Name)
	}
	return e.profile.WritePrefix + letter + spec.Code, spec, nil
}

// FormatField renders v with the field's fixed width and precision.
// Rounding is half away from zero on the shortest decimal representation of v.
func FormatField(v float64, f Field) (string, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", model.InvalidParameter("value %v is not finite", v)
	}

	d := decimal.NewFromFloat(v).Shift(int32(f.Shift)).Round(int32(f.Precision))
	if d.IsNegative() && !f.Signed {
		return "", model.InvalidParameter("negative value %v not representable", v)
	}

	intPart, frac, _ := strings.Cut(d.Abs().StringFixed(int32(f.Precision)), ".")
	if len(intPart) > f.IntDigits {
		return "", model.InvalidParameter("value %v overflows %d integer digits", v, f.IntDigits)
	}

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteString(strings.Repeat("0", f.IntDigits-len(intPart)))
	b.WriteString(intPart)
	if f.Precision > 0 {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String(), nil
}
