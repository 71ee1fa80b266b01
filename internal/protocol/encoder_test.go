package protocol

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siggen-service/internal/model"
)

func newTestEncoder(t *testing.T, name string) *Encoder {
	t.Helper()
	profile, err := LookupProfile(name)
	require.NoError(t, err)
	return NewEncoder(profile)
}

func TestEncoder_AmplitudeChannelOne(t *testing.T) {
	enc := newTestEncoder(t, "fy6900")

	cmd, err := enc.Amplitude(ChannelMain, 1.0)
	require.NoError(t, err)
	assert.Equal(t, "WMA01.00\n", cmd.String())
}

func TestEncoder_Commands(t *testing.T) {
	enc := newTestEncoder(t, "fy6900")

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"frequency 1kHz", Request{Parameter: ParamFrequency, Channel: ChannelMain, Value: 1000}, "WMF00001000000000\n"},
		{"frequency 60MHz", Request{Parameter: ParamFrequency, Channel: ChannelAuxiliary, Value: 60e6}, "WFF60000000000000\n"},
		{"auxiliary amplitude", Request{Parameter: ParamAmplitude, Channel: ChannelAuxiliary, Value: 2.5}, "WFA02.50\n"},
		{"negative offset", Request{Parameter: ParamOffset, Channel: ChannelMain, Value: -1.5}, "WMO-01.50\n"},
		{"positive offset", Request{Parameter: ParamOffset, Channel: ChannelMain, Value: 3}, "WMO03.00\n"},
		{"duty cycle", Request{Parameter: ParamDutyCycle, Channel: ChannelMain, Value: 50}, "WMD50.0\n"},
		{"phase", Request{Parameter: ParamPhase, Channel: ChannelAuxiliary, Value: 90}, "WFP090\n"},
		{"attenuation", Request{Parameter: ParamAttenuation, Channel: ChannelMain, Value: 1}, "WMT1\n"},
		{"output on", Request{Parameter: ParamOutput, Channel: ChannelMain, Enable: true}, "WMN1\n"},
		{"output off", Request{Parameter: ParamOutput, Channel: ChannelAuxiliary, Enable: false}, "WFN0\n"},
		{"square", Request{Parameter: ParamWaveform, Channel: ChannelMain, Waveform: WaveformSquare}, "WMW01\n"},
		{"arbitrary", Request{Parameter: ParamWaveform, Channel: ChannelAuxiliary, Waveform: WaveformArbitrary}, "WFW36\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := enc.Encode(tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd.String())
		})
	}
}

func TestEncoder_RoundsHalfAwayFromZero(t *testing.T) {
	enc := newTestEncoder(t, "fy6900")

	tests := []struct {
		param Parameter
		value float64
		want  string
	}{
		{ParamAmplitude, 1.005, "WMA01.01\n"},
		{ParamAmplitude, 2.344, "WMA02.34\n"},
		{ParamOffset, -1.005, "WMO-01.01\n"},
		{ParamDutyCycle, 33.35, "WMD33.4\n"},
		{ParamPhase, 89.5, "WMP090\n"},
		{ParamPhase, 89.4, "WMP089\n"},
	}

	for _, tt := range tests {
		cmd, err := enc.Value(tt.param, ChannelMain, tt.value)
		require.NoError(t, err, "%s %v", tt.param, tt.value)
		assert.Equal(t, tt.want, cmd.String(), "%s %v", tt.param, tt.value)
	}
}

func TestEncoder_RejectsUnrepresentable(t *testing.T) {
	enc := newTestEncoder(t, "fy6900")

	tests := []struct {
		name string
		req  Request
	}{
		{"amplitude overflow", Request{Parameter: ParamAmplitude, Channel: ChannelMain, Value: 100}},
		{"amplitude rounds into overflow", Request{Parameter: ParamAmplitude, Channel: ChannelMain, Value: 99.996}},
		{"negative amplitude", Request{Parameter: ParamAmplitude, Channel: ChannelMain, Value: -1}},
		{"attenuation overflow", Request{Parameter: ParamAttenuation, Channel: ChannelMain, Value: 10}},
		{"frequency overflow", Request{Parameter: ParamFrequency, Channel: ChannelMain, Value: 100e6}},
		{"not a number", Request{Parameter: ParamFrequency, Channel: ChannelMain, Value: math.NaN()}},
		{"infinite", Request{Parameter: ParamPhase, Channel: ChannelMain, Value: math.Inf(1)}},
		{"unsupported channel", Request{Parameter: ParamAmplitude, Channel: Channel(3), Value: 1}},
		{"channel zero", Request{Parameter: ParamOutput, Channel: Channel(0), Enable: true}},
		{"unknown waveform", Request{Parameter: ParamWaveform, Channel: ChannelMain, Waveform: Waveform("noise")}},
		{"unknown parameter", Request{Parameter: Parameter("sweep"), Channel: ChannelMain, Value: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := enc.Encode(tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrInvalidParameter))
			assert.Empty(t, cmd)
		})
	}
}

// The numeric payload keeps its exact width and re-parses to the input
// within half a unit of the last digit.
func TestEncoder_FrequencyWidthAndReparse(t *testing.T) {
	values := []float64{0, 0.5, 1, 12.345678, 999.9999994, 1000, 1234567.891011, 9999999}

	for _, name := range ProfileNames() {
		enc := newTestEncoder(t, name)
		spec := enc.Profile().Commands[ParamFrequency]
		f := spec.Field

		wantLen := f.IntDigits
		if f.Precision > 0 {
			wantLen += 1 + f.Precision
		}

		for _, ch := range enc.Profile().Channels() {
			for _, v := range values {
				cmd, err := enc.Frequency(ch, v)
				require.NoError(t, err, "%s ch%d %v", name, ch, v)

				prefix := "W" + enc.Profile().ChannelLetters[ch] + spec.Code
				payload := strings.TrimSuffix(strings.TrimPrefix(cmd.String(), prefix), enc.Profile().Terminator)
				assert.Len(t, payload, wantLen, "%s ch%d %v", name, ch, v)

				parsed, err := strconv.ParseFloat(payload, 64)
				require.NoError(t, err)
				parsed /= math.Pow10(f.Shift)

				tolerance := 0.5 * math.Pow10(-(f.Precision + f.Shift))
				assert.InDelta(t, v, parsed, tolerance+1e-9, "%s ch%d %v", name, ch, v)
			}
		}
	}
}

func TestEncoder_FY6800Frequency(t *testing.T) {
	enc := newTestEncoder(t, "fy6800")

	cmd, err := enc.Frequency(ChannelMain, 1234.5)
	require.NoError(t, err)
	assert.Equal(t, "WMF0001234.500000\n", cmd.String())
}

func TestEncoder_TerminatorFromProfile(t *testing.T) {
	profile, err := LookupProfile("fy6900")
	require.NoError(t, err)

	enc := NewEncoder(profile.WithTerminator(""))
	cmd, err := enc.Output(ChannelMain, true)
	require.NoError(t, err)
	assert.Equal(t, "WMN1", cmd.String())

	// the built-in table is untouched
	assert.Equal(t, "\n", profile.Terminator)
}

func TestLookupProfile(t *testing.T) {
	p, err := LookupProfile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultProfileName, p.Name)

	_, err = LookupProfile("fy2300")
	assert.Error(t, err)

	assert.Equal(t, []string{"fy6800", "fy6900"}, ProfileNames())
}

func TestProfile_IdentityPrefixes(t *testing.T) {
	assert.Equal(t, []string{"FY23", "FY63", "FY69"}, DefaultProfile().IdentityPrefixes())

	p, err := LookupProfile("fy6800")
	require.NoError(t, err)
	assert.Equal(t, []string{"FY23", "FY63", "FY68"}, p.IdentityPrefixes())

	// the shared list is copied, never appended to
	_ = p.WithTerminator("\r\n").IdentityPrefixes()
	assert.Equal(t, []string{"FY23", "FY63"}, CommonFamilyPrefixes)
}

func TestParseWaveform(t *testing.T) {
	profile, err := LookupProfile("fy6900")
	require.NoError(t, err)

	tests := []struct {
		in      string
		want    Waveform
		wantErr bool
	}{
		{in: "sine", want: WaveformSine},
		{in: " Square ", want: WaveformSquare},
		{in: "reverse_sawtooth", want: WaveformReverseSawtooth},
		{in: "7", want: WaveformTriangle},
		{in: "36", want: WaveformArbitrary},
		{in: "4", wantErr: true},
		{in: "noise", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseWaveform(tt.in, profile)
		if tt.wantErr {
			assert.ErrorIs(t, err, model.ErrInvalidParameter, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
