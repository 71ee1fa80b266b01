// internal/protocol/profile.go
package protocol

import (
	"fmt"
	"sort"
)

// Channel identifies a generator output. Only channels present in the
// profile's ChannelLetters are accepted.
type Channel int

const (
	ChannelMain      Channel = 1
	ChannelAuxiliary Channel = 2
)

// Parameter is a settable device parameter
type Parameter string

const (
	ParamFrequency   Parameter = "frequency"
	ParamAmplitude   Parameter = "amplitude"
	ParamOffset      Parameter = "offset"
	ParamDutyCycle   Parameter = "duty_cycle"
	ParamPhase       Parameter = "phase"
	ParamAttenuation Parameter = "attenuation"
	ParamWaveform    Parameter = "waveform"
	ParamOutput      Parameter = "output"
)

// Field describes the fixed-width numeric payload of a command.
// The value is multiplied by 10^Shift, rounded half away from zero to
// Precision decimals and the integer part is zero-padded to IntDigits.
type Field struct {
	IntDigits int
	Precision int
	Shift     int
	Signed    bool
}

// CommandSpec maps one parameter to its command letter and payload layout
type CommandSpec struct {
	Code  string
	Field Field
}

// Profile is the declarative protocol table for one firmware family.
// Every width, prefix and terminator the encoder emits comes from here.
type Profile struct {
	Name           string
	Description    string
	WritePrefix    string
	ChannelLetters map[Channel]string
	Commands       map[Parameter]CommandSpec
	EnableSuffix   string
	DisableSuffix  string
	WaveformCodes  map[Waveform]int
	Terminator     string

	// FamilyPrefixes start the identity response of this firmware family
	FamilyPrefixes []string
}

// CommonFamilyPrefixes identify FY-series generators whatever the profile
var CommonFamilyPrefixes = []string{"FY23", "FY63"}

// IdentityPrefixes returns the handshake prefixes this profile accepts:
// the common FY-series prefixes followed by its own.
func (p *Profile) IdentityPrefixes() []string {
	prefixes := make([]string, 0, len(CommonFamilyPrefixes)+len(p.FamilyPrefixes))
	prefixes = append(prefixes, CommonFamilyPrefixes...)
	return append(prefixes, p.FamilyPrefixes...)
}

// WaveformForCode returns the shape that maps to a device code
func (p *Profile) WaveformForCode(code int) (Waveform, bool) {
	for w, c := range p.WaveformCodes {
		if c == code {
			return w, true
		}
	}
	return "", false
}

// Channels returns the supported channels in ascending order
func (p *Profile) Channels() []Channel {
	channels := make([]Channel, 0, len(p.ChannelLetters))
	for ch := range p.ChannelLetters {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	return channels
}

// WithTerminator returns a copy of the profile using a different line terminator
func (p *Profile) WithTerminator(terminator string) *Profile {
	clone := *p
	clone.Terminator = terminator
	return &clone
}

// fyWaveformCodes follows the FY6x00 wave table: sine 0, square 1, adj-pulse 5,
// triangle 7, ramp 8, negative ramp 9, first arbitrary slot 36.
var fyWaveformCodes = map[Waveform]int{
	WaveformSine:            0,
	WaveformSquare:          1,
	WaveformPulse:           5,
	WaveformTriangle:        7,
	WaveformSawtooth:        8,
	WaveformReverseSawtooth: 9,
	WaveformArbitrary:       36,
}

var fyChannelLetters = map[Channel]string{
	ChannelMain:      "M",
	ChannelAuxiliary: "F",
}

var profiles = map[string]*Profile{
	"fy6900": {
		Name:           "fy6900",
		Description:    "FY6900 firmware, frequency as 14-digit integer microhertz",
		FamilyPrefixes: []string{"FY69"},
		WritePrefix:    "W",
		ChannelLetters: fyChannelLetters,
		Commands: map[Parameter]CommandSpec{
			ParamFrequency:   {Code: "F", Field: Field{IntDigits: 14, Precision: 0, Shift: 6}},
			ParamAmplitude:   {Code: "A", Field: Field{IntDigits: 2, Precision: 2}},
			ParamOffset:      {Code: "O", Field: Field{IntDigits: 2, Precision: 2, Signed: true}},
			ParamDutyCycle:   {Code: "D", Field: Field{IntDigits: 2, Precision: 1}},
			ParamPhase:       {Code: "P", Field: Field{IntDigits: 3, Precision: 0}},
			ParamAttenuation: {Code: "T", Field: Field{IntDigits: 1, Precision: 0}},
			ParamWaveform:    {Code: "W", Field: Field{IntDigits: 2, Precision: 0}},
			ParamOutput:      {Code: "N"},
		},
		EnableSuffix:  "1",
		DisableSuffix: "0",
		WaveformCodes: fyWaveformCodes,
		Terminator:    "\n",
	},
	"fy6800": {
		Name:           "fy6800",
		Description:    "FY6800 firmware, frequency as integer hertz with 6-digit fraction",
		FamilyPrefixes: []string{"FY68"},
		WritePrefix:    "W",
		ChannelLetters: fyChannelLetters,
		Commands: map[Parameter]CommandSpec{
			ParamFrequency:   {Code: "F", Field: Field{IntDigits: 7, Precision: 6}},
			ParamAmplitude:   {Code: "A", Field: Field{IntDigits: 2, Precision: 2}},
			ParamOffset:      {Code: "O", Field: Field{IntDigits: 2, Precision: 2, Signed: true}},
			ParamDutyCycle:   {Code: "D", Field: Field{IntDigits: 2, Precision: 1}},
			ParamPhase:       {Code: "P", Field: Field{IntDigits: 3, Precision: 0}},
			ParamAttenuation: {Code: "T", Field: Field{IntDigits: 1, Precision: 0}},
			ParamWaveform:    {Code: "W", Field: Field{IntDigits: 2, Precision: 0}},
			ParamOutput:      {Code: "N"},
		},
		EnableSuffix:  "1",
		DisableSuffix: "0",
		WaveformCodes: fyWaveformCodes,
		Terminator:    "\n",
	},
}

// DefaultProfileName is used when configuration does not name a profile
const DefaultProfileName = "fy6900"

// DefaultProfile returns the profile used when none is configured
func DefaultProfile() *Profile {
	return profiles[DefaultProfileName]
}

// LookupProfile returns the built-in profile with the given name
func LookupProfile(name string) (*Profile, error) {
	if name == "" {
		name = DefaultProfileName
	}
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown protocol profile: %s", name)
	}
	return p, nil
}

// ProfileNames returns all built-in profile names
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
