// internal/service/sequence.go
package service

import (
	"fmt"
	"sort"
	"time"

	"siggen-service/internal/config"
)

// Built-in sequence names
const (
	SequenceInitial   = "initial"
	SequenceStopReset = "stop-reset"
	SequenceApply     = "apply"
	SequenceStop      = "stop"
)

// defaultSequenceSettle is the firmware settling time between script steps
const defaultSequenceSettle = time.Second

// Step is one command of a script and the delay before the next step
type Step struct {
	Command string        `json:"command"`
	Settle  time.Duration `json:"settle"`
}

// Sequence is a versioned, ordered command script. It is not atomic: a failed
// step leaves the earlier steps applied on the device.
type Sequence struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
	Steps   []Step `json:"steps"`
}

// NewSequence builds a script with the same settle time after every command
func NewSequence(name string, version int, settle time.Duration, commands []string) Sequence {
	steps := make([]Step, len(commands))
	for i, cmd := range commands {
		steps[i] = Step{Command: cmd, Settle: settle}
	}
	return Sequence{Name: name, Version: version, Steps: steps}
}

// DefaultSequences returns the built-in scripts. Commands are unframed; the
// session appends the profile terminator.
func DefaultSequences() map[string]Sequence {
	return map[string]Sequence{
		SequenceInitial: NewSequence(SequenceInitial, 1, defaultSequenceSettle, []string{
			"UBZ1", "UMS0", "UUL0", "WMW00", "WMF11000000000",
			"WMA101.00", "WMF20000000000", "WMA201.00", "WMN1", "WMN2",
			"WMW01", "WMF00000000000000", "WMA02.00", "WMO00.00", "WMD50.0",
			"WMP000", "WMT0", "WMN1", "WMF0001000.000000", "RMW", "RMF",
			"RMA", "RMO", "RMD", "RMP", "RMT", "RMN",
		}),
		SequenceStopReset: NewSequence(SequenceStopReset, 1, defaultSequenceSettle, []string{
			"WMX1", "WMX2", "UBZ0", "UMS0", "UUL0",
		}),
	}
}

// BuildSequences applies configured overrides on top of defaults
func BuildSequences(defaults map[string]Sequence, overrides map[string]config.SequenceConfig) map[string]Sequence {
	sequences := make(map[string]Sequence, len(defaults)+len(overrides))
	for name, seq := range defaults {
		sequences[name] = seq
	}

	for name, override := range overrides {
		version := override.Version
		if version == 0 {
			version = sequences[name].Version + 1
		}
		settle := override.Settle
		if settle == 0 {
			settle = defaultSequenceSettle
		}
		sequences[name] = NewSequence(name, version, settle, override.Commands)
	}
	return sequences
}

// SequenceNames returns the names of the given scripts in sorted order
func SequenceNames(sequences map[string]Sequence) []string {
	names := make([]string, 0, len(sequences))
	for name := range sequences {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SequenceError reports the step at which a script stopped
type SequenceError struct {
	Sequence string `json:"sequence"`
	Version  int    `json:"version"`
	Step     int    `json:"step"`
	Total    int    `json:"total"`
	Command  string `json:"command"`
	Err      error  `json:"-"`
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("sequence %s v%d stopped at step %d/%d (%s): %v",
		e.Sequence, e.Version, e.Step, e.Total, e.Command, e.Err)
}

func (e *SequenceError) Unwrap() error {
	return e.Err
}
