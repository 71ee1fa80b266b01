// cmd/siggenctl/commands_test.go
package main

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siggen-service/internal/model"
)

// runCLI executes siggenctl from an empty directory so the built-in defaults apply
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	chdir(t, t.TempDir())

	configPath, verbose, simulate, baudRate = "", false, false, 0
	for _, c := range []*cobra.Command{writeCmd, sequenceCmd, portsCmd} {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestSetCommand_Simulated(t *testing.T) {
	out, err := runCLI(t, "--simulate", "set", "amplitude", "1", "1.5")
	require.NoError(t, err)

	assert.Contains(t, out, "TEST <-")
	assert.Contains(t, out, "WMA01.50")
	assert.Contains(t, out, "Sent")
}

func TestSetCommand_Attenuation(t *testing.T) {
	out, err := runCLI(t, "--simulate", "set", "attenuation", "2", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "WFT1")

	_, err = runCLI(t, "--simulate", "set", "attenuation", "2", "half")
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}

func TestSetCommand_Rejected(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unsupported channel", []string{"--simulate", "set", "amplitude", "3", "1.5"}},
		{"channel not a number", []string{"--simulate", "set", "amplitude", "main", "1.5"}},
		{"value not a number", []string{"--simulate", "set", "frequency", "1", "fast"}},
		{"unknown parameter", []string{"--simulate", "set", "gain", "1", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, tt.args...)
			assert.ErrorIs(t, err, model.ErrInvalidParameter)
			assert.NotContains(t, out, "TEST <-")
		})
	}
}

func TestWriteCommand_Simulated(t *testing.T) {
	t.Run("framed", func(t *testing.T) {
		out, err := runCLI(t, "--simulate", "write", "--frame", "WMN1")
		require.NoError(t, err)
		assert.Contains(t, out, "TEST <-")
		assert.Contains(t, out, "WMN1")
	})

	t.Run("raw", func(t *testing.T) {
		out, err := runCLI(t, "--simulate", "write", "RMA")
		require.NoError(t, err)
		assert.Contains(t, out, "RMA")
	})

	t.Run("empty", func(t *testing.T) {
		_, err := runCLI(t, "--simulate", "write", "")
		assert.ErrorIs(t, err, model.ErrInvalidParameter)
	})
}

func TestOutputCommand_Simulated(t *testing.T) {
	out, err := runCLI(t, "--simulate", "output", "2", "on")
	require.NoError(t, err)
	assert.Contains(t, out, "WFN1")

	_, err = runCLI(t, "--simulate", "output", "2", "maybe")
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}

func TestSequenceCommand_List(t *testing.T) {
	out, err := runCLI(t, "sequence")
	require.NoError(t, err)
	assert.Contains(t, out, "initial")
	assert.Contains(t, out, "stop-reset")

	out, err = runCLI(t, "sequence", "--show", "stop-reset")
	require.NoError(t, err)
	assert.Contains(t, out, "WMX1")
	assert.Contains(t, out, "UUL0")

	_, err = runCLI(t, "sequence", "--show", "warmup")
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(oldwd); err != nil {
			panic(err)
		}
	})
}
