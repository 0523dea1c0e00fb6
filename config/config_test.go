package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/parkcal/machine/duet"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parkcal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, TransportRRF, cfg.Machine.Transport)
	assert.Equal(t, "http://jubilee.local", cfg.Machine.Address)
	assert.Equal(t, 115200, cfg.Machine.Baud)
	assert.Equal(t, 2*time.Minute, cfg.Machine.ReplyTimeout)
	assert.Equal(t, 60.0, cfg.Calibration.ManhattanOffset)
	assert.Equal(t, 10000.0, cfg.Machine.TravelFeed)
	assert.Equal(t, 3000.0, cfg.Macros.ParkFeed)
	assert.Equal(t, "./macros", cfg.Macros.OutputDir)
	assert.Equal(t, "/macros/tool_lock.g", cfg.Machine.LockMacro)
	assert.Equal(t, "/macros/tool_unlock.g", cfg.Machine.UnlockMacro)
	assert.Empty(t, cfg.Tools)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
machine:
  transport: dsf
  address: http://10.0.0.5
calibration:
  manhattan_offset: 45.5
tools:
  - number: 2
    name: Side Camera
    approach_x: 280
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, TransportDSF, cfg.Machine.Transport)
	assert.Equal(t, duet.ModeDSF, cfg.httpMode())
	assert.Equal(t, "http://10.0.0.5", cfg.Machine.Address)
	assert.Equal(t, 3000.0, cfg.Macros.ParkFeed)

	tool, ok := cfg.Tool(2)
	require.True(t, ok)
	assert.Equal(t, "Side Camera", tool.Name)
	require.NotNil(t, tool.ApproachX)
	assert.Equal(t, 280.0, *tool.ApproachX)
	assert.Nil(t, tool.ApproachY)

	_, ok = cfg.Tool(3)
	assert.False(t, ok)

	cal := cfg.NewCalibration(2)
	assert.Equal(t, 2, cal.ToolNumber)
	assert.Equal(t, "Side Camera", cal.ToolName)
	assert.Equal(t, 45.5, cal.ManhattanOffset)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("PARKCAL_MACHINE_ADDRESS", "http://duet.lan")
	t.Setenv("PARKCAL_MACROS_PARK_FEED", "1500")

	cfg, err := Load(writeConfig(t, "machine:\n  address: http://ignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://duet.lan", cfg.Machine.Address)
	assert.Equal(t, 1500.0, cfg.Macros.ParkFeed)
}

func TestLoad_Invalid(t *testing.T) {
	for name, content := range map[string]string{
		"transport": "machine:\n  transport: carrier-pigeon\n",
		"baud":      "machine:\n  transport: serial\n  baud: 0\n",
		"tool":      "tools:\n  - number: -1\n",
		"duplicate": "tools:\n  - number: 1\n  - number: 1\n",
		"yaml":      "machine: [\n",
	} {
		_, err := Load(writeConfig(t, content))
		assert.Error(t, err, name)
	}
}

func TestOptions(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
machine:
  lock_macro: /macros/lock.g
  travel_feed: 6000
macros:
  template_dir: ./tmpl
`))
	require.NoError(t, err)

	mo := cfg.MachineOptions()
	assert.Equal(t, "/macros/lock.g", mo.LockMacro)
	assert.Equal(t, 6000.0, mo.TravelFeed)

	opt := cfg.MacroOptions()
	assert.Equal(t, "/macros/lock.g", opt.LockMacro)
	assert.Equal(t, "/macros/tool_unlock.g", opt.UnlockMacro)
	assert.Equal(t, 6000.0, opt.TravelFeed)
	assert.Equal(t, 3000.0, opt.ParkFeed)
	assert.Equal(t, "./tmpl", opt.TemplateDir)
}

func TestWriteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "parkcal.yaml")
	require.NoError(t, WriteTemplate(path, false))
	assert.Error(t, WriteTemplate(path, false))
	require.NoError(t, WriteTemplate(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Tools, 2)
	assert.Equal(t, "Side Camera", cfg.Tools[1].Name)
	assert.Equal(t, TransportRRF, cfg.Machine.Transport)
}
