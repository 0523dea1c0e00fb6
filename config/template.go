package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteTemplate writes a starter config file to path.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(starterTemplate), 0o644)
}

const starterTemplate = `machine:
  # rrf detects a standalone board or DSF; standalone, dsf and serial
  # select one explicitly.
  transport: rrf
  address: http://jubilee.local
  password: ""
  port: /dev/ttyACM0
  baud: 115200
  reply_timeout: 2m
  lock_macro: /macros/tool_lock.g
  unlock_macro: /macros/tool_unlock.g
  travel_feed: 10000

calibration:
  manhattan_offset: 60
  home: true

macros:
  output_dir: ./macros
  template_dir: ""
  park_feed: 3000

session: .parkcal/session.yaml

tools:
  - number: 0
    name: Extruder
  - number: 1
    name: Side Camera
    approach_x: 280
    approach_y: 300
`
