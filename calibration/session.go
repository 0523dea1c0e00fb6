package calibration

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrNotCaptured is returned when a calibration is missing a measurement.
var ErrNotCaptured = errors.New("position not captured")

// Session is the calibration in progress, stored between invocations.
type Session struct {
	ID            uuid.UUID       `yaml:"id" json:"id"`
	Tool          ToolCalibration `yaml:"tool" json:"tool"`
	ParkCaptured  bool            `yaml:"park_captured" json:"parkCaptured"`
	ClearCaptured bool            `yaml:"clear_captured" json:"clearCaptured"`
	UpdatedAt     time.Time       `yaml:"updated_at" json:"updatedAt"`
}

// NewSession starts a session for the given tool.
func NewSession(cal ToolCalibration) *Session {
	return &Session{
		ID:        uuid.New(),
		Tool:      cal,
		UpdatedAt: time.Now(),
	}
}

// LoadSession reads a session file. A missing file is not an error; the
// returned session is nil in that case.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read session")
	}

	var s Session
	err = yaml.Unmarshal(data, &s)
	if err != nil {
		return nil, errors.Wrapf(err, "parse session %s", path)
	}
	s.Tool.ToolName = CleanName(s.Tool.ToolName)
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return &s, nil
}

// Save writes the session to path, creating parent directories.
func (s *Session) Save(path string) error {
	s.UpdatedAt = time.Now()
	data, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	if dir := filepath.Dir(path); dir != "." {
		err = os.MkdirAll(dir, 0o755)
		if err != nil {
			return errors.Wrap(err, "create session dir")
		}
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write session")
}

// Park records a captured park position.
func (s *Session) Park(cal ToolCalibration) {
	s.Tool = cal
	s.ParkCaptured = true
}

// Clear records a captured clearance position.
func (s *Session) Clear(cal ToolCalibration) {
	s.Tool = cal
	s.ClearCaptured = true
}

// Validate reports the first missing measurement.
func (s *Session) Validate() error {
	return ValidateCalibration(s.Tool, s.ParkCaptured, s.ClearCaptured)
}

// ValidateCalibration checks that both positions were captured. Values are
// not range checked.
func ValidateCalibration(cal ToolCalibration, parkCaptured, clearCaptured bool) error {
	if !parkCaptured {
		return errors.Wrapf(ErrNotCaptured, "tool %d: park", cal.ToolNumber)
	}
	if !clearCaptured {
		return errors.Wrapf(ErrNotCaptured, "tool %d: clearance", cal.ToolNumber)
	}
	return nil
}
