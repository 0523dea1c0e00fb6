package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mastercactapus/parkcal/calibration"
	"github.com/mastercactapus/parkcal/config"
)

// openSession loads the session file. A new session is started when none
// exists or when tool >= 0 names a different tool.
func openSession(c *config.Config, tool int) (*calibration.Session, error) {
	s, err := calibration.LoadSession(c.Session)
	if err != nil {
		return nil, err
	}
	switch {
	case s != nil && (tool < 0 || tool == s.Tool.ToolNumber):
		return s, nil
	case tool < 0 && s == nil:
		return nil, fmt.Errorf("no calibration in progress, pass --tool to start one")
	}

	s = calibration.NewSession(c.NewCalibration(tool))
	logrus.WithFields(logrus.Fields{"tool": tool, "session": s.ID}).Info("started calibration")
	return s, nil
}

func saveSession(c *config.Config, s *calibration.Session) error {
	err := s.Save(c.Session)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	logrus.WithField("file", c.Session).Debug("saved session")
	return nil
}
