package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mastercactapus/parkcal/calibration"
	"github.com/mastercactapus/parkcal/machine"
)

func NewCaptureCommand() *cobra.Command {
	var tool int
	cmd := &cobra.Command{
		Use:     "capture",
		Short:   "Record the current carriage position",
		GroupID: gCalibration,
	}
	cmd.PersistentFlags().IntVarP(&tool, "tool", "t", -1, "tool being calibrated (default: the tool of the current session)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "park",
			Short: "Lock the tool in its post and record the park position",
			Long: `Lock the tool in its post and record the carriage X and Y as the park
position. Jog the carriage until the lock lines up with the tool plate first.`,
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return captureStep(cmd, tool, calibration.CaptureParkPosition, (*calibration.Session).Park)
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Record the carriage Y as the tool clearance limit",
			Long: `Record the carriage Y as the tool clearance limit. Unlock the tool and jog
the carriage along Y until it is clear of the tool first.`,
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return captureStep(cmd, tool, calibration.CaptureClearPosition, (*calibration.Session).Clear)
			},
		},
	)
	return cmd
}

type captureFunc func(ctx context.Context, c machine.Client, cal calibration.ToolCalibration) (calibration.ToolCalibration, error)

func captureStep(cmd *cobra.Command, tool int, capture captureFunc, record func(*calibration.Session, calibration.ToolCalibration)) error {
	s, err := openSession(cfg, tool)
	if err != nil {
		return err
	}

	err = withMachine(cmd.Context(), func(m *machine.Machine) error {
		cal, err := capture(cmd.Context(), m, s.Tool)
		if err != nil {
			return fmt.Errorf("failed to capture %s position: %w", cmd.Name(), err)
		}
		record(s, cal)
		return nil
	})
	if err != nil {
		return err
	}
	if err = saveSession(cfg, s); err != nil {
		return err
	}
	return printSession(cmd, s)
}

func printSession(cmd *cobra.Command, s *calibration.Session) error {
	out := cmd.OutOrStdout()
	cal := s.Tool
	fmt.Fprintf(out, "Session %s (updated %s)\n", s.ID, s.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  Tool:             %d %s\n", cal.ToolNumber, cal.ToolName)
	fmt.Fprintf(out, "  Manhattan offset: %g\n", cal.ManhattanOffset)
	if s.ParkCaptured {
		fmt.Fprintf(out, "  Park position:    X%g Y%g\n", cal.XPark, cal.YPark)
	} else {
		fmt.Fprintln(out, "  Park position:    not captured")
	}
	if s.ClearCaptured {
		fmt.Fprintf(out, "  Clearance:        Y%g\n", cal.YClear)
	} else {
		fmt.Fprintln(out, "  Clearance:        not captured")
	}
	return nil
}

func NewShowCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "show",
		Short:   "Show the calibration in progress",
		GroupID: gCalibration,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cfg, -1)
			if err != nil {
				return err
			}
			if !asJSON {
				return printSession(cmd, s)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
