package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mastercactapus/parkcal/calibration"
	"github.com/mastercactapus/parkcal/coord"
	"github.com/mastercactapus/parkcal/macro"
	"github.com/mastercactapus/parkcal/machine"
)

type terminalOperator struct {
	in  *bufio.Reader
	out io.Writer
}

var (
	promptColor = color.New(color.FgCyan, color.Bold)
	infoColor   = color.New(color.FgYellow)
	doneColor   = color.New(color.FgGreen, color.Bold)
)

func (o *terminalOperator) Prompt(msg string) (string, error) {
	promptColor.Fprint(o.out, msg+" ")
	line, err := o.in.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	return strings.TrimSpace(line), err
}

func (o *terminalOperator) Info(msg string) {
	infoColor.Fprintln(o.out, msg)
}

func NewWizardCommand() *cobra.Command {
	var (
		tool    int
		noHome  bool
		noWrite bool
		test    bool
	)
	cmd := &cobra.Command{
		Use:     "wizard",
		Short:   "Calibrate a tool step by step",
		Long:    "Guide the operator through calibrating the parking post of one tool, then write its macros.",
		GroupID: gCalibration,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cfg, tool)
			if err != nil {
				return err
			}
			op := &terminalOperator{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.OutOrStdout()}

			w := &calibration.Wizard{
				Operator: op,
				Home:     cfg.Calibration.Home && !noHome,
				Saved:    func(s *calibration.Session) error { return saveSession(cfg, s) },
			}
			if t, ok := cfg.Tool(s.Tool.ToolNumber); ok && t.ApproachX != nil && t.ApproachY != nil {
				w.Approach = &coord.Point{X: *t.ApproachX, Y: *t.ApproachY}
			}

			return withMachine(cmd.Context(), func(m *machine.Machine) error {
				w.Client = m
				if err := w.Run(cmd.Context(), s); err != nil {
					return fmt.Errorf("calibration stopped: %w", err)
				}
				doneColor.Fprintf(op.out, "Tool %d calibrated.\n", s.Tool.ToolNumber)
				if err := printSession(cmd, s); err != nil {
					return err
				}
				if noWrite {
					return nil
				}

				macros, err := renderMacros(cfg, s, "")
				if err != nil {
					return fmt.Errorf("failed to render macros: %w", err)
				}
				paths, err := macro.WriteAll(cfg.Macros.OutputDir, macros)
				if err != nil {
					return fmt.Errorf("failed to write macros: %w", err)
				}
				for _, p := range paths {
					op.Info("wrote " + p)
				}
				if !test {
					return nil
				}

				ans, err := op.Prompt("Upload the macros to /sys, then press enter to test a tool change (or type skip)")
				if err != nil || strings.EqualFold(ans, "skip") {
					return err
				}
				if err := calibration.TestToolChange(cmd.Context(), m, s.Tool); err != nil {
					return fmt.Errorf("tool change test failed: %w", err)
				}
				doneColor.Fprintln(op.out, "Tool change test complete.")
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&tool, "tool", "t", -1, "tool to calibrate (default: the tool of the current session)")
	flags.BoolVar(&noHome, "no-home", false, "skip homing before starting")
	flags.BoolVar(&noWrite, "no-write", false, "don't write the macros when done")
	flags.BoolVar(&test, "test", false, "pick up and park the tool with the new macros when done")
	return cmd
}
