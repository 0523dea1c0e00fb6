package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mastercactapus/parkcal/machine"
)

// withMachine connects to the machine for the duration of fn.
func withMachine(ctx context.Context, fn func(*machine.Machine) error) error {
	m, err := cfg.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			logrus.WithError(err).Warn("close connection")
		}
	}()
	return fn(m)
}

func NewHomeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "home",
		Short:   "Home all axes",
		GroupID: gMachine,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMachine(cmd.Context(), func(m *machine.Machine) error {
				if err := m.HomeAll(cmd.Context()); err != nil {
					return fmt.Errorf("failed to home: %w", err)
				}
				logrus.Info("homed all axes")
				return nil
			})
		},
	}
}

func NewMoveCommand() *cobra.Command {
	var relative bool
	var feed float64
	cmd := &cobra.Command{
		Use:     "move",
		Short:   "Move the carriage to a position",
		Long:    "Move the carriage to a position. Axes that are not given stay where they are.",
		Example: "  parkcal move --x 283.3 --y 200\n  parkcal move --relative --y -10",
		GroupID: gMachine,
		Args:    cobra.NoArgs,
	}

	flags := cmd.Flags()
	flags.Float64("x", 0, "X position")
	flags.Float64("y", 0, "Y position")
	flags.Float64("z", 0, "Z position")
	flags.Float64Var(&feed, "feed", 0, "feed rate in mm/min (default machine.travel_feed)")
	flags.BoolVarP(&relative, "relative", "r", false, "move relative to the current position")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		mv := machine.Move{Feed: feed}
		axis := func(name string) *float64 {
			if !cmd.Flags().Changed(name) {
				return nil
			}
			val, _ := cmd.Flags().GetFloat64(name)
			return machine.Coord(val)
		}
		mv.X, mv.Y, mv.Z = axis("x"), axis("y"), axis("z")
		if mv.Empty() {
			return fmt.Errorf("at least one of --x, --y or --z is required")
		}

		return withMachine(cmd.Context(), func(m *machine.Machine) error {
			var err error
			if relative {
				err = m.MoveBy(cmd.Context(), mv)
			} else {
				err = m.MoveTo(cmd.Context(), mv)
			}
			if err != nil {
				return fmt.Errorf("failed to move: %w", err)
			}
			return printPosition(cmd, m)
		})
	}
	return cmd
}

func NewLockCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "lock",
		Short:   "Run the tool lock macro",
		GroupID: gMachine,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMachine(cmd.Context(), func(m *machine.Machine) error {
				if err := m.ToolLock(cmd.Context()); err != nil {
					return fmt.Errorf("failed to lock: %w", err)
				}
				logrus.Info("tool locked")
				return nil
			})
		},
	}
}

func NewUnlockCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "unlock",
		Short:   "Run the tool unlock macro",
		GroupID: gMachine,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMachine(cmd.Context(), func(m *machine.Machine) error {
				if err := m.ToolUnlock(cmd.Context()); err != nil {
					return fmt.Errorf("failed to unlock: %w", err)
				}
				logrus.Info("tool unlocked")
				return nil
			})
		},
	}
}

func parseToolArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("invalid number of arguments")
	}
	if args[0] == "none" || args[0] == "park" {
		return -1, nil
	}
	tool, err := strconv.Atoi(args[0])
	if err != nil || tool < -1 {
		return 0, fmt.Errorf("invalid tool number: %q", args[0])
	}
	return tool, nil
}

func NewToolCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "tool <n|-1>",
		Short:   "Pick up tool n, or park the current tool with -1",
		Example: "  parkcal tool 2\n  parkcal tool -- -1\n  parkcal tool park",
		GroupID: gMachine,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, err := parseToolArg(args)
			if err != nil {
				return err
			}
			return withMachine(cmd.Context(), func(m *machine.Machine) error {
				if err := m.ToolChange(cmd.Context(), tool); err != nil {
					return fmt.Errorf("failed to change tool: %w", err)
				}
				logrus.WithField("tool", tool).Info("tool changed")
				return nil
			})
		},
	}
}

func printPosition(cmd *cobra.Command, m *machine.Machine) error {
	pos, err := m.Position(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read position: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), pos.String())
	return nil
}

func NewPositionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "position",
		Aliases: []string{"pos"},
		Short:   "Print the current axis positions",
		GroupID: gMachine,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMachine(cmd.Context(), func(m *machine.Machine) error {
				return printPosition(cmd, m)
			})
		},
	}
}

func NewGcodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "gcode <line>...",
		Short:   "Send raw G-code and print the reply",
		Example: "  parkcal gcode M114\n  parkcal gcode 'G0 X10 F6000'",
		GroupID: gMachine,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMachine(cmd.Context(), func(m *machine.Machine) error {
				reply, err := m.Gcode(cmd.Context(), strings.Join(args, "\n"))
				if err != nil {
					return fmt.Errorf("failed to send gcode: %w", err)
				}
				if reply != "" {
					fmt.Fprintln(cmd.OutOrStdout(), reply)
				}
				return nil
			})
		},
	}
}
