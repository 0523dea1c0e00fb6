package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/mastercactapus/parkcal/calibration"
	"github.com/mastercactapus/parkcal/config"
	"github.com/mastercactapus/parkcal/macro"
	"github.com/mastercactapus/parkcal/machine"
)

var (
	logLevel   = "info"
	configPath = ""

	v   *viper.Viper
	cfg *config.Config
)

var (
	gMachine     = "Machine:"
	gCalibration = "Calibration:"
	commandGroups = []string{
		gMachine,
		gCalibration,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, machine.ErrNotConnected):
		fmt.Fprintln(os.Stderr, "\nError: lost connection to the machine")
		fmt.Fprintln(os.Stderr, "  - Check that the controller is powered and reachable")
		if cfg != nil {
			fmt.Fprintf(os.Stderr, "  - Configured transport %s, address %s\n", cfg.Machine.Transport, cfg.Machine.Address)
		}
	case errors.Is(err, machine.ErrMalformedPosition):
		fmt.Fprintln(os.Stderr, "\nError: the controller sent an unexpected position report")
		fmt.Fprintln(os.Stderr, "  - Try 'parkcal gcode M114' to see the raw reply")
	case errors.Is(err, calibration.ErrNotCaptured):
		fmt.Fprintln(os.Stderr, "\nError: the calibration is incomplete")
		fmt.Fprintln(os.Stderr, "  - Run 'parkcal capture park' and 'parkcal capture clear', or 'parkcal wizard'")
	case errors.Is(err, macro.ErrUnknownKind):
		fmt.Fprintln(os.Stderr, "\nError: macro kind must be one of pre, post or free")
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := NewCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		handleCmdError(err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	var err error
	v, err = config.New(configPath)
	if err != nil {
		return err
	}
	err = v.BindPFlag("session", cmd.Root().PersistentFlags().Lookup("session"))
	if err != nil {
		return err
	}
	cfg, err = config.Decode(v)
	return err
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parkcal",
		Short: "parkcal calibrates tool parking positions on a Jubilee",
		Long: `parkcal walks through calibrating the parking post of a Jubilee tool,
captures the measured positions from the Duet controller and writes the
tpre, tpost and tfree macros for the tool.

Run 'parkcal wizard --tool N' for a guided calibration, or the individual
steps (home, unlock, move, capture park, capture clear, render) in order.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}
			if cmd.Name() == "init" {
				return nil
			}
			return loadConfig(cmd)
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVarP(&configPath, "config", "c", "", "config file path (default ./"+config.DefaultFile+")")
	globalFlags.String("session", ".parkcal/session.yaml", "calibration session file")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewInitCommand(),
		NewHomeCommand(),
		NewMoveCommand(),
		NewLockCommand(),
		NewUnlockCommand(),
		NewToolCommand(),
		NewPositionCommand(),
		NewGcodeCommand(),
		NewCaptureCommand(),
		NewShowCommand(),
		NewRenderCommand(),
		NewWizardCommand(),
		NewServeCommand(),
	)

	return cmd
}
