package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mastercactapus/parkcal/calibration"
	"github.com/mastercactapus/parkcal/config"
	"github.com/mastercactapus/parkcal/macro"
)

func renderMacros(c *config.Config, s *calibration.Session, kind string) ([]macro.GeneratedMacro, error) {
	gen, err := macro.NewGenerator(c.MacroOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	if kind == "" {
		return gen.RenderAll(s.Tool)
	}

	k, err := macro.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	text, err := gen.Render(k, s.Tool)
	if err != nil {
		return nil, err
	}
	return []macro.GeneratedMacro{{Kind: k, ToolNumber: s.Tool.ToolNumber, Text: text}}, nil
}

func NewRenderCommand() *cobra.Command {
	var (
		outDir string
		stdout bool
		force  bool
		kind   string
	)
	cmd := &cobra.Command{
		Use:     "render",
		Short:   "Write the tpre, tpost and tfree macros of the calibrated tool",
		GroupID: gCalibration,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cfg, -1)
			if err != nil {
				return err
			}
			if err = s.Validate(); err != nil {
				if !force {
					return err
				}
				logrus.WithError(err).Warn("rendering incomplete calibration")
			}

			macros, err := renderMacros(cfg, s, kind)
			if err != nil {
				return fmt.Errorf("failed to render macros: %w", err)
			}

			if stdout {
				for _, m := range macros {
					if err := macro.Lint(m); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "; ---- %s ----\n%s\n", m.FileName(), m.Text)
				}
				return nil
			}

			if outDir == "" {
				outDir = cfg.Macros.OutputDir
			}
			paths, err := macro.WriteAll(outDir, macros)
			if err != nil {
				return fmt.Errorf("failed to write macros: %w", err)
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Upload the files to /sys on the controller.")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&outDir, "out", "o", "", "output directory (default macros.output_dir)")
	flags.BoolVar(&stdout, "stdout", false, "print the macros instead of writing files")
	flags.BoolVarP(&force, "force", "f", false, "render even if a position was not captured")
	flags.StringVarP(&kind, "kind", "k", "", "render only one macro (pre, post or free)")
	return cmd
}
