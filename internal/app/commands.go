package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrcode/loop-engine/internal/models"
)

// ioOptions select where a command reads its request and how it writes
type ioOptions struct {
	inputFormat  string
	outputFormat string
}

func (o *ioOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.inputFormat, "input-format", "", "request format (json or yaml), default from file extension")
	cmd.Flags().StringVarP(&o.outputFormat, "output", "o", formatJSON, "output format (json or yaml)")
}

// runWithRequest wires the app, decodes the request named by args and
// writes what fn returns
func runWithRequest[T any](cmd *cobra.Command, opts *rootOptions, ioOpts *ioOptions, args []string, fn func(*Service, context.Context, *models.Request) (T, error)) (err error) {
	var path string
	if len(args) > 0 {
		path = args[0]
	}
	req, err := readRequest(cmd.InOrStdin(), path, ioOpts.inputFormat)
	if err != nil {
		return err
	}

	a, err := opts.wire()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	out, err := fn(a.service, cmd.Context(), req)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), out, ioOpts.outputFormat)
}

func newRecommendCmd(opts *rootOptions) *cobra.Command {
	ioOpts := &ioOptions{}
	scenario := Scenario{}

	cmd := &cobra.Command{
		Use:   "recommend [request-file]",
		Short: "Predict glucose and recommend a temp basal and bolus",
		Long:  "Reads a request document (JSON or YAML, stdin when no file is given) and prints the prediction, effects and recommendations.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if scenario.Insulin < 0 || scenario.Carbs < 0 {
				return errors.New("scenario amounts must not be negative")
			}
			return runWithRequest(cmd, opts, ioOpts, args, func(s *Service, ctx context.Context, req *models.Request) (*models.Result, error) {
				return s.Recommend(ctx, req, scenario)
			})
		},
	}
	ioOpts.register(cmd)
	cmd.Flags().Float64Var(&scenario.Insulin, "add-insulin", 0, "hypothetical bolus at now (U)")
	cmd.Flags().Float64Var(&scenario.Carbs, "add-carbs", 0, "hypothetical carb entry at now (g)")
	cmd.Flags().Float64Var(&scenario.AbsorptionTime, "absorption-time", 0, "absorption time of the hypothetical carbs (minutes)")
	return cmd
}

func newEffectsCmd(opts *rootOptions) *cobra.Command {
	ioOpts := &ioOptions{}
	cmd := &cobra.Command{
		Use:   "effects [request-file]",
		Short: "Print the glucose effect series of a request",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRequest(cmd, opts, ioOpts, args, (*Service).Effects)
		},
	}
	ioOpts.register(cmd)
	return cmd
}

func newIOBCmd(opts *rootOptions) *cobra.Command {
	ioOpts := &ioOptions{}
	cmd := &cobra.Command{
		Use:   "iob [request-file]",
		Short: "Print insulin on board",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRequest(cmd, opts, ioOpts, args, (*Service).InsulinOnBoard)
		},
	}
	ioOpts.register(cmd)
	return cmd
}

func newCOBCmd(opts *rootOptions) *cobra.Command {
	ioOpts := &ioOptions{}
	cmd := &cobra.Command{
		Use:   "cob [request-file]",
		Short: "Print carbs on board",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRequest(cmd, opts, ioOpts, args, (*Service).CarbsOnBoard)
		},
	}
	ioOpts.register(cmd)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), Version)
			return err
		},
	}
}
