package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-tempsim/checksum"
	"github.com/arloliu/go-tempsim/device"
	"github.com/arloliu/go-tempsim/discovery"
	"github.com/arloliu/go-tempsim/frame"
	"github.com/arloliu/go-tempsim/internal/pool"
)

func newPortsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer e.close()

			ports, err := e.tr.Ports()
			if err != nil {
				return fmt.Errorf("list ports: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(out, "No serial ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Fprintln(out, p)
			}

			return nil
		},
	}
}

func newDiscoverCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "discover [port...]",
		Short: "Find the port the instrument is attached to",
		Long: `Probe each candidate port with the identification request and report
the first one that answers. Candidates come from the arguments, then the
config file, then the list of all serial ports.`,
		Example: `  # Probe every serial port
  tempsim discover

  # Probe two ports only
  tempsim discover /dev/ttyUSB0 /dev/ttyUSB1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEnv(ctx, flags)
			if err != nil {
				return err
			}
			defer e.close()

			candidates := args
			if len(candidates) == 0 {
				candidates = e.cfg.Ports
			}

			p := e.cfg.Profile()
			probe := discovery.Probe{Request: p.Probe(), Response: p.ProbeResponse()}
			opts := append(e.cfg.DiscoveryOptions(), discovery.WithMode(p.Mode), discovery.WithLogger(e.logger))

			res, err := discovery.Discover(ctx, e.tr, candidates, probe, opts...)

			out := cmd.OutOrStdout()
			for _, r := range res.Reports {
				fmt.Fprintf(out, "%-20s %-12s %8s", r.Port, r.Status, r.Elapsed.Round(time.Millisecond))
				if len(r.Received) > 0 {
					fmt.Fprintf(out, "  rx: %s", checksum.FormatHex(r.Received))
				}
				if r.Err != nil {
					fmt.Fprintf(out, "  (%v)", r.Err)
				}
				fmt.Fprintln(out)
			}
			if err != nil {
				return err
			}

			vendor, _ := res.Match.Named(device.VendorGroup)
			fmt.Fprintf(out, "\nFound instrument on %s (firmware %q)\n", res.Port, frame.Text(vendor))

			return discovery.CloseAll(e.tr, res.Port)
		},
	}
}

func newFirmwareCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "firmware",
		Short: "Read the firmware version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd.Context(), flags, func(ctx context.Context, sess *device.Session) error {
				v, err := sess.ReqFirmwareVersion(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", sess.Port(), v)

				return nil
			})
		},
	}
}

type configureFlags struct {
	sensor       string
	value        int
	group        string
	compensation bool
}

func newConfigureCmd(root *rootFlags) *cobra.Command {
	flags := &configureFlags{}

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Write the output configuration",
		Long: `Set the simulated thermocouple type, the output temperature and the
cold junction compensation. Values are validated before anything is sent:
J accepts -10..760 and K accepts 10..1150 degrees.`,
		Example: `  tempsim configure --sensor J --value 300 --group A
  tempsim configure --sensor K --value 1000 --group B --compensation`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd.Context(), root, func(ctx context.Context, sess *device.Session) error {
				err := sess.SetOutputConfig(device.Sensor(flags.sensor), flags.value, flags.group, flags.compensation)
				if err != nil {
					return err
				}
				if err := sess.SendOutputConfig(ctx); err != nil {
					return err
				}

				c := sess.OutputConfig()
				fmt.Fprintf(cmd.OutOrStdout(), "Output set: sensor %s, value %d, group %s, compensation %t\n",
					c.Sensor, c.Value, c.Group, c.Compensation)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&flags.sensor, "sensor", string(device.SensorJ), "Thermocouple type: J|K")
	cmd.Flags().IntVar(&flags.value, "value", 0, "Output temperature in degrees")
	cmd.Flags().StringVar(&flags.group, "group", "A", "Output group: A..H")
	cmd.Flags().BoolVar(&flags.compensation, "compensation", false, "Enable cold junction compensation")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}

type readFlags struct {
	compensation bool
	count        int
	interval     time.Duration
}

func newReadCmd(root *rootFlags) *cobra.Command {
	flags := &readFlags{}

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read the input and ambient temperatures",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.count < 1 {
				return fmt.Errorf("invalid --count %d", flags.count)
			}

			return runSession(cmd.Context(), root, func(ctx context.Context, sess *device.Session) error {
				out := cmd.OutOrStdout()
				for i := range flags.count {
					if i > 0 {
						if err := pool.Sleep(ctx, flags.interval); err != nil {
							return err
						}
					}

					r, err := sess.ReqInputValue(ctx, flags.compensation)
					if err != nil {
						return err
					}

					sensor := string(r.Sensor)
					if sensor == "" {
						sensor = fmt.Sprintf("unknown(%d)", r.SensorCode)
					}
					fmt.Fprintf(out, "sensor=%s input=%.1f ambient=%.1f uncompensated=%.1f\n",
						sensor, r.Input, r.Ambient, r.Uncompensated)
				}

				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&flags.compensation, "compensation", false, "Expected compensation state")
	cmd.Flags().IntVar(&flags.count, "count", 1, "Number of readings")
	cmd.Flags().DurationVar(&flags.interval, "interval", time.Second, "Time between readings")

	return cmd
}
