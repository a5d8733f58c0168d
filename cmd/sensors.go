// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"maps"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gait/internal/config"
	"github.com/Thermoquad/gait/pkg/mission"
)

var (
	motionDelays   map[string]int
	pressureDelays map[string]int
	weightDelay    int
)

var sensorsCmd = &cobra.Command{
	Use:   "config",
	Short: "Read or change which sensor data the device streams",
	Long: `Each motion and pressure sub-type streams at its own delay in
milliseconds. A delay of 0 disables the sub-type. Delays are rounded to the
device's 20ms step.`,
}

var sensorsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the sensor data configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			c, err := s.Device.GetSensorDataConfigurations(ctx)
			if err != nil {
				return err
			}
			printConfigurations(c)
			return nil
		})
	},
}

var sensorsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change sub-type delays, keeping the rest",
	Example: `  gait config set --url 192.168.4.1 --motion quaternion=20,acceleration=0
  gait config set --url 192.168.4.1 --pressure pressureDoubleByte=40 --weight-delay 100`,
	Args: cobra.NoArgs,
	RunE: runSensorsSet,
}

var sensorsDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Switch every sensor off",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			c, err := s.Device.SetSensorDataConfigurations(ctx, mission.DisabledSensorDataConfigurations())
			if err != nil {
				return err
			}
			printConfigurations(c)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(sensorsCmd)
	sensorsCmd.AddCommand(sensorsGetCmd, sensorsSetCmd, sensorsDisableCmd)

	sensorsSetCmd.Flags().StringToIntVar(&motionDelays, "motion", nil, "Motion sub-type delays (name=ms,...)")
	sensorsSetCmd.Flags().StringToIntVar(&pressureDelays, "pressure", nil, "Pressure sub-type delays (name=ms,...)")
	sensorsSetCmd.Flags().IntVar(&weightDelay, "weight-delay", -1, "Weight data delay in ms")
}

func printConfigurations(c mission.SensorDataConfigurations) {
	fmt.Println(mission.FormatSensorDataConfigurations(c))
}

func runSensorsSet(cmd *cobra.Command, args []string) error {
	changes, err := config.SensorsConfig{Motion: motionDelays, Pressure: pressureDelays}.SensorDataConfigurations()
	if err != nil {
		return err
	}
	if len(changes.Motion) == 0 && len(changes.Pressure) == 0 && weightDelay < 0 {
		return fmt.Errorf("nothing to change: pass --motion, --pressure or --weight-delay")
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		d := s.Device

		if len(changes.Motion) > 0 || len(changes.Pressure) > 0 {
			current, err := d.GetSensorDataConfigurations(ctx)
			if err != nil {
				return err
			}
			next := mission.SensorDataConfigurations{
				Motion:   maps.Clone(current.Motion),
				Pressure: maps.Clone(current.Pressure),
			}
			if next.Motion == nil {
				next.Motion = make(map[mission.MotionDataType]int)
			}
			if next.Pressure == nil {
				next.Pressure = make(map[mission.PressureDataType]int)
			}
			maps.Copy(next.Motion, changes.Motion)
			maps.Copy(next.Pressure, changes.Pressure)

			got, err := d.SetSensorDataConfigurations(ctx, next)
			if err != nil {
				return err
			}
			printConfigurations(got)
		}

		if weightDelay >= 0 {
			got, err := d.SetWeightDataDelay(ctx, weightDelay)
			if err != nil {
				return err
			}
			fmt.Printf("Weight delay: %d ms\n", got)
		}
		return nil
	})
}
