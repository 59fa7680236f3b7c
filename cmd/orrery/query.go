package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/engine"
	"github.com/star/orrery/internal/transform"
	"github.com/star/orrery/internal/visibility"
)

// addTimeFlags registers --t, --lat and --lon.
func addTimeFlags(cmd *cobra.Command) {
	cmd.Flags().String("t", "", "instant as RFC3339 (default now)")
	cmd.Flags().Float64("lat", 0, "observer latitude, degrees")
	cmd.Flags().Float64("lon", 0, "observer longitude, degrees")
	cmd.Flags().Float64("elev", 0, "observer elevation, metres")
}

func timeFlag(cmd *cobra.Command) (time.Time, error) {
	v, _ := cmd.Flags().GetString("t")
	if v == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --t: %w", err)
	}
	return t.UTC(), nil
}

// observerFlag returns the observer given by --lat/--lon, or nil when
// neither flag was set.
func observerFlag(cmd *cobra.Command) (*transform.Observer, error) {
	latSet, lonSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lon")
	if !latSet && !lonSet {
		return nil, nil
	}
	if latSet != lonSet {
		return nil, errors.New("--lat and --lon must be given together")
	}
	lat, _ := cmd.Flags().GetFloat64("lat")
	lon, _ := cmd.Flags().GetFloat64("lon")
	elev, _ := cmd.Flags().GetFloat64("elev")
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, errors.New("--lat must be within [-90, 90] and --lon within [-180, 180]")
	}
	return &transform.Observer{Latitude: lat, Longitude: lon, Elevation: elev}, nil
}

// queryEngine builds an engine for a one-shot command, logging to stderr.
func queryEngine() (*engine.Engine, error) {
	logger := stderrLogger(slog.LevelWarn)
	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, err
	}
	return buildEngine(cfg, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func positionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "position <body>",
		Short: "Print the position of the Sun, the Moon or a planet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := catalog.ParseBody(args[0])
			if err != nil {
				return err
			}
			t, err := timeFlag(cmd)
			if err != nil {
				return err
			}
			obs, err := observerFlag(cmd)
			if err != nil {
				return err
			}
			eng, err := queryEngine()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var rec any
			switch body {
			case catalog.Sun:
				rec, err = eng.SunPosition(ctx, t, obs)
			case catalog.Moon:
				rec, err = eng.MoonPosition(ctx, t, obs)
			default:
				rec, err = eng.PlanetPosition(ctx, body, t, obs)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	addTimeFlags(cmd)
	return cmd
}

func stateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the state of the whole solar system",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := timeFlag(cmd)
			if err != nil {
				return err
			}
			obs, err := observerFlag(cmd)
			if err != nil {
				return err
			}
			eng, err := queryEngine()
			if err != nil {
				return err
			}
			st, err := eng.SolarSystemState(cmd.Context(), t, obs)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
	addTimeFlags(cmd)
	return cmd
}

func jdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jd",
		Short: "Convert between UTC and Julian Date",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := queryEngine()
			if err != nil {
				return err
			}
			t, err := timeFlag(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("jd") {
				jd, _ := cmd.Flags().GetFloat64("jd")
				t = eng.JDToDate(jd)
			}
			return printJSON(cmd.OutOrStdout(), eng.Times(t))
		},
	}
	cmd.Flags().String("t", "", "instant as RFC3339 (default now)")
	cmd.Flags().Float64("jd", 0, "Julian Date to convert back to UTC")
	return cmd
}

func visibilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visibility",
		Short: "Predict rise, culmination and set times for an observer",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := timeFlag(cmd)
			if err != nil {
				return err
			}
			obs, err := observerFlag(cmd)
			if err != nil {
				return err
			}
			eng, err := queryEngine()
			if err != nil {
				return err
			}
			if obs == nil {
				obs = eng.DefaultObserver()
			}
			if obs == nil {
				return errors.New("--lat and --lon are required when no default observer is configured")
			}

			hours, _ := cmd.Flags().GetFloat64("hours")
			minAlt, _ := cmd.Flags().GetFloat64("min-alt")
			names, _ := cmd.Flags().GetString("bodies")

			var bodies []catalog.Body
			if names != "" {
				for _, name := range strings.Split(names, ",") {
					b, err := catalog.ParseBody(name)
					if err != nil {
						return err
					}
					bodies = append(bodies, b)
				}
			}

			if err := eng.Initialize(cmd.Context()); err != nil {
				return err
			}
			results := visibility.Predict(cmd.Context(), eng, visibility.Request{
				Observer:     *obs,
				Bodies:       bodies,
				Start:        t,
				HorizonHours: hours,
				MinAltitude:  minAlt,
			})
			return printJSON(cmd.OutOrStdout(), results)
		},
	}
	addTimeFlags(cmd)
	cmd.Flags().Float64("hours", 24, "scan horizon in hours")
	cmd.Flags().Float64("min-alt", 0, "minimum altitude in degrees")
	cmd.Flags().String("bodies", "", "comma-separated bodies (default sun, moon and planets)")
	return cmd
}
