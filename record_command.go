package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/bosley/relayscribe/audio"
	"github.com/bosley/relayscribe/capture"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var (
		submit      submitOptions
		maxSeconds  int
		deviceID    int
		output      string
		playback    bool
		listDevices bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone until you stop talking, then transcribe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listDevices {
				return printInputDevices(cmd)
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			errOut := cmd.ErrOrStderr()
			fmt.Fprintln(errOut, "Calibrating background noise, stay quiet...")
			rec, err := capture.Record(cmd.Context(), capture.Options{
				DeviceID:    deviceID,
				MaxDuration: time.Duration(maxSeconds) * time.Second,
			})
			if errors.Is(err, capture.ErrNoSpeech) {
				return fmt.Errorf("nothing to transcribe: %w", err)
			}
			if err != nil {
				return err
			}
			logger.Debug("recording finished",
				"duration", rec.Duration().String(),
				"samples", len(rec.Samples),
				"background", rec.Background)

			path := output
			if path == "" {
				f, err := os.CreateTemp("", "relayscribe-*.wav")
				if err != nil {
					return fmt.Errorf("create recording file: %w", err)
				}
				path = f.Name()
				f.Close()
				defer os.Remove(path)
			}
			if err := audio.WriteWAV(path, rec.Samples, rec.SampleRate); err != nil {
				return err
			}
			fmt.Fprintf(errOut, "Recorded %s\n", rec.Duration().Round(100*time.Millisecond))

			if playback {
				if err := capture.Play(cmd.Context(), path); err != nil {
					return err
				}
			}

			res, err := transcribe(cmd, ctx, submit, path)
			if err != nil {
				return err
			}
			return printResult(cmd, res, submit.jsonOut)
		},
	}

	submit.register(cmd)
	cmd.Flags().IntVar(&maxSeconds, "max-seconds", 30, "Stop recording after this many seconds")
	cmd.Flags().IntVar(&deviceID, "device", 0, "Input device index (see --list-devices)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Keep the recording at this path")
	cmd.Flags().BoolVar(&playback, "playback", false, "Play the recording back before submitting it")
	cmd.Flags().BoolVar(&listDevices, "list-devices", false, "List audio input devices and exit")
	return cmd
}

func printInputDevices(cmd *cobra.Command) error {
	devices, err := capture.ListInputDevices()
	if err != nil {
		return err
	}
	ids := make([]int, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		d := devices[id]
		rows = append(rows, []string{
			strconv.Itoa(id),
			d.Name,
			strconv.Itoa(d.MaxInputChannels),
			strconv.FormatFloat(d.DefaultSampleRate, 'f', 0, 64),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "Name", "Channels", "Sample Rate"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight},
	))
	return nil
}
