package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"earthprint/analysis"
	"earthprint/audio"
	"earthprint/clipboard"
	"earthprint/log"
	"earthprint/pipeline"
)

func newTestCmd() *cobra.Command {
	var realtime bool
	cmd := &cobra.Command{
		Use:    "test <wav>",
		Short:  "Drive the pipeline from stdin over a WAV-backed fake microphone",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			initLogging(cfg)

			fakeCtx, err := audio.NewFakeContextFromWAV(args[0], realtime)
			if err != nil {
				return fmt.Errorf("loading WAV: %w", err)
			}
			a := newApp(cfg, fakeCtx, nil, nil)
			defer gracefulShutdown(a)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			a.serveMetrics(ctx)

			return runTestMode(a, fakeCtx, os.Stdin, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&realtime, "realtime", true, "play the WAV at its sample rate instead of on demand")
	return cmd
}

// runTestMode executes one command per input line until QUIT or EOF.
func runTestMode(a *app, fakeCtx *audio.FakeContext, in io.Reader, out io.Writer) error {
	var last *analysis.Result
	report := func(res *analysis.Result, err error) {
		switch {
		case errors.Is(err, pipeline.ErrBusy):
			fmt.Fprintln(out, "BUSY")
		case err != nil:
			fmt.Fprintf(out, "ERROR %s\n", pipeline.Message(err))
		default:
			last = res
			fmt.Fprintf(out, "RESULT total=%s activities=%d transcription=%q\n",
				analysis.FormatKg(res.Total()), len(res.Emissions), res.Transcription)
		}
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		name, arg, _ := strings.Cut(line, " ")
		switch name {
		case "":
		case "START":
			if err := a.ctrl.StartRecording(); err != nil {
				fmt.Fprintf(out, "ERROR %s\n", pipeline.Message(err))
			}
		case "STOP":
			report(a.ctrl.StopRecording(context.Background()))
		case "UPLOAD":
			report(a.ctrl.SubmitFile(context.Background(), arg))
		case "WAIT_AUDIO_DONE":
			if c := fakeCtx.Last(); c != nil {
				<-c.AudioDone()
			}
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "COPY":
			if last == nil {
				fmt.Fprintln(out, "ERROR nothing to copy")
				continue
			}
			if err := clipboard.CopyResult(last); err != nil {
				fmt.Fprintf(out, "ERROR clipboard: %v\n", err)
				continue
			}
			fmt.Fprintln(out, "COPIED")
		case "STATE":
			fmt.Fprintf(out, "STATE %s\n", a.store.Current().Kind)
		case "QUIT":
			return nil
		default:
			log.Warnf("test mode: unknown command %q", line)
			fmt.Fprintf(out, "ERROR unknown command %q\n", name)
		}
	}
	return scanner.Err()
}
