// cmd/monitor/stream.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"ihydro/internal/alerts"
	"ihydro/internal/models"
	"ihydro/internal/stream"
	"ihydro/pkg/thresholds"
)

func newStreamCmd(a *app) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Print readings as they are pushed by the server",
		Long: `stream follows live readings instead of polling. The sse source reads
<api base>/api/stream; the kafka source consumes the topic the API server
publishes accepted readings to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := a.source(source)
			if err != nil {
				return err
			}
			reg, err := a.thresholds()
			if err != nil {
				return err
			}

			a.log.Info("following readings", map[string]interface{}{"source": src.Name()})
			err = src.Run(cmd.Context(), printReading(cmd.OutOrStdout(), reg, a.jsonOutput))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", stream.SourceSSE, "stream source: sse or kafka")
	return cmd
}

func (a *app) source(name string) (stream.Source, error) {
	switch name {
	case stream.SourceSSE:
		return stream.NewSSESource(&stream.SSEConfig{URL: a.cfg.API.BaseURL + "/api/stream"}, a.log, nil), nil
	case stream.SourceKafka:
		if !a.cfg.Kafka.Enabled {
			return nil, fmt.Errorf("kafka source requires kafka.enabled")
		}
		return stream.NewKafkaSource(&stream.KafkaConfig{
			Brokers: a.cfg.Kafka.Brokers,
			Topic:   a.cfg.Kafka.Topic,
			GroupID: a.cfg.Kafka.GroupID,
		}, a.log, nil)
	}
	return nil, fmt.Errorf("unknown source %q (want sse or kafka)", name)
}

func printReading(w io.Writer, reg *thresholds.Registry, asJSON bool) stream.Handler {
	return func(_ context.Context, r models.Reading) error {
		if asJSON {
			return writeJSON(w, r)
		}
		fmt.Fprintf(w, "%s  temp %.2f  humidity %.2f  tds %.2f  ph %.2f\n",
			r.Timestamp, r.Temperature, r.Humidity, r.TDS, r.PH)
		for _, alert := range alerts.Evaluate(r, reg) {
			fmt.Fprintln(w, alertStyle.Render("  ! "+alert.Message))
		}
		return nil
	}
}
