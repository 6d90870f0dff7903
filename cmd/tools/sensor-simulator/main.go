// cmd/tools/sensor-simulator/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ihydro/internal/models"
)

func main() {
	httpCmd := flag.NewFlagSet("http", flag.ExitOnError)
	mqttCmd := flag.NewFlagSet("mqtt", flag.ExitOnError)

	// HTTP command flags
	baseURL := httpCmd.String("url", "http://localhost:5000", "API server base URL")
	httpInterval := httpCmd.Duration("interval", 5*time.Second, "Time between readings")
	httpCount := httpCmd.Int("count", 0, "Readings to send (0 runs until interrupted)")
	httpSeed := httpCmd.Int64("seed", time.Now().UnixNano(), "Random seed")

	// MQTT command flags
	broker := mqttCmd.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	topic := mqttCmd.String("topic", "ihydro/readings", "Topic the API server subscribes to")
	clientID := mqttCmd.String("client-id", "ihydro-simulator", "MQTT client ID")
	qos := mqttCmd.Int("qos", 1, "MQTT QoS (0, 1 or 2)")
	mqttInterval := mqttCmd.Duration("interval", 5*time.Second, "Time between readings")
	mqttCount := mqttCmd.Int("count", 0, "Readings to send (0 runs until interrupted)")
	mqttSeed := mqttCmd.Int64("seed", time.Now().UnixNano(), "Random seed")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		pub      publisher
		interval time.Duration
		count    int
		seed     int64
	)

	switch os.Args[1] {
	case "http":
		httpCmd.Parse(os.Args[2:])
		pub = newHTTPPublisher(*baseURL, 10*time.Second)
		interval, count, seed = *httpInterval, *httpCount, *httpSeed

	case "mqtt":
		mqttCmd.Parse(os.Args[2:])
		if *qos < 0 || *qos > 2 {
			fmt.Println("Error: qos must be 0, 1 or 2.")
			mqttCmd.Usage()
			os.Exit(1)
		}
		p, err := newMQTTPublisher(ctx, *broker, *topic, *clientID, byte(*qos))
		if err != nil {
			fmt.Printf("Error connecting to broker: %v\n", err)
			os.Exit(1)
		}
		pub = p
		interval, count, seed = *mqttInterval, *mqttCount, *mqttSeed

	default:
		help()
		os.Exit(1)
	}
	defer pub.close()

	err := run(ctx, newGenerator(seed), pub, interval, count, func(r models.Reading, err error) {
		if err != nil {
			fmt.Printf("%s  send failed: %v\n", r.Timestamp, err)
			return
		}
		fmt.Printf("%s  temp %.1f  humidity %.1f  tds %.0f  ph %.2f\n", r.Timestamp, r.Temperature, r.Humidity, r.TDS, r.PH)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func help() {
	fmt.Println("Usage: sensor-simulator <command> [arguments]")
	fmt.Println("Commands:")
	fmt.Println("  http   Post readings to the API server upload endpoint")
	fmt.Println("  mqtt   Publish readings to the MQTT broker")
	fmt.Println("Run 'sensor-simulator <command> -h' for command flags.")
}
