// cmd/tools/sensor-simulator/generator.go
package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"

	commonhttp "ihydro/internal/common/http"
	"ihydro/internal/models"
)

type bounds struct{ min, max float64 }

// Ranges the simulated bed drifts within. They straddle the recommended
// ranges so alerts fire now and then.
var (
	temperatureBounds = bounds{25, 35}
	humidityBounds    = bounds{50, 90}
	tdsBounds         = bounds{700, 1300}
	phBounds          = bounds{5.5, 7.5}
)

// generator produces readings that wander around the previous value instead
// of jumping across the whole range.
type generator struct {
	rng  *rand.Rand
	last *models.Reading
	now  func() time.Time
}

func newGenerator(seed int64) *generator {
	return &generator{rng: rand.New(rand.NewSource(seed)), now: time.Now}
}

func (g *generator) next() models.Reading {
	r := models.Reading{Timestamp: models.FormatTimestamp(g.now())}
	if g.last == nil {
		r.Temperature = g.uniform(temperatureBounds, 1)
		r.Humidity = g.uniform(humidityBounds, 1)
		r.TDS = g.uniform(tdsBounds, 0)
		r.PH = g.uniform(phBounds, 2)
	} else {
		r.Temperature = g.drift(g.last.Temperature, temperatureBounds, 0.5, 1)
		r.Humidity = g.drift(g.last.Humidity, humidityBounds, 2, 1)
		r.TDS = g.drift(g.last.TDS, tdsBounds, 25, 0)
		r.PH = g.drift(g.last.PH, phBounds, 0.08, 2)
	}
	g.last = &r
	return r
}

func (g *generator) uniform(b bounds, places int) float64 {
	return round(b.min+g.rng.Float64()*(b.max-b.min), places)
}

func (g *generator) drift(v float64, b bounds, step float64, places int) float64 {
	v += (g.rng.Float64()*2 - 1) * step
	return round(math.Min(b.max, math.Max(b.min, v)), places)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

type publisher interface {
	publish(ctx context.Context, r models.Reading) error
	close()
}

// httpPublisher posts readings to the API server's upload endpoint.
type httpPublisher struct {
	url    string
	client *commonhttp.Client
}

func newHTTPPublisher(baseURL string, timeout time.Duration) *httpPublisher {
	return &httpPublisher{
		url:    baseURL + "/api/upload",
		client: commonhttp.NewClient(timeout, commonhttp.WithRetries(2, 200*time.Millisecond)),
	}
}

func (p *httpPublisher) publish(ctx context.Context, r models.Reading) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	resp, err := p.client.DoWithRetry(ctx, func(ctx context.Context) (*http.Request, error) {
		return commonhttp.NewJSONRequest(ctx, http.MethodPost, p.url, body)
	}, commonhttp.RetryServerErrors)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("upload rejected: %d %s", resp.StatusCode, msg)
	}
	return nil
}

func (p *httpPublisher) close() {}

// mqttPublisher publishes readings the way a device on the bed would.
type mqttPublisher struct {
	client mqtt.Client
	topic  string
	qos    byte
}

func newMQTTPublisher(ctx context.Context, broker, topic, clientID string, qos byte) (*mqttPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	client := mqtt.NewClient(opts)

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return &mqttPublisher{client: client, topic: topic, qos: qos}, nil
}

func (p *mqttPublisher) publish(ctx context.Context, r models.Reading) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, p.qos, false, body)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *mqttPublisher) close() { p.client.Disconnect(250) }

// run publishes count readings (forever when count is 0) every interval.
func run(ctx context.Context, g *generator, pub publisher, interval time.Duration, count int, report func(models.Reading, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for sent := 0; count == 0 || sent < count; sent++ {
		r := g.next()
		report(r, pub.publish(ctx, r))

		if count != 0 && sent+1 == count {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
