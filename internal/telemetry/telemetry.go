package telemetry

import (
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/rs/zerolog/log"
)

// Influx exports valve state changes as InfluxDB points: one measurement
// per valve (valveNN value=0|1) plus an aggregate valves measurement
// carrying the highest active 1-based station. Writes are batched and
// asynchronous; errors are warned and swallowed so telemetry can never
// stop watering.
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// NewInflux connects the exporter. An empty URL returns nil, which callers
// treat as telemetry disabled.
func NewInflux(url, token, org, bucket string) *Influx {
	if url == "" {
		return nil
	}

	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetBatchSize(20).SetFlushInterval(5000))
	writeAPI := client.WriteAPI(org, bucket)

	go func() {
		for err := range writeAPI.Errors() {
			log.Warn().Err(err).Msg("Telemetry write failed")
		}
	}()

	log.Info().Str("url", url).Str("bucket", bucket).Msg("Telemetry exporter enabled")
	return &Influx{client: client, writeAPI: writeAPI}
}

func (i *Influx) ValveChanged(station int, on bool, ts time.Time) {
	value := 0
	if on {
		value = 1
	}
	point := influxdb2.NewPoint(
		fmt.Sprintf("valve%02d", station+1),
		nil,
		map[string]interface{}{"value": value},
		ts,
	)
	i.writeAPI.WritePoint(point)
}

func (i *Influx) ActiveHighest(highest int, ts time.Time) {
	point := influxdb2.NewPoint(
		"valves",
		nil,
		map[string]interface{}{"value": highest},
		ts,
	)
	i.writeAPI.WritePoint(point)
}

// Close flushes pending points and shuts the client down.
func (i *Influx) Close() {
	i.writeAPI.Flush()
	i.client.Close()
}
