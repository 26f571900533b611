package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/crimson-sun/nocdash/internal/model"
)

// Measurement is the InfluxDB measurement every report is written to.
const Measurement = "noc_reports"

// pointWriter is the part of api.WriteAPIBlocking the sink needs.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Output writes one point per saved report: tags verdict and profile,
// fields are the reading plus report_id and abnormal (0/1).
type Output struct {
	client influxdb2.Client
	writer pointWriter
	bucket string
}

// New connects to InfluxDB at url and checks its health before returning.
func New(ctx context.Context, url, token, org, bucket string) (*Output, error) {
	client := influxdb2.NewClient(url, token)

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influx output: health check %s: %w", url, err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		client.Close()
		return nil, fmt.Errorf("influx output: %s unhealthy: %s %s", url, health.Status, msg)
	}

	return &Output{
		client: client,
		writer: client.WriteAPIBlocking(org, bucket),
		bucket: bucket,
	}, nil
}

// Point converts a report into its InfluxDB point.
func Point(r model.Report) *write.Point {
	tags := map[string]string{"verdict": string(r.Verdict)}
	if r.Profile != "" {
		tags["profile"] = r.Profile
	}

	fields := make(map[string]interface{}, len(r.Reading)+2)
	for name, v := range r.Reading {
		fields[name] = v
	}
	fields["report_id"] = r.ID
	abnormal := 0
	if r.Verdict == model.Abnormal {
		abnormal = 1
	}
	fields["abnormal"] = abnormal

	ts := r.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return influxdb2.NewPoint(Measurement, tags, fields, ts)
}

func (o *Output) Write(ctx context.Context, r model.Report) error {
	if err := o.writer.WritePoint(ctx, Point(r)); err != nil {
		return fmt.Errorf("influx output: write to %s: %w", o.bucket, err)
	}
	return nil
}

func (o *Output) Close() error {
	if o.client != nil {
		o.client.Close()
	}
	return nil
}
