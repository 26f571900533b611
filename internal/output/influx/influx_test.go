package influx

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/crimson-sun/nocdash/internal/model"
)

type fakeWriter struct {
	points []*write.Point
	err    error
}

func (f *fakeWriter) WritePoint(_ context.Context, p ...*write.Point) error {
	f.points = append(f.points, p...)
	return f.err
}

func testReport() model.Report {
	return model.Report{
		ID:        7,
		CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		Profile:   "noc",
		Reading:   model.Reading{model.CPUUsage: 90, model.NetworkTraffic: 120.5},
		Verdict:   model.Abnormal,
		Body:      "text is not written",
	}
}

func TestPointLineProtocol(t *testing.T) {
	line := write.PointToLineProtocol(Point(testReport()), time.Second)

	if !strings.HasPrefix(line, Measurement+",") {
		t.Fatalf("unexpected measurement: %q", line)
	}
	for _, want := range []string{
		"profile=noc",
		"verdict=Abnormal",
		"cpu_usage=90",
		"network_traffic=120.5",
		"report_id=7i",
		"abnormal=1i",
		" 1772352000",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line protocol missing %q: %s", want, line)
		}
	}
	if strings.Contains(line, "text is not written") {
		t.Error("report body should not be written")
	}
}

func TestPointOmitsEmptyProfile(t *testing.T) {
	r := testReport()
	r.Profile = ""
	r.Verdict = model.Normal
	line := write.PointToLineProtocol(Point(r), time.Second)
	if strings.Contains(line, "profile=") {
		t.Errorf("empty profile should not be tagged: %s", line)
	}
	if !strings.Contains(line, "abnormal=0i") {
		t.Errorf("expected abnormal=0i: %s", line)
	}
}

func TestWriteUsesWriter(t *testing.T) {
	fw := &fakeWriter{}
	o := &Output{writer: fw, bucket: "noc"}

	if err := o.Write(context.Background(), testReport()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(fw.points) != 1 {
		t.Fatalf("got %d points, want 1", len(fw.points))
	}
	if fw.points[0].Name() != Measurement {
		t.Fatalf("measurement = %q", fw.points[0].Name())
	}
	if err := o.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestWriteWrapsError(t *testing.T) {
	cause := errors.New("unauthorized")
	o := &Output{writer: &fakeWriter{err: cause}, bucket: "noc"}
	err := o.Write(context.Background(), testReport())
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "noc") {
		t.Fatalf("error should name the bucket: %v", err)
	}
}
