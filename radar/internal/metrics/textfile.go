package metrics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Metric names written to the textfile.
const (
	nameCandidates        = "radar_candidates"
	nameQueriesTotal      = "radar_queries_total"
	nameQueriesFailed     = "radar_queries_failed"
	nameCacheHits         = "radar_cache_hits"
	nameCacheEntries      = "radar_cache_entries"
	nameRunDuration       = "radar_run_duration_seconds"
	nameLastRun           = "radar_last_run_timestamp_seconds"
	nameChannelCandidates = "radar_channel_candidates"
	nameRuns              = "radar_runs_total"
	nameCandidatesDelta   = "radar_candidates_delta"
)

// RunStats are the figures of one completed run.
type RunStats struct {
	Candidates    int
	Queries       int
	QueriesFailed int
	CacheHits     int
	CacheEntries  int
	Duration      time.Duration
	FinishedAt    time.Time

	// ChannelCandidates counts candidates per channel; a candidate in two
	// channels counts in both.
	ChannelCandidates map[string]int

	// Runs and CandidatesDelta carry over from the previous textfile and
	// are filled in by WriteTextfile.
	Runs            int
	CandidatesDelta int
}

// Families converts s into metric families, sorted by name.
func Families(s RunStats) []*dto.MetricFamily {
	fams := []*dto.MetricFamily{
		gauge(nameCandidates, "Ranked candidates in the last run.", float64(s.Candidates)),
		gauge(nameQueriesTotal, "Search queries and feeds issued in the last run.", float64(s.Queries)),
		gauge(nameQueriesFailed, "Queries, feeds or feed items skipped after an error in the last run.", float64(s.QueriesFailed)),
		gauge(nameCacheHits, "Candidates whose growth came from star history.", float64(s.CacheHits)),
		gauge(nameCacheEntries, "Entries in the star cache after the last run.", float64(s.CacheEntries)),
		gauge(nameRunDuration, "Wall time of the last run.", s.Duration.Seconds()),
		gauge(nameLastRun, "Unix time the last run finished.", float64(s.FinishedAt.UnixNano())/1e9),
		gauge(nameCandidatesDelta, "Change in ranked candidates since the previous run.", float64(s.CandidatesDelta)),
		{
			Name:   proto.String(nameRuns),
			Help:   proto.String("Runs recorded in this textfile."),
			Type:   dto.MetricType_COUNTER.Enum(),
			Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(float64(s.Runs))}}},
		},
	}

	channels := make([]string, 0, len(s.ChannelCandidates))
	for ch := range s.ChannelCandidates {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	perChannel := &dto.MetricFamily{
		Name: proto.String(nameChannelCandidates),
		Help: proto.String("Candidates found per channel in the last run."),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, ch := range channels {
		perChannel.Metric = append(perChannel.Metric, &dto.Metric{
			Label: []*dto.LabelPair{{Name: proto.String("channel"), Value: proto.String(ch)}},
			Gauge: &dto.Gauge{Value: proto.Float64(float64(s.ChannelCandidates[ch]))},
		})
	}
	if len(perChannel.Metric) > 0 {
		fams = append(fams, perChannel)
	}

	sort.Slice(fams, func(i, j int) bool { return fams[i].GetName() < fams[j].GetName() })
	return fams
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}

// Write encodes s in the Prometheus text exposition format.
func Write(w io.Writer, s RunStats) error {
	for _, mf := range Families(s) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteTextfile writes s to path for the node-exporter textfile collector.
// The run counter and the candidates delta continue from the file already at
// path; a missing or unreadable one starts them over. The file is replaced
// atomically so the collector never reads a partial exposition.
func WriteTextfile(path string, s RunStats) error {
	prev, _ := ReadTextfile(path)
	s.Runs = int(prev[nameRuns]) + 1
	if n, ok := prev[nameCandidates]; ok {
		s.CandidatesDelta = s.Candidates - int(n)
	}

	var buf bytes.Buffer
	if err := Write(&buf, s); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics: create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("metrics: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("metrics: rename %s: %w", tmp, err)
	}
	return nil
}

// ReadTextfile reads the exposition at path with Read. A missing file yields
// an empty map.
func ReadTextfile(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]float64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metrics: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a text exposition into one value per metric name, summed
// over the family's series.
func Read(r io.Reader) (map[string]float64, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("metrics: parse text: %w", err)
	}
	out := make(map[string]float64, len(mfs))
	for name, mf := range mfs {
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue() + m.GetGauge().GetValue() + m.GetUntyped().GetValue()
		}
		out[name] = total
	}
	return out, nil
}
