package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProfileRecord is one JSON Lines profiling sample.
type ProfileRecord struct {
	TSMillis int64             `json:"ts_ms"`
	Metric   string            `json:"metric"`
	Value    float64           `json:"value"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// EmitJSONL writes records to path, one JSON object per line, replacing any
// existing file.
func EmitJSONL(path string, records []ProfileRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Appender writes profile records to a JSONL file as they happen. It is safe
// for concurrent use and also serves as an Observer that records one
// pass_duration_ms sample per pass.
type Appender struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

func OpenAppender(path string) (*Appender, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Appender{file: f, now: time.Now}, nil
}

func (a *Appender) Log(rec ProfileRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return errors.New("appender is closed")
	}
	_, err = a.file.Write(append(line, '\n'))
	return err
}

// Counter logs value for metric with the current timestamp.
func (a *Appender) Counter(metric string, value float64, labels map[string]string) error {
	return a.Log(ProfileRecord{TSMillis: a.now().UnixMilli(), Metric: metric, Value: value, Labels: labels})
}

// StartTimer returns a function that logs the elapsed milliseconds when called.
func (a *Appender) StartTimer(metric string, labels map[string]string) func() error {
	start := a.now()
	return func() error {
		elapsed := a.now().Sub(start)
		return a.Counter(metric, float64(elapsed.Microseconds())/1000, labels)
	}
}

func (a *Appender) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

func (a *Appender) PassStarted(ctx context.Context, _ int, _ string) context.Context { return ctx }

// PassFinished logs pass_duration_ms. Write errors are dropped so profiling
// never fails a compilation.
func (a *Appender) PassFinished(_ context.Context, s PassSample) {
	_ = a.Counter("pass_duration_ms", float64(s.Duration.Microseconds())/1000, map[string]string{
		"graph": s.Graph,
		"pass":  s.Pass,
		"index": strconv.Itoa(s.Index),
	})
}

type MetricSummary struct {
	Metric string  `json:"metric"`
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

func (s MetricSummary) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// SummarizeJSONL aggregates count/sum/min/max per metric, sorted by metric
// name. Blank and unparseable lines are skipped.
func SummarizeJSONL(path string) ([]MetricSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	byMetric := map[string]*MetricSummary{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec ProfileRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		s, ok := byMetric[rec.Metric]
		if !ok {
			s = &MetricSummary{Metric: rec.Metric, Min: math.Inf(1), Max: math.Inf(-1)}
			byMetric[rec.Metric] = s
		}
		s.Count++
		s.Sum += rec.Value
		s.Min = math.Min(s.Min, rec.Value)
		s.Max = math.Max(s.Max, rec.Value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	out := make([]MetricSummary, 0, len(byMetric))
	for _, s := range byMetric {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out, nil
}
