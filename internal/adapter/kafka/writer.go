package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/sunset-stats/internal/config"
	"github.com/couchcryptid/sunset-stats/internal/domain"
	"github.com/couchcryptid/sunset-stats/internal/pipeline"
	"github.com/couchcryptid/sunset-stats/internal/stats"
)

// Record types carried in the record_type header.
const (
	RecordPoint   = "point"
	RecordSummary = "summary"
)

// Writer publishes run output to a Kafka topic: one message per point
// result followed by one summary message. It implements pipeline.Sink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured results topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    500,
	}
	return &Writer{writer: w, logger: logger}
}

// Write publishes the run's point results and summary in a single
// WriteMessages call.
func (w *Writer) Write(ctx context.Context, run *pipeline.Run) error {
	if run.Result == nil || run.Summary == nil {
		return nil
	}
	msgs := make([]kafkago.Message, 0, len(run.Result.Points)+1)
	for i := range run.Result.Points {
		msg, err := serializePoint(run.ID, run.Result.Points[i])
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	msg, err := serializeSummary(run.ID, run.FinishedAt, run.Summary)
	if err != nil {
		return err
	}
	msgs = append(msgs, msg)

	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish run %s: %w", run.ID, err)
	}
	w.logger.Info("run published", "run_id", run.ID, "topic", w.writer.Topic, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// pointMessage is the wire form of a point result.
type pointMessage struct {
	RunID          string  `json:"run_id"`
	ZipCode        string  `json:"zip_code"`
	SunsetTime     string  `json:"sunset_time,omitempty"`
	SunsetUTC      string  `json:"sunset_utc,omitempty"`
	TimezoneOffset float64 `json:"timezone_offset"`
	Failed         bool    `json:"failed,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

func serializePoint(runID string, r domain.PointResult) (kafkago.Message, error) {
	pm := pointMessage{
		RunID:          runID,
		ZipCode:        r.ID,
		TimezoneOffset: r.OffsetHours(),
		Failed:         r.Failed,
		Reason:         r.Reason,
	}
	if !r.Failed {
		pm.SunsetTime = domain.FormatMinuteOfDay(r.MinuteOfDay)
		pm.SunsetUTC = r.Sunset.UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(pm)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize point result: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "record_type", Value: []byte(RecordPoint)},
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}

func serializeSummary(runID string, at time.Time, s *stats.Summary) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte("summary:" + runID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "record_type", Value: []byte(RecordSummary)},
			{Key: "run_id", Value: []byte(runID)},
			{Key: "processed_at", Value: []byte(at.UTC().Format(time.RFC3339))},
		},
	}, nil
}
