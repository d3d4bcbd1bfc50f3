package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"fpsync/internal/config"
	"fpsync/internal/merge"
)

const (
	defaultMQTTTimeout      = 10 * time.Second
	mqttDisconnectQuiesceMS = 250
	mqttQoS                 = byte(1)
)

// ErrMQTTPublish wraps broker connection and publish failures.
var ErrMQTTPublish = errors.New("mqtt publish failed")

// RunEvent is the JSON document published to the broker.
type RunEvent struct {
	Event      string       `json:"event"`
	RunID      string       `json:"run_id,omitempty"`
	DryRun     bool         `json:"dry_run"`
	Failed     bool         `json:"failed"`
	Error      string       `json:"error,omitempty"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Totals     merge.Totals `json:"totals"`
	Sources    []SourceFlag `json:"sources,omitempty"`
}

// SourceFlag is the per-collector success flag in a RunEvent.
type SourceFlag struct {
	Source string `json:"source"`
	OK     bool   `json:"ok"`
}

// NewRunEvent builds the broker payload for a finished run.
func NewRunEvent(report *merge.Report) RunEvent {
	event := RunEvent{Event: "run_completed", Failed: Failed(report)}
	if report == nil {
		return event
	}
	event.RunID = report.RunID
	event.DryRun = report.DryRun
	event.Totals = report.Totals
	started, finished := report.StartedAt, report.FinishedAt
	event.StartedAt, event.FinishedAt = &started, &finished
	for _, src := range report.Sources {
		event.Sources = append(event.Sources, SourceFlag{Source: string(src.Source), OK: src.OK})
	}
	return event
}

// mqttService connects for each publish; runs are minutes apart so a
// persistent session buys nothing.
type mqttService struct {
	cfg     config.MQTT
	timeout time.Duration
	connect func(*pahomqtt.ClientOptions) pahomqtt.Client
}

func newMQTTService(cfg config.MQTT) *mqttService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultMQTTTimeout
	}
	return &mqttService{cfg: cfg, timeout: timeout, connect: pahomqtt.NewClient}
}

func (m *mqttService) clientOptions() *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(m.cfg.Broker)
	clientID := strings.TrimSpace(m.cfg.ClientID)
	if clientID == "" {
		clientID = fmt.Sprintf("fpsync-%d", time.Now().UnixNano())
	}
	opts.SetClientID(clientID)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(m.timeout)
	return opts
}

func (m *mqttService) NotifyRunCompleted(ctx context.Context, report *merge.Report) error {
	return m.publish(ctx, NewRunEvent(report))
}

func (m *mqttService) NotifyRunFailed(ctx context.Context, err error) error {
	event := RunEvent{Event: "run_failed", Failed: true}
	if err != nil {
		event.Error = err.Error()
	}
	return m.publish(ctx, event)
}

func (m *mqttService) TestNotification(ctx context.Context) error {
	return m.publish(ctx, RunEvent{Event: "test"})
}

func (m *mqttService) publish(ctx context.Context, event RunEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal mqtt event: %w", err)
	}

	timeout := m.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if timeout <= 0 {
		return fmt.Errorf("%w: %w", ErrMQTTPublish, context.DeadlineExceeded)
	}

	client := m.connect(m.clientOptions())
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: connect timeout after %v", ErrMQTTPublish, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: connect %s: %w", ErrMQTTPublish, m.cfg.Broker, err)
	}
	defer client.Disconnect(mqttDisconnectQuiesceMS)

	token = client.Publish(m.cfg.Topic, mqttQoS, false, body)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: publish timeout after %v", ErrMQTTPublish, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrMQTTPublish, err)
	}
	return nil
}
