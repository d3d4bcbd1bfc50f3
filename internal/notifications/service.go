package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fpsync/internal/config"
	"fpsync/internal/merge"
)

const userAgent = "fpsync/0.1.0"

// Service defines the notification surface exposed to the run coordinator.
type Service interface {
	NotifyRunCompleted(ctx context.Context, report *merge.Report) error
	NotifyRunFailed(ctx context.Context, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service from configuration. When neither
// ntfy nor MQTT is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	var services []Service
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		services = append(services, &ntfyService{
			endpoint: topic,
			client:   &http.Client{Timeout: timeout},
		})
	}
	if cfg.MQTT.Enabled {
		services = append(services, newMQTTService(cfg.MQTT))
	}

	var svc Service
	switch len(services) {
	case 0:
		return noopService{}
	case 1:
		svc = services[0]
	default:
		svc = multiService(services)
	}
	return filtered{
		next:      svc,
		onSuccess: cfg.Notifications.OnSuccess,
		onFailure: cfg.Notifications.OnFailure,
	}
}

// Failed reports whether the run had a failed source or record write.
func Failed(report *merge.Report) bool {
	return report != nil && (!report.SourcesOK() || report.Totals.RecordsFailed > 0)
}

// Summary renders a one-paragraph human summary of a run.
func Summary(report *merge.Report) string {
	if report == nil {
		return ""
	}
	t := report.Totals
	var b strings.Builder
	fmt.Fprintf(&b, "%d tokens added across %d of %d records", t.Added, t.RecordsChanged, t.Records)
	if t.Deferred > 0 {
		fmt.Fprintf(&b, ", %d candidates deferred", t.Deferred)
	}
	if t.CategoriesAssigned > 0 {
		fmt.Fprintf(&b, ", %d categories assigned", t.CategoriesAssigned)
	}
	if t.RecordsFailed > 0 {
		fmt.Fprintf(&b, "\n%d record writes failed", t.RecordsFailed)
	}
	var failed []string
	for _, src := range report.Sources {
		if !src.OK {
			failed = append(failed, string(src.Source))
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\nSources unavailable: %s", strings.Join(failed, ", "))
	}
	if report.DryRun {
		b.WriteString("\n(dry run, nothing written)")
	}
	return b.String()
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, report *merge.Report) error {
	data := payload{
		title:   "fpsync - Run Complete",
		message: Summary(report),
		tags:    []string{"fpsync", "run", "completed"},
	}
	if Failed(report) {
		data.title = "fpsync - Run Complete (with errors)"
		data.tags = []string{"fpsync", "run", "warning"}
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, err error) error {
	message := "unknown"
	if err != nil {
		message = strings.TrimSpace(err.Error())
	}
	return n.send(ctx, payload{
		title:    "fpsync - Run Failed",
		message:  "Run aborted: " + message,
		tags:     []string{"fpsync", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "fpsync - Test",
		message:  "Notification system test",
		tags:     []string{"fpsync", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// filtered drops run notifications the operator opted out of.
type filtered struct {
	next      Service
	onSuccess bool
	onFailure bool
}

func (f filtered) NotifyRunCompleted(ctx context.Context, report *merge.Report) error {
	if Failed(report) {
		if !f.onFailure {
			return nil
		}
	} else if !f.onSuccess {
		return nil
	}
	return f.next.NotifyRunCompleted(ctx, report)
}

func (f filtered) NotifyRunFailed(ctx context.Context, err error) error {
	if !f.onFailure {
		return nil
	}
	return f.next.NotifyRunFailed(ctx, err)
}

func (f filtered) TestNotification(ctx context.Context) error {
	return f.next.TestNotification(ctx)
}

type multiService []Service

func (m multiService) NotifyRunCompleted(ctx context.Context, report *merge.Report) error {
	var errs []error
	for _, svc := range m {
		errs = append(errs, svc.NotifyRunCompleted(ctx, report))
	}
	return errors.Join(errs...)
}

func (m multiService) NotifyRunFailed(ctx context.Context, err error) error {
	var errs []error
	for _, svc := range m {
		errs = append(errs, svc.NotifyRunFailed(ctx, err))
	}
	return errors.Join(errs...)
}

func (m multiService) TestNotification(ctx context.Context) error {
	var errs []error
	for _, svc := range m {
		errs = append(errs, svc.TestNotification(ctx))
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, *merge.Report) error { return nil }
func (noopService) NotifyRunFailed(context.Context, error) error            { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }
