package perf

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/odyssey-erp/contacts/internal/jobs"
	"github.com/odyssey-erp/contacts/internal/mail"
	"github.com/odyssey-erp/contacts/jobs"
)

type flakySender struct {
	calls    int
	failEach int
}

func (f *flakySender) Send(context.Context, mail.Rendered) error {
	f.calls++
	if f.failEach > 0 && f.calls%f.failEach == 0 {
		return errors.New("smtp timeout")
	}
	return nil
}

func TestMailJobReliabilityMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	renderer, err := mail.NewRenderer()
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	handler := jobs.NewMailHandler(renderer, &flakySender{failEach: 20}, nil, metrics)

	task, err := jobs.NewSendEmailTask(mail.Message{Kind: mail.KindRecovery, To: "a@x.com", Username: "a", Token: "t"})
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	for i := 0; i < 100; i++ {
		_ = handler.Handle(context.Background(), task)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "contacts_jobs_total", map[string]string{"job": jobs.TaskTypeSendEmail, "status": "success"})
	failure := metricValue(t, families, "contacts_jobs_total", map[string]string{"job": jobs.TaskTypeSendEmail, "status": "failure"})
	if success != 95 || failure != 5 {
		t.Fatalf("unexpected outcome split: success=%v failure=%v", success, failure)
	}
	sent := metricValue(t, families, "contacts_mails_total", map[string]string{"kind": "recovery", "outcome": "sent"})
	if sent != 95 {
		t.Fatalf("unexpected sent count: %v", sent)
	}

	mean := histogramMean(t, families, "contacts_job_duration_seconds", map[string]string{"job": jobs.TaskTypeSendEmail})
	if mean > 0.05 {
		t.Fatalf("render and hand-off above budget: %f", mean)
	}
}

func BenchmarkMailRender(b *testing.B) {
	renderer, err := mail.NewRenderer()
	if err != nil {
		b.Fatalf("renderer: %v", err)
	}
	msg := mail.Message{Kind: mail.KindConfirmation, To: "a@x.com", Username: "a", Token: "t", BaseURL: "http://localhost"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := renderer.Render(msg); err != nil {
			b.Fatal(err)
		}
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
