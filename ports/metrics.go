package ports

// MetricsCollector records auth outcomes.
type MetricsCollector interface {
	RecordLogin(method, outcome string)
	RecordTokenRejected(code string)
	RecordWebhook(vendor, status string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordLogin(string, string)   {}
func (NopMetrics) RecordTokenRejected(string)   {}
func (NopMetrics) RecordWebhook(string, string) {}
