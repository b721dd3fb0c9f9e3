package audit

import "context"

// MetricsSummary represents aggregated submission insights.
type MetricsSummary struct {
	TotalSubmissions      int64   `json:"total_submissions"`
	SuccessfulSubmissions int64   `json:"successful_submissions"`
	NoFaceSubmissions     int64   `json:"no_face_submissions"`
	SuccessRate           float64 `json:"success_rate"`
	AverageTopScore       float64 `json:"average_top_score"`
	AverageLatencyMs      float64 `json:"average_latency_ms"`
}

// GetMetricsSummary aggregates submission metrics from persisted logs.
func (r *Recorder) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := r.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalSubmissions:      aggregation.TotalCount,
		SuccessfulSubmissions: aggregation.SuccessCount,
		NoFaceSubmissions:     aggregation.NoFaceCount,
		AverageTopScore:       aggregation.AverageTopScore,
		AverageLatencyMs:      aggregation.AverageLatencyMs,
	}

	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.SuccessCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
