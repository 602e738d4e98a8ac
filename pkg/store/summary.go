package store

import (
	"context"
)

// RunSummary aggregates per-brand visibility for a run.
type RunSummary struct {
	RunID          string            `json:"run_id"`
	Status         string            `json:"status"`
	TotalPrompts   int               `json:"total_prompts"`
	TotalResponses int               `json:"total_responses"`
	Metrics        []BrandVisibility `json:"metrics"`
}

// BrandVisibility is one brand's aggregate across a run's responses.
type BrandVisibility struct {
	BrandName         string  `json:"brand_name"`
	TotalPrompts      int     `json:"total_prompts"`
	Mentions          int     `json:"mentions"`
	TotalMentionCount int     `json:"total_mention_count"`
	VisibilityScore   float64 `json:"visibility_score"`
}

// Summary computes per-brand visibility over a run's responses. The
// denominator counts every response, failed ones included; failed
// responses carry no mention rows, so they lower the score the same
// way an unmentioning success does.
func (s *store) Summary(
	ctx context.Context, runID string,
) (*RunSummary, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	total := len(run.Responses)

	summary := &RunSummary{
		RunID:          run.ID,
		Status:         run.Status,
		TotalPrompts:   len(run.Prompts),
		TotalResponses: total,
		Metrics:        make([]BrandVisibility, 0, len(run.Brands)),
	}

	for _, brand := range run.Brands {
		metric := BrandVisibility{
			BrandName:    brand.Name,
			TotalPrompts: len(run.Prompts),
		}

		for i := range run.Responses {
			for j := range run.Responses[i].Mentions {
				mention := &run.Responses[i].Mentions[j]
				if mention.BrandID != brand.ID {
					continue
				}

				if mention.Mentioned {
					metric.Mentions++
				}

				metric.TotalMentionCount += mention.Count
			}
		}

		if total > 0 {
			metric.VisibilityScore = float64(metric.Mentions) /
				float64(total) * 100
		}

		summary.Metrics = append(summary.Metrics, metric)
	}

	return summary, nil
}
