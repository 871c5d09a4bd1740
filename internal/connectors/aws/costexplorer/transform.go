package costexplorer

import (
	"strconv"

	ce "github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
)

// transformCostAndUsage flattens GetCostAndUsage output into one record per
// time period, with grouped results nested under "groups" when present.
func transformCostAndUsage(out *ce.GetCostAndUsageOutput, granularity string, metrics []string) map[string]any {
	results := make([]map[string]any, 0, len(out.ResultsByTime))
	totals := make(map[string]float64, len(metrics))

	for _, r := range out.ResultsByTime {
		rec := map[string]any{
			"start": "",
			"end":   "",
		}
		if r.TimePeriod != nil {
			if r.TimePeriod.Start != nil {
				rec["start"] = *r.TimePeriod.Start
			}
			if r.TimePeriod.End != nil {
				rec["end"] = *r.TimePeriod.End
			}
		}

		amounts := metricAmounts(r.Total)
		for name, v := range amounts {
			totals[name] += v
		}
		rec["amounts"] = amounts

		if len(r.Groups) > 0 {
			groups := make([]map[string]any, 0, len(r.Groups))
			for _, g := range r.Groups {
				key := ""
				if len(g.Keys) > 0 {
					key = g.Keys[0]
				}
				ga := metricAmounts(g.Metrics)
				for name, v := range ga {
					totals[name] += v
				}
				groups = append(groups, map[string]any{
					"key":     key,
					"amounts": ga,
				})
			}
			rec["groups"] = groups
		}
		results = append(results, rec)
	}

	return map[string]any{
		"granularity": granularity,
		"metrics":     metrics,
		"totals":      totals,
		"results":     results,
	}
}

func metricAmounts(m map[string]cetypes.MetricValue) map[string]float64 {
	amounts := make(map[string]float64, len(m))
	for name, mv := range m {
		if mv.Amount == nil {
			continue
		}
		v, err := strconv.ParseFloat(*mv.Amount, 64)
		if err != nil {
			continue
		}
		amounts[name] = v
	}
	return amounts
}

// transformForecast flattens GetCostForecast output into a total plus the
// per-period predictions with their 80% confidence bounds.
func transformForecast(out *ce.GetCostForecastOutput) map[string]any {
	total := 0.0
	unit := ""
	if out.Total != nil {
		if out.Total.Amount != nil {
			total, _ = strconv.ParseFloat(*out.Total.Amount, 64)
		}
		if out.Total.Unit != nil {
			unit = *out.Total.Unit
		}
	}

	points := make([]map[string]any, 0, len(out.ForecastResultsByTime))
	for _, fr := range out.ForecastResultsByTime {
		p := map[string]any{"start": "", "end": ""}
		if fr.TimePeriod != nil {
			if fr.TimePeriod.Start != nil {
				p["start"] = *fr.TimePeriod.Start
			}
			if fr.TimePeriod.End != nil {
				p["end"] = *fr.TimePeriod.End
			}
		}
		if fr.MeanValue != nil {
			v, _ := strconv.ParseFloat(*fr.MeanValue, 64)
			p["mean"] = v
		}
		if fr.PredictionIntervalLowerBound != nil {
			v, _ := strconv.ParseFloat(*fr.PredictionIntervalLowerBound, 64)
			p["lower_bound"] = v
		}
		if fr.PredictionIntervalUpperBound != nil {
			v, _ := strconv.ParseFloat(*fr.PredictionIntervalUpperBound, 64)
			p["upper_bound"] = v
		}
		points = append(points, p)
	}

	return map[string]any{
		"total":  total,
		"unit":   unit,
		"points": points,
	}
}
