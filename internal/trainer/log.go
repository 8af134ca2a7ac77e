package trainer

// accumLog sums a metric update into the step's log map. Used to fold
// per-micro-batch losses into one per-step value during gradient
// accumulation.
func accumLog(log, updates map[string]float64) map[string]float64 {
	if log == nil {
		log = make(map[string]float64, len(updates))
	}
	for k, v := range updates {
		log[k] += v
	}
	return log
}
