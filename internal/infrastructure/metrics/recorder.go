package metrics

// Recorder fans events out to the in-process Collector and, when set, the Prometheus exporter.
// A nil *Recorder discards everything.
type Recorder struct {
	Collector *Collector
	Exporter  *PrometheusExporter
}

// NewRecorder pairs a collector with an optional exporter.
func NewRecorder(collector *Collector, exporter *PrometheusExporter) *Recorder {
	if collector == nil {
		collector = NewCollector()
	}
	return &Recorder{Collector: collector, Exporter: exporter}
}

func (r *Recorder) Request(method string, durationSeconds float64, failed bool) {
	if r == nil {
		return
	}
	r.Collector.RecordRequest(method)
	r.Collector.RecordDuration(method, durationSeconds)
	if failed {
		r.Collector.RecordError(method)
	}
	if r.Exporter != nil {
		r.Exporter.RecordRequest(method)
		r.Exporter.RecordDuration(method, durationSeconds)
		if failed {
			r.Exporter.RecordError(method)
		}
	}
}

func (r *Recorder) Fetch(kind string, err error) {
	if r == nil {
		return
	}
	r.Collector.RecordFetch(kind)
	if err != nil {
		r.Collector.RecordFetchError(kind)
	}
	if r.Exporter != nil {
		r.Exporter.RecordFetch(kind)
		if err != nil {
			r.Exporter.RecordFetchError(kind)
		}
	}
}

func (r *Recorder) LinkCache(hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.Collector.RecordLinkCacheHit()
	} else {
		r.Collector.RecordLinkCacheMiss()
	}
	if r.Exporter != nil {
		if hit {
			r.Exporter.RecordLinkCacheHit()
		} else {
			r.Exporter.RecordLinkCacheMiss()
		}
	}
}
