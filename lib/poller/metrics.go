package poller

type pollMetrics struct {
	selected  int
	skipped   int
	submitted int
	errored   int
}

func (m *pollMetrics) Add(other *pollMetrics) {
	m.selected += other.selected
	m.skipped += other.skipped
	m.submitted += other.submitted
	m.errored += other.errored
}

func (m *pollMetrics) logArgs() []any {
	args := make([]any, 0)
	if m.skipped != 0 {
		args = append(args, "skipped", m.skipped)
	}
	if m.submitted != 0 {
		args = append(args, "submitted", m.submitted)
	}
	if m.errored != 0 {
		args = append(args, "errored", m.errored)
	}
	return args
}
