package recorder

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSignal(_ *SignalEvent) error        { return nil }
func (n *NoopRecorder) RecordOpen(_ *OpenEvent) error            { return nil }
func (n *NoopRecorder) RecordClose(_ *CloseEvent) error          { return nil }
func (n *NoopRecorder) RecordCycle(_ *CycleEvent) error          { return nil }
func (n *NoopRecorder) RecentCloses(_ int) ([]CloseEvent, error) { return nil, nil }
func (n *NoopRecorder) OpenPositions() ([]OpenEvent, error)      { return nil, nil }
func (n *NoopRecorder) Close() error                             { return nil }
