package logging

import "sync"

// Entry is a single line captured by a Recorder.
type Entry struct {
	Level  string
	Msg    string
	Fields LogFields
	Err    error
}

// Recorder is a ServiceLogger that keeps every entry in memory. Children created
// through With share the parent's sink and carry their fields into each entry.
// It is safe for concurrent use, which makes it usable from worker goroutines in tests.
type Recorder struct {
	sink   *recorderSink
	fields LogFields
}

type recorderSink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{sink: &recorderSink{}}
}

func (r *Recorder) With(fields LogFields) ServiceLogger {
	return &Recorder{sink: r.sink, fields: WithFields(r.fields, fields)}
}

func (r *Recorder) Debug(msg string, fields LogFields) { r.record("debug", msg, nil, fields) }

func (r *Recorder) Info(msg string, fields LogFields) { r.record("info", msg, nil, fields) }

func (r *Recorder) Error(msg string, err error, fields LogFields) {
	r.record("error", msg, err, fields)
}

func (r *Recorder) Trace(msg string, fields LogFields) { r.record("trace", msg, nil, fields) }

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	return append([]Entry(nil), r.sink.entries...)
}

// Find returns the entries whose message equals msg.
func (r *Recorder) Find(msg string) []Entry {
	var found []Entry
	for _, e := range r.Entries() {
		if e.Msg == msg {
			found = append(found, e)
		}
	}
	return found
}

func (r *Recorder) record(level, msg string, err error, fields LogFields) {
	entry := Entry{Level: level, Msg: msg, Fields: WithFields(r.fields, fields), Err: err}
	r.sink.mu.Lock()
	r.sink.entries = append(r.sink.entries, entry)
	r.sink.mu.Unlock()
}
