package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
	"github.com/drblury/jetflow/internal/runtime/naming"
)

// Environment variables read by the store.
const (
	EnvNATSURL               = "NATS_URL"
	EnvJobsFetchTimeout      = "JETFLOW_JOBS_FETCH_TIMEOUT"
	EnvSchedulerFetchTimeout = "JETFLOW_JOBS_SCHEDULER_FETCH_TIMEOUT"
)

// Store is the process configuration store. It wraps its own viper instance,
// so several stores can coexist in one process.
type Store struct {
	v      *viper.Viper
	loaded string
}

// NewStore creates an empty store with environment bindings in place.
func NewStore() *Store {
	v := viper.New()
	_ = v.BindEnv("nats_url", EnvNATSURL)
	_ = v.BindEnv("jobs_fetch_timeout", EnvJobsFetchTimeout)
	_ = v.BindEnv("scheduler_fetch_timeout", EnvSchedulerFetchTimeout)
	return &Store{v: v}
}

// Load reads a YAML or JSON file, chosen by extension. An explicit path that
// does not exist is a ConfigNotFoundError. An empty path tries DefaultPath and
// silently keeps the defaults when it is missing.
func (s *Store) Load(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			return nil
		}
		path = DefaultPath
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &runtimeerrors.ConfigNotFoundError{Path: path}
		}
		return err
	}

	s.v.SetConfigFile(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml":
		s.v.SetConfigType("yaml")
	case ".json":
		s.v.SetConfigType("json")
	}
	if err := s.v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	s.loaded = path
	return nil
}

// Path returns the file loaded last, if any.
func (s *Store) Path() string { return s.loaded }

// Fetch returns the value at key or def when it is not set.
func (s *Store) Fetch(key string, def any) any {
	if !s.v.IsSet(key) {
		return def
	}
	return s.v.Get(key)
}

// Dig walks nested maps, returning nil when any segment is missing.
func (s *Store) Dig(path ...string) any {
	if len(path) == 0 {
		return s.v.AllSettings()
	}
	return s.v.Get(strings.Join(path, "."))
}

// Set overrides the value at path. Later calls to Config observe it.
func (s *Store) Set(value any, path ...string) {
	s.v.Set(strings.Join(path, "."), value)
}

// Config decodes the store into a Config. Unset scalars take their defaults;
// the stream and job consumer sections fall back to Default when absent.
// "%{name}" in subjects is replaced by the enclosing key.
func (s *Store) Config() (Config, error) {
	def := Default()
	cfg := Config{
		Broker:             cast.ToString(s.Fetch("broker", "")),
		NATSURL:            cast.ToString(s.Fetch("nats_url", "")),
		Concurrency:        cast.ToInt(s.Fetch("concurrency", 0)),
		SchedulerBatchSize: cast.ToInt(s.Fetch("scheduler_batch_size", 0)),
		UnresolvedPolicy:   UnresolvedPolicy(cast.ToString(s.Fetch("unresolved_policy", ""))),
		MetricsEnabled:     cast.ToBool(s.Fetch("metrics.enabled", false)),
		MetricsPort:        cast.ToInt(s.Fetch("metrics.port", 0)),
		Streams:            def.Streams,
		Consumers:          def.Consumers,
	}

	var err error
	if cfg.Timeout, err = Seconds(s.Fetch("timeout", nil)); err != nil {
		return Config{}, fmt.Errorf("config: timeout: %w", err)
	}
	if cfg.JobsFetchTimeout, err = Seconds(s.Fetch("jobs_fetch_timeout", nil)); err != nil {
		return Config{}, fmt.Errorf("config: jobs_fetch_timeout: %w", err)
	}
	if cfg.SchedulerFetchTimeout, err = Seconds(s.Fetch("scheduler_fetch_timeout", nil)); err != nil {
		return Config{}, fmt.Errorf("config: scheduler_fetch_timeout: %w", err)
	}

	if raw := s.v.GetStringMap("streams"); len(raw) > 0 {
		if cfg.Streams, err = decodeStreams(raw); err != nil {
			return Config{}, err
		}
	}
	if raw := s.v.GetStringMap("consumers.jobs"); len(raw) > 0 {
		if cfg.Consumers.Jobs, err = decodeJobConsumers(raw); err != nil {
			return Config{}, err
		}
	}
	if raw := s.v.Get("consumers.streams"); raw != nil {
		if cfg.Consumers.Streams, err = decodeStreamConsumers(raw); err != nil {
			return Config{}, err
		}
	}

	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

func decodeStreams(raw map[string]any) (map[string]StreamSpec, error) {
	streams := make(map[string]StreamSpec, len(raw))
	for _, name := range sortedKeys(raw) {
		m := cast.ToStringMap(raw[name])
		spec := StreamSpec{
			Subjects:    formatAll(cast.ToStringSlice(m["subjects"]), name),
			Description: cast.ToString(m["description"]),
			MaxMsgs:     cast.ToInt64(m["max_msgs"]),
			Retention:   cast.ToString(m["retention"]),
			Storage:     cast.ToString(m["storage"]),
			Replicas:    cast.ToInt(m["replicas"]),
		}
		if len(spec.Subjects) == 0 {
			spec.Subjects = []string{naming.Wildcard(name)}
		}
		var err error
		if spec.MaxAge, err = Seconds(m["max_age"]); err != nil {
			return nil, fmt.Errorf("config: stream %s max_age: %w", name, err)
		}
		if spec.DuplicateWindow, err = Seconds(m["duplicate_window"]); err != nil {
			return nil, fmt.Errorf("config: stream %s duplicate_window: %w", name, err)
		}
		streams[name] = spec
	}
	return streams, nil
}

func decodeJobConsumers(raw map[string]any) (map[string]JobConsumerSpec, error) {
	jobs := make(map[string]JobConsumerSpec, len(raw))
	for _, name := range sortedKeys(raw) {
		m := cast.ToStringMap(raw[name])
		// Everything besides subject and priority configures the consumer itself.
		policy, err := decodePolicy(m)
		if err != nil {
			return nil, fmt.Errorf("config: jobs consumer %s: %w", name, err)
		}
		subject := naming.Format(cast.ToString(m["subject"]), name)
		if subject == "" {
			subject = naming.Wildcard(name)
		}
		jobs[name] = JobConsumerSpec{
			Subject:  subject,
			Priority: cast.ToInt(m["priority"]),
			Consumer: policy,
		}
	}
	return jobs, nil
}

func decodeStreamConsumers(raw any) ([]StreamConsumerSpec, error) {
	items, err := cast.ToSliceE(raw)
	if err != nil {
		return nil, fmt.Errorf("config: consumers.streams must be a list: %w", err)
	}
	out := make([]StreamConsumerSpec, 0, len(items))
	for i, item := range items {
		m := cast.ToStringMap(item)
		spec := StreamConsumerSpec{
			Stream:        cast.ToString(m["stream"]),
			Class:         cast.ToString(m["class"]),
			BatchSize:     cast.ToInt(m["batch_size"]),
			StartPosition: cast.ToString(m["start_position"]),
		}
		if spec.FetchTimeout, err = Seconds(m["fetch_timeout"]); err != nil {
			return nil, fmt.Errorf("config: streams consumer %d fetch_timeout: %w", i, err)
		}
		consumer := cast.ToStringMap(m["consumer"])
		if spec.Consumer, err = decodePolicy(consumer); err != nil {
			return nil, fmt.Errorf("config: streams consumer %d: %w", i, err)
		}
		subjects := cast.ToStringSlice(consumer["subjects"])
		if len(subjects) == 0 {
			subjects = cast.ToStringSlice(m["subjects"])
		}
		spec.Subjects = formatAll(subjects, spec.Stream)
		out = append(out, spec)
	}
	return out, nil
}

func decodePolicy(m map[string]any) (ConsumerPolicy, error) {
	p := ConsumerPolicy{
		AckPolicy:     cast.ToString(m["ack_policy"]),
		MaxDeliver:    cast.ToInt(m["max_deliver"]),
		MaxAckPending: cast.ToInt(m["max_ack_pending"]),
		DeliverPolicy: cast.ToString(m["deliver_policy"]),
	}
	var err error
	if p.AckWait, err = Seconds(m["ack_wait"]); err != nil {
		return ConsumerPolicy{}, fmt.Errorf("ack_wait: %w", err)
	}
	if start := cast.ToString(m["opt_start_time"]); start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return ConsumerPolicy{}, fmt.Errorf("opt_start_time: %w", err)
		}
		p.OptStartTime = &t
	}
	return p, nil
}

// Seconds converts a config value into a duration. Numbers are seconds,
// strings are either Go durations ("1m30s") or numeric seconds ("0.1").
// Nil is zero.
func Seconds(v any) (time.Duration, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return val, nil
	case string:
		val = strings.TrimSpace(val)
		if val == "" {
			return 0, nil
		}
		if d, err := time.ParseDuration(val); err == nil {
			return d, nil
		}
	}
	secs, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func formatAll(subjects []string, name string) []string {
	if len(subjects) == 0 {
		return nil
	}
	out := make([]string, len(subjects))
	for i, s := range subjects {
		out[i] = naming.Format(s, name)
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
