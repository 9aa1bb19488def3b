package jetstream

import (
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/drblury/jetflow/internal/runtime/config"
	"github.com/drblury/jetflow/internal/runtime/naming"
)

func streamConfig(name string, spec config.StreamSpec) *nats.StreamConfig {
	subjects := spec.Subjects
	if len(subjects) == 0 {
		subjects = []string{naming.Wildcard(name)}
	}
	replicas := spec.Replicas
	if replicas <= 0 {
		replicas = 1
	}
	return &nats.StreamConfig{
		Name:        name,
		Description: spec.Description,
		Subjects:    subjects,
		Retention:   retentionPolicy(spec.Retention),
		Storage:     storageType(spec.Storage),
		MaxAge:      spec.MaxAge,
		MaxMsgs:     maxMsgs(spec.MaxMsgs),
		Duplicates:  spec.DuplicateWindow,
		Replicas:    replicas,
	}
}

func maxMsgs(n int64) int64 {
	if n <= 0 {
		return -1
	}
	return n
}

func retentionPolicy(s string) nats.RetentionPolicy {
	switch strings.ToLower(s) {
	case "interest":
		return nats.InterestPolicy
	case "workqueue":
		return nats.WorkQueuePolicy
	default:
		return nats.LimitsPolicy
	}
}

func storageType(s string) nats.StorageType {
	if strings.ToLower(s) == "memory" {
		return nats.MemoryStorage
	}
	return nats.FileStorage
}

func consumerConfig(durable string, subjects []string, p config.ConsumerPolicy) *nats.ConsumerConfig {
	cfg := &nats.ConsumerConfig{
		Durable:       durable,
		AckPolicy:     ackPolicy(p.AckPolicy),
		MaxDeliver:    p.MaxDeliver,
		AckWait:       p.AckWait,
		MaxAckPending: p.MaxAckPending,
		DeliverPolicy: deliverPolicy(p.DeliverPolicy),
	}
	if cfg.DeliverPolicy == nats.DeliverByStartTimePolicy {
		if p.OptStartTime != nil {
			t := *p.OptStartTime
			cfg.OptStartTime = &t
		} else {
			cfg.DeliverPolicy = nats.DeliverAllPolicy
		}
	}
	if len(subjects) == 1 {
		cfg.FilterSubject = subjects[0]
	} else {
		cfg.FilterSubjects = append([]string(nil), subjects...)
	}
	return cfg
}

func ackPolicy(s string) nats.AckPolicy {
	switch strings.ToLower(s) {
	case "all":
		return nats.AckAllPolicy
	case "none":
		return nats.AckNonePolicy
	default:
		return nats.AckExplicitPolicy
	}
}

func deliverPolicy(s string) nats.DeliverPolicy {
	switch strings.ToLower(s) {
	case "new":
		return nats.DeliverNewPolicy
	case "last":
		return nats.DeliverLastPolicy
	case "by_start_time":
		return nats.DeliverByStartTimePolicy
	default:
		return nats.DeliverAllPolicy
	}
}
