package streams

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/jetflow/internal/runtime/config"
)

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions("orders")
	assert.Equal(t, 100, o.BatchSize)
	assert.Equal(t, time.Second, o.FetchTimeout)
	assert.Equal(t, config.ConsumerPolicy{
		AckPolicy:     "explicit",
		MaxDeliver:    1,
		MaxAckPending: 3,
		AckWait:       30 * time.Second,
	}, o.Consumer)
	assert.Equal(t, []string{"orders.>"}, o.ConsumerSubjects())
	assert.Equal(t, "orders.default", o.PublishSubject())
	assert.Equal(t, "all", o.ConsumerPolicy().DeliverPolicy)
}

func TestOptionsApplyAndMerge(t *testing.T) {
	o := DefaultOptions("orders").Apply(
		WithSubjects("%{name}.created"),
		WithPublishSubject("%{name}.created"),
		WithBatchSize(10),
		WithConsumer(config.ConsumerPolicy{MaxDeliver: 5}),
		WithStartPosition("new"),
	)
	assert.Equal(t, []string{"orders.created"}, o.ConsumerSubjects())
	assert.Equal(t, "orders.created", o.PublishSubject())
	assert.Equal(t, 5, o.Consumer.MaxDeliver)
	assert.Equal(t, 3, o.Consumer.MaxAckPending)
	assert.Equal(t, "new", o.ConsumerPolicy().DeliverPolicy)

	merged := o.Merge(config.StreamConsumerSpec{
		Stream:        "orders_eu",
		BatchSize:     25,
		FetchTimeout:  2 * time.Second,
		StartPosition: "2024-01-01T00:00:00Z",
		Consumer:      config.ConsumerPolicy{AckWait: time.Minute},
	})
	assert.Equal(t, "orders_eu", merged.Stream)
	assert.Equal(t, 25, merged.BatchSize)
	assert.Equal(t, 2*time.Second, merged.FetchTimeout)
	assert.Equal(t, time.Minute, merged.Consumer.AckWait)
	assert.Equal(t, 5, merged.Consumer.MaxDeliver)

	policy := merged.ConsumerPolicy()
	assert.Equal(t, "by_start_time", policy.DeliverPolicy)
	if assert.NotNil(t, policy.OptStartTime) {
		assert.Equal(t, 2024, policy.OptStartTime.Year())
	}
}

func TestConsumerPolicyKeepsExplicitDeliverPolicy(t *testing.T) {
	o := DefaultOptions("orders").Apply(WithConsumer(config.ConsumerPolicy{DeliverPolicy: "last"}))
	assert.Equal(t, "last", o.ConsumerPolicy().DeliverPolicy)
}
