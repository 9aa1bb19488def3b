package metadata

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func TestCloneDoesNotAlias(t *testing.T) {
	original := Metadata{"a": "1", "b": "2"}
	clone := original.Clone()
	clone["a"] = "changed"

	assert.Equal(t, "1", original["a"])
	assert.Len(t, clone, len(original))
}

func TestCloneEmpty(t *testing.T) {
	var m Metadata
	cloned := m.Clone()
	assert.NotNil(t, cloned)
	assert.Empty(t, cloned)
}

func TestWithAndWithAll(t *testing.T) {
	base := Metadata{"foo": "bar"}
	enriched := base.With("baz", "qux")
	assert.Empty(t, base.Get("baz"))
	assert.Equal(t, "qux", enriched.Get("baz"))

	merged := enriched.WithAll(Metadata{"alpha": "beta"})
	assert.Equal(t, "beta", merged["alpha"])
	assert.Equal(t, "qux", merged["baz"])
}

func TestWithout(t *testing.T) {
	headers := Metadata{
		HeaderStream:         "default",
		HeaderSubject:        "default.my_job",
		HeaderExecuteAt:      "1000",
		HeaderExpectedStream: "scheduled",
		"Trace":              "abc",
	}

	forwarded := headers.Without(HeaderStream, HeaderSubject, HeaderExecuteAt, HeaderExpectedStream)

	assert.Equal(t, Metadata{"Trace": "abc"}, forwarded)
	assert.Len(t, headers, 5, "original must stay untouched")
}

func TestNewPairs(t *testing.T) {
	md := New("key", "value", "another", "entry", "dangling")
	assert.Equal(t, Metadata{"key": "value", "another": "entry"}, md)
}

func TestToAndFromNATS(t *testing.T) {
	md := Metadata{"source": "api"}
	h := ToNATS(md)
	assert.Equal(t, "api", h.Get("source"))

	h.Set("source", "mutation")
	assert.Equal(t, "api", md["source"])

	assert.Nil(t, ToNATS(nil))

	roundTrip := FromNATS(nats.Header{"event": {"order", "ignored"}, "empty": {}})
	assert.Equal(t, Metadata{"event": "order"}, roundTrip)
	assert.Empty(t, FromNATS(nil))
}
