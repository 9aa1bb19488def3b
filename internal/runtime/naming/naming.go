// Package naming derives broker subjects and consumer names from job classes
// and stream names.
package naming

import (
	"regexp"
	"strings"
)

const (
	// DeadPrefix is the subject prefix for dead-lettered jobs.
	DeadPrefix = "jobs.dead"
	// ScheduledStream is the stream that holds delayed jobs until they are due.
	ScheduledStream = "scheduled"
	// ConsumerPrefix prefixes every durable consumer created by the processors.
	ConsumerPrefix = "consumer-"
)

var (
	acronymBoundary = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
	wordBoundary    = regexp.MustCompile(`([a-z\d])([A-Z])`)
	namespaceSep    = strings.NewReplacer("::", "-", ".", "-", "/", "-")
)

// Underscore flattens a hierarchical class name into a single subject token.
// Namespace separators ("::", "." and "/") become "-" and camel-case boundaries
// become "_", so "Admin::UserProfile" yields "admin-user_profile".
func Underscore(class string) string {
	s := namespaceSep.Replace(class)
	s = acronymBoundary.ReplaceAllString(s, "${1}_${2}")
	s = wordBoundary.ReplaceAllString(s, "${1}_${2}")
	return strings.ToLower(s)
}

// Subject is the primary dispatch subject "<stream>.<class>".
func Subject(stream, class string) string {
	return stream + "." + Underscore(class)
}

// DeadSubject is the dead-letter subject "jobs.dead.<class>".
func DeadSubject(class string) string {
	return DeadPrefix + "." + Underscore(class)
}

// ScheduledSubject is where delayed jobs wait for their execution time.
func ScheduledSubject(class string) string {
	return Subject(ScheduledStream, class)
}

// Consumer returns the durable consumer name for a logical stream.
func Consumer(stream string) string {
	return ConsumerPrefix + stream
}

// Format replaces every "%{name}" placeholder in pattern with name.
func Format(pattern, name string) string {
	return strings.ReplaceAll(pattern, "%{name}", name)
}

// Wildcard is the subject filter matching everything under stream.
func Wildcard(stream string) string {
	return stream + ".>"
}
