package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnderscore(t *testing.T) {
	tests := map[string]string{
		"Class":                   "class",
		"MyClass":                 "my_class",
		"MyHTTPServer":            "my_http_server",
		"Admin::UserProfile":      "admin-user_profile",
		"Admin::UserProfileSuPER": "admin-user_profile_su_per",
		"billing.InvoiceJob":      "billing-invoice_job",
		"Job2Run":                 "job2_run",
		"already_snake":           "already_snake",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, Underscore(in))
		})
	}
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "default.my_job", Subject("default", "MyJob"))
	assert.Equal(t, "jobs.dead.my_job", DeadSubject("MyJob"))
	assert.Equal(t, "scheduled.admin-user_profile", ScheduledSubject("Admin::UserProfile"))
	assert.Equal(t, "consumer-default", Consumer("default"))
	assert.Equal(t, "orders.>", Wildcard("orders"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "orders.created", Format("%{name}.created", "orders"))
	assert.Equal(t, "static", Format("static", "orders"))
}
