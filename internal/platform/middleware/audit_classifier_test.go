package middleware

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClassifier_MostSpecificWins(t *testing.T) {
	cl := NewClassifier("/api/v1", DefaultAuditRoutes())

	tests := []struct {
		method, path   string
		action, target string
	}{
		{"GET", "/api/v1/audit-logs/stats", "AUDIT_STATS", "AuditLog"},
		{"GET", "/api/v1/audit-logs/abc", "AUDIT_VIEW", "AuditLog"},
		{"GET", "/api/v1/audit-logs", "AUDIT_LIST", "AuditLog"},
		{"GET", "/api/v1/patients/", "PATIENT_LIST", "Patient"},
		{"post", "/api/v1/patients", "PATIENT_CREATE", "Patient"},
		{"POST", "/api/v1/organizations/o1/contract/extend", "CONTRACT_EXTEND", "Organization"},
		{"POST", "/api/v1/organizations/o1/renewal-requests/r1/approve", "RENEWAL_REQUEST_APPROVE", "RenewalRequest"},
		{"GET", "/api/v1/organization/contract", "CONTRACT_VIEW", "Organization"},
		{"PATCH", "/api/v1/assessment-requests/a1/status", "ASSESSMENT_REQUEST_STATUS_UPDATE", "AssessmentRequest"},
	}
	for _, tt := range tests {
		action, target := cl.Classify(tt.method, tt.path)
		if action != tt.action || target != tt.target {
			t.Errorf("%s %s: got %s/%s, want %s/%s", tt.method, tt.path, action, target, tt.action, tt.target)
		}
	}
}

func TestClassifier_Precedence(t *testing.T) {
	cl := NewClassifier("", []AuditRoute{
		{"*", "/files/*", "FILE_ANY", "File"},
		{"GET", "/files/*", "FILE_READ", "File"},
		{"GET", "/files/:id", "FILE_VIEW", "File"},
		{"GET", "/files/:id/meta", "FILE_META", "File"},
		{"GET", "/files/shared/:id", "FILE_SHARED", "File"},
	})

	tests := []struct{ method, path, want string }{
		{"GET", "/files/shared/x", "FILE_SHARED"},
		{"GET", "/files/x/meta", "FILE_META"},
		{"GET", "/files/x", "FILE_VIEW"},
		{"GET", "/files/x/y/z", "FILE_READ"},
		{"DELETE", "/files/x/y", "FILE_ANY"},
	}
	for _, tt := range tests {
		if got, _ := cl.Classify(tt.method, tt.path); got != tt.want {
			t.Errorf("%s %s: got %s, want %s", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestClassifier_GenericFallback(t *testing.T) {
	cl := NewClassifier("/api/v1", nil)

	tests := []struct{ method, path, action, target string }{
		{"GET", "/api/v1/audit-logs", "GET_AUDIT_LOGS", "audit-logs"},
		{"delete", "/api/v1/widgets/1", "DELETE_WIDGETS", "widgets"},
		{"GET", "/api/v1", "GET_ROOT", ""},
	}
	for _, tt := range tests {
		action, target := cl.Classify(tt.method, tt.path)
		if action != tt.action || target != tt.target {
			t.Errorf("%s %s: got %s/%s, want %s/%s", tt.method, tt.path, action, target, tt.action, tt.target)
		}
	}
}

func TestClassifier_LongSegmentFitsColumn(t *testing.T) {
	cl := NewClassifier("/api/v1", nil)

	for _, seg := range []string{strings.Repeat("a", 200), strings.Repeat("é", 100)} {
		action, target := cl.Classify("GET", "/api/v1/"+seg)
		if n := utf8.RuneCountInString(action); n > MaxAuditLabel {
			t.Errorf("action has %d runes, want <= %d", n, MaxAuditLabel)
		}
		if n := utf8.RuneCountInString(target); n > MaxAuditLabel {
			t.Errorf("target has %d runes, want <= %d", n, MaxAuditLabel)
		}
		if !strings.HasPrefix(action, "GET_") {
			t.Errorf("action %q lost its method prefix", action)
		}
		if !utf8.ValidString(action) || !utf8.ValidString(target) {
			t.Error("clamped labels must stay valid UTF-8")
		}
	}
}
