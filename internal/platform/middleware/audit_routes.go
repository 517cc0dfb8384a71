package middleware

// DefaultAuditRoutes is the action taxonomy for the /api/v1 surface.
// Patterns are relative to /api/v1.
func DefaultAuditRoutes() []AuditRoute {
	return []AuditRoute{
		{"POST", "/auth/login", "LOGIN", "User"},
		{"POST", "/auth/logout", "LOGOUT", "User"},
		{"GET", "/auth/me", "SESSION_VIEW", "User"},
		{"GET", "/auth/captcha", "CAPTCHA_ISSUE", "Captcha"},
		{"GET", "/auth/login-history", "LOGIN_HISTORY_VIEW", "User"},
		{"POST", "/auth/2fa/setup", "TWO_FACTOR_SETUP", "User"},
		{"POST", "/auth/2fa/enable", "TWO_FACTOR_ENABLE", "User"},
		{"POST", "/auth/2fa/disable", "TWO_FACTOR_DISABLE", "User"},
		{"POST", "/auth/2fa/backup-codes", "BACKUP_CODES_REGENERATE", "User"},

		{"GET", "/users", "USER_LIST", "User"},
		{"POST", "/users", "USER_CREATE", "User"},
		{"GET", "/users/:id", "USER_VIEW", "User"},
		{"PATCH", "/users/:id/status", "USER_STATUS_UPDATE", "User"},

		{"GET", "/organizations", "ORGANIZATION_LIST", "Organization"},
		{"POST", "/organizations", "ORGANIZATION_CREATE", "Organization"},
		{"GET", "/organizations/:id", "ORGANIZATION_VIEW", "Organization"},
		{"PUT", "/organizations/:id", "ORGANIZATION_UPDATE", "Organization"},
		{"POST", "/organizations/:id/contract/extend", "CONTRACT_EXTEND", "Organization"},
		{"POST", "/organizations/:id/contract/reduce", "CONTRACT_REDUCE", "Organization"},
		{"POST", "/organizations/:id/contract/renew", "CONTRACT_RENEW", "Organization"},
		{"GET", "/organizations/:id/contract/history", "CONTRACT_HISTORY_VIEW", "Organization"},
		{"GET", "/organizations/:id/renewal-requests", "RENEWAL_REQUEST_LIST", "RenewalRequest"},
		{"POST", "/organizations/:id/renewal-requests/:requestId/approve", "RENEWAL_REQUEST_APPROVE", "RenewalRequest"},
		{"POST", "/organizations/:id/renewal-requests/:requestId/reject", "RENEWAL_REQUEST_REJECT", "RenewalRequest"},

		{"GET", "/organization", "ORGANIZATION_VIEW", "Organization"},
		{"GET", "/organization/contract", "CONTRACT_VIEW", "Organization"},
		{"GET", "/organization/renewal-requests", "RENEWAL_REQUEST_LIST", "RenewalRequest"},
		{"POST", "/organization/renewal-requests", "RENEWAL_REQUEST_CREATE", "RenewalRequest"},

		{"GET", "/patients", "PATIENT_LIST", "Patient"},
		{"POST", "/patients", "PATIENT_CREATE", "Patient"},
		{"GET", "/patients/:id", "PATIENT_VIEW", "Patient"},
		{"PUT", "/patients/:id", "PATIENT_UPDATE", "Patient"},
		{"DELETE", "/patients/:id", "PATIENT_DELETE", "Patient"},

		{"GET", "/doctors", "DOCTOR_LIST", "Doctor"},
		{"POST", "/doctors", "DOCTOR_CREATE", "Doctor"},
		{"GET", "/doctors/:id", "DOCTOR_VIEW", "Doctor"},
		{"PUT", "/doctors/:id", "DOCTOR_UPDATE", "Doctor"},
		{"DELETE", "/doctors/:id", "DOCTOR_DELETE", "Doctor"},

		{"GET", "/assessment-requests", "ASSESSMENT_REQUEST_LIST", "AssessmentRequest"},
		{"POST", "/assessment-requests", "ASSESSMENT_REQUEST_CREATE", "AssessmentRequest"},
		{"GET", "/assessment-requests/:id", "ASSESSMENT_REQUEST_VIEW", "AssessmentRequest"},
		{"PUT", "/assessment-requests/:id", "ASSESSMENT_REQUEST_UPDATE", "AssessmentRequest"},
		{"PATCH", "/assessment-requests/:id/status", "ASSESSMENT_REQUEST_STATUS_UPDATE", "AssessmentRequest"},
		{"DELETE", "/assessment-requests/:id", "ASSESSMENT_REQUEST_DELETE", "AssessmentRequest"},

		{"GET", "/audit-logs", "AUDIT_LIST", "AuditLog"},
		{"GET", "/audit-logs/stats", "AUDIT_STATS", "AuditLog"},
		{"GET", "/audit-logs/:id", "AUDIT_VIEW", "AuditLog"},
	}
}
