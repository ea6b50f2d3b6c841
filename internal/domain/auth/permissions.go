package auth

const (
	RoleEmployee    = "employee"
	RoleEvaluator   = "evaluator"
	RoleHR          = "hr"
	RoleSystemAdmin = "system_admin"
)

const (
	PermEvaluationRead    = "evaluation.read"
	PermEvaluationSubmit  = "evaluation.submit"
	PermEvaluationApprove = "evaluation.approve"
	PermEvaluationRespond = "evaluation.respond"
	PermEvaluationReport  = "evaluation.report"
	PermAuditRead         = "audit.read"
	PermSystemAdmin       = "admin.system"
)

var DefaultPermissions = []string{
	PermEvaluationRead,
	PermEvaluationSubmit,
	PermEvaluationApprove,
	PermEvaluationRespond,
	PermEvaluationReport,
	PermAuditRead,
	PermSystemAdmin,
}

var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermEvaluationRead,
		PermEvaluationSubmit,
		PermEvaluationRespond,
	},
	RoleEvaluator: {
		PermEvaluationRead,
		PermEvaluationSubmit,
		PermEvaluationRespond,
		PermEvaluationApprove,
	},
	RoleHR: {
		PermEvaluationRead,
		PermEvaluationSubmit,
		PermEvaluationRespond,
		PermEvaluationApprove,
		PermEvaluationReport,
		PermAuditRead,
	},
	RoleSystemAdmin: {
		PermSystemAdmin,
		PermEvaluationRead,
		PermEvaluationReport,
		PermAuditRead,
	},
}
