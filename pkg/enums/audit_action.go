package enums

// AuditAction names a mutating operation recorded in the audit log.
type AuditAction string

const (
	AuditCatalogIngested      AuditAction = "catalog.ingested"
	AuditCatalogPurged        AuditAction = "catalog.purged"
	AuditRecordCreated        AuditAction = "record.created"
	AuditRecordUpdated        AuditAction = "record.updated"
	AuditRecordDeleted        AuditAction = "record.deleted"
	AuditRecordSubmitted      AuditAction = "record.submitted"
	AuditRecordBatchSubmitted AuditAction = "record.batch_submitted"
	AuditUserCreated          AuditAction = "user.created"
	AuditUserUpdated          AuditAction = "user.updated"
	AuditUserDeleted          AuditAction = "user.deleted"
	AuditPasswordChanged      AuditAction = "auth.password_changed"
	AuditLoginSucceeded       AuditAction = "auth.login_succeeded"
	AuditLoginFailed          AuditAction = "auth.login_failed"
)

func (a AuditAction) String() string {
	return string(a)
}

// AuditResource identifies the entity type an audit entry refers to.
type AuditResource string

const (
	AuditResourceCatalog AuditResource = "catalog"
	AuditResourceRecord  AuditResource = "count_record"
	AuditResourceUser    AuditResource = "user"
)

// AuditStatus captures whether the audited operation succeeded.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
)
