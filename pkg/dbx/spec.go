package dbx

import (
	"context"
	"time"

	"github.com/marcodd23/go-dal-core/pkg/logx"
)

// DefaultCommandTimeout applies when neither the query nor the database specification sets one.
const DefaultCommandTimeout = 1200 * time.Second

// QuerySpecification describes one named query, read-only for the lifetime of a request.
type QuerySpecification struct {
	Name                 string   `json:"name" validate:"required"`
	Query                string   `json:"query" validate:"required"`
	ExecutionType        CallType `json:"executionType"`
	DatabaseName         string   `json:"databaseName" validate:"required"`
	MapUdtAsJson         bool     `json:"mapUdtAsJson"`
	MapUdtAsXml          bool     `json:"mapUdtAsXml"`
	UseCache             bool     `json:"useCache"`
	CacheDurationSeconds int      `json:"cacheDurationSeconds" validate:"gte=0"`
	// OutputFields lists integer-typed result fields: comma separated result sets,
	// colon separated field names inside each.
	OutputFields string `json:"outputFields"`
	// ColumnMapping is the bulk copy mapping, "src1:dst1,src2:dst2".
	ColumnMapping       string `json:"columnMapping"`
	Timeout             int    `json:"timeout" validate:"gte=0"`
	NotificationChannel string `json:"notificationChannel"`
}

// DatabaseSpecification describes one database, cached process-wide.
type DatabaseSpecification struct {
	Name              string                  `json:"name" validate:"required"`
	Provider          string                  `json:"provider" validate:"required"`
	ConnectionString  string                  `json:"connectionString" validate:"required"`
	IsEncrypted       bool                    `json:"isEncrypted"`
	EncryptionKey     string                  `json:"encryptionKey" validate:"required_if=IsEncrypted true"`
	ConnectionTimeOut int                     `json:"connectionTimeOut"`
	Impersonate       bool                    `json:"impersonate"`
	RunAsUser         *RunAsUserSpecification `json:"runAsUser" validate:"required_if=Impersonate true"`
}

// RunAsUserSpecification is the OS identity used when a database requires impersonation.
type RunAsUserSpecification struct {
	UserName      string `json:"userName" validate:"required"`
	Domain        string `json:"domain"`
	Password      string `json:"password"`
	IsEncrypted   bool   `json:"isEncrypted"`
	EncryptionKey string `json:"encryptionKey" validate:"required_if=IsEncrypted true"`
}

// MailerSpecification is resolved alongside database and query specifications. The mail client
// itself lives outside this module.
type MailerSpecification struct {
	Name          string `json:"name" validate:"required"`
	Host          string `json:"host" validate:"required"`
	Port          int    `json:"port" validate:"gt=0"`
	UserName      string `json:"userName"`
	Password      string `json:"password"`
	IsEncrypted   bool   `json:"isEncrypted"`
	EncryptionKey string `json:"encryptionKey" validate:"required_if=IsEncrypted true"`
	From          string `json:"from" validate:"omitempty,email"`
	EnableSSL     bool   `json:"enableSSL"`
}

// ResolveTimeout returns the command timeout: override when > 0, else the database
// specification's ConnectionTimeOut when > 0, else DefaultCommandTimeout.
func ResolveTimeout(spec *DatabaseSpecification, overrideSeconds int) time.Duration {
	if overrideSeconds > 0 {
		return time.Duration(overrideSeconds) * time.Second
	}

	if spec != nil && spec.ConnectionTimeOut > 0 {
		return time.Duration(spec.ConnectionTimeOut) * time.Second
	}

	return DefaultCommandTimeout
}

//###################################
//#          Collaborators          #
//###################################

// SpecificationResolver looks specifications up by name. Absent names return nil.
type SpecificationResolver interface {
	GetDatabaseSpecification(name string) *DatabaseSpecification
	GetQuerySpecification(name string) *QuerySpecification
	GetMailerSpecification(name string) *MailerSpecification
}

// CredentialCrypto encrypts and decrypts connection strings and passwords at rest.
type CredentialCrypto interface {
	Encrypt(plainText string, key string) (string, error)
	Decrypt(cipherText string, key string) (string, error)
}

// ImpersonationExecutor runs fn under another OS identity for the duration of the call.
type ImpersonationExecutor interface {
	Execute(ctx context.Context, user RunAsUserSpecification, fn func(ctx context.Context) error) error
}

// Dependencies carries the collaborators every component needs. Nil fields fall back to:
// no-op logger, the package pooled connector, no decryption (encrypted specs fail), no
// impersonation (specs requiring it fail).
type Dependencies struct {
	Resolver     SpecificationResolver
	Crypto       CredentialCrypto
	Impersonator ImpersonationExecutor
	Logger       logx.Logger
	Connector    Connector
	Providers    *ProviderRegistry
}

func (d Dependencies) logger() logx.Logger {
	return logx.OrNop(d.Logger)
}

func (d Dependencies) connector() Connector {
	if d.Connector == nil {
		return defaultConnector()
	}

	return d.Connector
}
