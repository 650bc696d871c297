// Package specx loads database, query and mailer specifications from a YAML or JSON file
// and serves them to the data access layer as a dbx.SpecificationResolver.
//
// The file has three top-level maps keyed by specification name:
//
//	databases:
//	  main:
//	    provider: sqlserver
//	    connectionString: "sqlserver://..."
//	queries:
//	  activeOrders:
//	    query: "dbo.GetActiveOrders"
//	    executionType: StoredProcedure
//	    databaseName: main
//	mailers: {}
//
// Every key can be overridden from the environment with the DAL_ prefix, for example
// DAL_DATABASES_MAIN_CONNECTIONSTRING. Names are case-insensitive.
package specx

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/marcodd23/go-dal-core/pkg/configx"
	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/errorx"
	"github.com/marcodd23/go-dal-core/pkg/logx"
	"github.com/marcodd23/go-dal-core/pkg/validator"
)

// EnvPrefix prefixes the environment variables that override registry keys.
const EnvPrefix = "DAL"

// Registry is a dbx.SpecificationResolver backed by a specification file.
// It is safe for concurrent use; Reload swaps the whole content at once.
type Registry struct {
	logger logx.Logger

	mu        sync.RWMutex
	path      string
	databases map[string]*dbx.DatabaseSpecification
	queries   map[string]*dbx.QuerySpecification
	mailers   map[string]*dbx.MailerSpecification
}

var _ dbx.SpecificationResolver = (*Registry)(nil)

// rawQuery mirrors dbx.QuerySpecification with the execution type kept as text, so an
// unknown value is reported with the query name.
type rawQuery struct {
	Name                 string `mapstructure:"name"`
	Query                string `mapstructure:"query"`
	ExecutionType        string `mapstructure:"executionType"`
	DatabaseName         string `mapstructure:"databaseName"`
	MapUdtAsJson         bool   `mapstructure:"mapUdtAsJson"`
	MapUdtAsXml          bool   `mapstructure:"mapUdtAsXml"`
	UseCache             bool   `mapstructure:"useCache"`
	CacheDurationSeconds int    `mapstructure:"cacheDurationSeconds"`
	OutputFields         string `mapstructure:"outputFields"`
	ColumnMapping        string `mapstructure:"columnMapping"`
	Timeout              int    `mapstructure:"timeout"`
	NotificationChannel  string `mapstructure:"notificationChannel"`
}

type content struct {
	databases map[string]*dbx.DatabaseSpecification
	queries   map[string]*dbx.QuerySpecification
	mailers   map[string]*dbx.MailerSpecification
}

// NewRegistry returns an empty registry. Every lookup returns nil until Load succeeds.
func NewRegistry(logger logx.Logger) *Registry {
	return &Registry{
		logger:    logx.OrNop(logger),
		databases: map[string]*dbx.DatabaseSpecification{},
		queries:   map[string]*dbx.QuerySpecification{},
		mailers:   map[string]*dbx.MailerSpecification{},
	}
}

// Load reads and validates path and returns the resulting registry.
func Load(path string, logger logx.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	if err := r.Load(path); err != nil {
		return nil, err
	}

	return r, nil
}

// Load replaces the registry content with the specifications in path. On error the
// previous content is kept.
func (r *Registry) Load(path string) error {
	c, err := readContent(path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.path = path
	r.databases, r.queries, r.mailers = c.databases, c.queries, c.mailers
	r.mu.Unlock()

	r.logger.LogInfo(context.Background(), fmt.Sprintf("Loaded specifications from %s: %d databases, %d queries, %d mailers",
		path, len(c.databases), len(c.queries), len(c.mailers)))

	return nil
}

// Reload reads the last loaded file again.
func (r *Registry) Reload() error {
	r.mu.RLock()
	path := r.path
	r.mu.RUnlock()

	if path == "" {
		return errorx.NewConfigurationError("specification registry was never loaded")
	}

	return r.Load(path)
}

func (r *Registry) GetDatabaseSpecification(name string) *dbx.DatabaseSpecification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.databases[key(name)]
}

func (r *Registry) GetQuerySpecification(name string) *dbx.QuerySpecification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.queries[key(name)]
}

func (r *Registry) GetMailerSpecification(name string) *dbx.MailerSpecification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.mailers[key(name)]
}

// QueryNames returns the registered query names, sorted.
func (r *Registry) QueryNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.queries))
	for _, q := range r.queries {
		names = append(names, q.Name)
	}

	sort.Strings(names)

	return names
}

// DatabaseNames returns the registered database names, sorted.
func (r *Registry) DatabaseNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.databases))
	for _, d := range r.databases {
		names = append(names, d.Name)
	}

	sort.Strings(names)

	return names
}

//###################################
//#             Loading             #
//###################################

func readContent(path string) (*content, error) {
	v := configx.NewViper(path, EnvPrefix)
	if err := v.ReadInConfig(); err != nil {
		return nil, errorx.NewConfigurationErrorWrapper(err, "error reading specification file '%s'", path)
	}

	// AllSettings applies the environment overrides leaf by leaf, UnmarshalKey on a map does not.
	resolved := viper.New()
	if err := resolved.MergeConfigMap(v.AllSettings()); err != nil {
		return nil, errorx.NewConfigurationErrorWrapper(err, "error resolving specification file '%s'", path)
	}

	c := &content{
		databases: map[string]*dbx.DatabaseSpecification{},
		queries:   map[string]*dbx.QuerySpecification{},
		mailers:   map[string]*dbx.MailerSpecification{},
	}

	if err := readDatabases(resolved, c); err != nil {
		return nil, err
	}

	if err := readQueries(resolved, c); err != nil {
		return nil, err
	}

	if err := readMailers(resolved, c); err != nil {
		return nil, err
	}

	return c, nil
}

func readDatabases(v *viper.Viper, c *content) error {
	var raw map[string]*dbx.DatabaseSpecification
	if err := v.UnmarshalKey("databases", &raw); err != nil {
		return errorx.NewConfigurationErrorWrapper(err, "error decoding databases")
	}

	for name, spec := range raw {
		if spec == nil {
			spec = &dbx.DatabaseSpecification{}
		}

		if spec.Name == "" {
			spec.Name = name
		}

		if err := validate(spec, "database", spec.Name); err != nil {
			return err
		}

		c.databases[key(spec.Name)] = spec
	}

	return nil
}

func readQueries(v *viper.Viper, c *content) error {
	var raw map[string]*rawQuery
	if err := v.UnmarshalKey("queries", &raw); err != nil {
		return errorx.NewConfigurationErrorWrapper(err, "error decoding queries")
	}

	for name, rq := range raw {
		if rq == nil {
			rq = &rawQuery{}
		}

		if rq.Name == "" {
			rq.Name = name
		}

		callType, err := dbx.ParseCallType(rq.ExecutionType)
		if err != nil {
			return errorx.NewConfigurationErrorWrapper(err, "query '%s'", rq.Name)
		}

		spec := &dbx.QuerySpecification{
			Name:                 rq.Name,
			Query:                rq.Query,
			ExecutionType:        callType,
			DatabaseName:         rq.DatabaseName,
			MapUdtAsJson:         rq.MapUdtAsJson,
			MapUdtAsXml:          rq.MapUdtAsXml,
			UseCache:             rq.UseCache,
			CacheDurationSeconds: rq.CacheDurationSeconds,
			OutputFields:         rq.OutputFields,
			ColumnMapping:        rq.ColumnMapping,
			Timeout:              rq.Timeout,
			NotificationChannel:  rq.NotificationChannel,
		}

		if err := validate(spec, "query", spec.Name); err != nil {
			return err
		}

		if _, ok := c.databases[key(spec.DatabaseName)]; !ok {
			return errorx.NewConfigurationError("query '%s' references unknown database '%s'", spec.Name, spec.DatabaseName)
		}

		c.queries[key(spec.Name)] = spec
	}

	return nil
}

func readMailers(v *viper.Viper, c *content) error {
	var raw map[string]*dbx.MailerSpecification
	if err := v.UnmarshalKey("mailers", &raw); err != nil {
		return errorx.NewConfigurationErrorWrapper(err, "error decoding mailers")
	}

	for name, spec := range raw {
		if spec == nil {
			spec = &dbx.MailerSpecification{}
		}

		if spec.Name == "" {
			spec.Name = name
		}

		if err := validate(spec, "mailer", spec.Name); err != nil {
			return err
		}

		c.mailers[key(spec.Name)] = spec
	}

	return nil
}

func validate(spec any, kind string, name string) error {
	if err := validator.NewValidator().Validate(spec); err != nil {
		return errorx.NewConfigurationErrorWrapper(err, "invalid %s specification '%s'", kind, name)
	}

	return nil
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
