package probe

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
)

// Querier runs the probe's introspection queries. *postgres.Session
// satisfies it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Prober inspects the connected database and collects evidence about
// its capabilities. Failed checks log and move on; a probe never takes
// the server down with it.
type Prober struct {
	db Querier
}

// New creates a prober over a database connection.
func New(db Querier) *Prober {
	return &Prober{db: db}
}

// Run executes all probes and returns the gathered evidence.
func (p *Prober) Run(ctx context.Context) *EvidenceSet {
	es := NewEvidenceSet()
	es.AddAll(p.probeServer(ctx))
	es.AddAll(p.probeExtensions(ctx))
	es.AddAll(p.probePrivileges(ctx))
	es.AddAll(p.probeSchemas(ctx))
	return es
}

// Report runs the probes and synthesizes a mode recommendation.
func (p *Prober) Report(ctx context.Context) Result {
	es := p.Run(ctx)
	synthesis := FullSynthesis(es)

	return Result{
		Timestamp:  time.Now(),
		Mode:       synthesis.Mode,
		Confidence: synthesis.Confidence,
		Reasons:    synthesis.Reasons,
		Warnings:   synthesis.Warnings,
		Evidence:   es.All(),
	}
}

// Result is the full probe output served by the API.
type Result struct {
	Timestamp  time.Time  `json:"timestamp"`
	Mode       Mode       `json:"mode"`
	Confidence float64    `json:"confidence"`
	Reasons    []string   `json:"reasons"`
	Warnings   []string   `json:"warnings,omitempty"`
	Evidence   []Evidence `json:"evidence"`
}

func (p *Prober) probeServer(ctx context.Context) []Evidence {
	var items []Evidence

	var version string
	if err := p.db.QueryRow(ctx, "select current_setting('server_version')").Scan(&version); err != nil {
		log.Printf("Failed to probe server version: %v", err)
	} else {
		items = append(items, NewEvidence(CategoryServer, "version", version, 0.95,
			"pg_settings", "current_setting('server_version')"))
	}

	return items
}

func (p *Prober) probeExtensions(ctx context.Context) []Evidence {
	var items []Evidence

	var hasPostGIS bool
	if err := p.db.QueryRow(ctx, "select exists (select 1 from pg_extension where extname = 'postgis')").Scan(&hasPostGIS); err != nil {
		log.Printf("Failed to probe postgis extension: %v", err)
		return items
	}
	items = append(items, NewEvidence(CategoryExtension, "has_postgis", hasPostGIS, 0.95,
		"pg_catalog", "pg_extension row for postgis"))

	if !hasPostGIS {
		return items
	}

	// Calling into the extension corroborates the catalog row
	var gisVersion string
	if err := p.db.QueryRow(ctx, "select postgis_lib_version()").Scan(&gisVersion); err != nil {
		log.Printf("Failed to probe postgis version: %v", err)
		return items
	}
	items = append(items, NewEvidence(CategoryExtension, "has_postgis", true, 0.90,
		"postgis", "postgis_lib_version() callable"))
	items = append(items, NewEvidence(CategoryExtension, "postgis_version", gisVersion, 0.99,
		"postgis", "postgis_lib_version()"))

	return items
}

func (p *Prober) probePrivileges(ctx context.Context) []Evidence {
	var items []Evidence

	var readOnly string
	if err := p.db.QueryRow(ctx, "select current_setting('transaction_read_only')").Scan(&readOnly); err != nil {
		log.Printf("Failed to probe read-only setting: %v", err)
	} else {
		items = append(items, NewEvidence(CategoryPrivilege, "read_only", readOnly == "on", 0.90,
			"pg_settings", "current_setting('transaction_read_only')"))
	}

	var canCreate bool
	if err := p.db.QueryRow(ctx, "select has_database_privilege(current_user, current_database(), 'CREATE')").Scan(&canCreate); err != nil {
		log.Printf("Failed to probe create privilege: %v", err)
	} else {
		items = append(items, NewEvidence(CategoryPrivilege, "can_create", canCreate, 0.90,
			"pg_catalog", "has_database_privilege(current_database, CREATE)"))
	}

	var canCreateDB bool
	if err := p.db.QueryRow(ctx, "select rolcreatedb from pg_roles where rolname = current_user").Scan(&canCreateDB); err != nil {
		log.Printf("Failed to probe createdb role: %v", err)
	} else {
		items = append(items, NewEvidence(CategoryPrivilege, "can_create_db", canCreateDB, 0.90,
			"pg_catalog", "pg_roles.rolcreatedb"))
	}

	return items
}

func (p *Prober) probeSchemas(ctx context.Context) []Evidence {
	var items []Evidence

	var hasCounters bool
	if err := p.db.QueryRow(ctx, "select exists (select 1 from information_schema.schemata where schema_name = 'counters')").Scan(&hasCounters); err != nil {
		log.Printf("Failed to probe counters schema: %v", err)
	} else {
		items = append(items, NewEvidence(CategorySchema, "has_counters", hasCounters, 0.95,
			"information_schema", "schemata row for counters"))
	}

	return items
}
