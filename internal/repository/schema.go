package repository

// Schema definitions for the Verdant database.
// Compatible with both SQLite and PostgreSQL. Nested values are stored as JSON text.

const schemaSuppliers = `
CREATE TABLE IF NOT EXISTS suppliers (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    industry TEXT NOT NULL,
    country TEXT NOT NULL,
    data TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_suppliers_industry ON suppliers(tenant_id, industry);
`

const schemaBands = `
CREATE TABLE IF NOT EXISTS reference_bands (
    tenant_id TEXT NOT NULL,
    version TEXT NOT NULL,
    data TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_reference_bands_created ON reference_bands(tenant_id, created_at);
`

const schemaSettings = `
CREATE TABLE IF NOT EXISTS scoring_settings (
    tenant_id TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaTraces = `
CREATE TABLE IF NOT EXISTS calculation_traces (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    supplier_id TEXT NOT NULL,
    run_id TEXT NOT NULL,
    final_score REAL NOT NULL,
    steps TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_traces_supplier ON calculation_traces(tenant_id, supplier_id, created_at);
CREATE INDEX IF NOT EXISTS idx_traces_run ON calculation_traces(tenant_id, run_id);
`

const schemaScenarioRuns = `
CREATE TABLE IF NOT EXISTS scenario_runs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    status TEXT NOT NULL,
    request TEXT NOT NULL,
    result TEXT,
    error TEXT,
    created_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_scenario_runs_tenant ON scenario_runs(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_scenario_runs_status ON scenario_runs(tenant_id, status);
`

const schemaScreens = `
CREATE TABLE IF NOT EXISTS screens (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_screens_enabled ON screens(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaSuppliers,
		schemaBands,
		schemaSettings,
		schemaTraces,
		schemaScenarioRuns,
		schemaScreens,
	}
}
