package store

const schema = `
CREATE TABLE IF NOT EXISTS scans (
    id TEXT PRIMARY KEY,
    device_serial TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL,
    package_count INTEGER,
    op_count INTEGER,
    grant_count INTEGER
);

CREATE TABLE IF NOT EXISTS packages (
    name TEXT PRIMARY KEY,
    uid INTEGER NOT NULL,
    source_dir TEXT,
    present BOOLEAN,
    label TEXT
);

CREATE TABLE IF NOT EXISTS permissions (
    package TEXT NOT NULL,
    name TEXT NOT NULL,
    position INTEGER NOT NULL,
    granted BOOLEAN,
    PRIMARY KEY (package, name),
    FOREIGN KEY (package) REFERENCES packages(name) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS op_records (
    package TEXT NOT NULL,
    op INTEGER NOT NULL,
    position INTEGER NOT NULL,
    mode INTEGER NOT NULL,
    last_time TIMESTAMP,
    duration_ms INTEGER,
    running BOOLEAN,
    PRIMARY KEY (package, op),
    FOREIGN KEY (package) REFERENCES packages(name) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS overrides (
    package TEXT NOT NULL,
    switch_op INTEGER NOT NULL,
    mode INTEGER NOT NULL,
    set_at TIMESTAMP NOT NULL,
    PRIMARY KEY (package, switch_op)
);

CREATE TABLE IF NOT EXISTS snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TIMESTAMP NOT NULL,
    reason TEXT,
    package_count INTEGER,
    op_count INTEGER,
    snapshot_path TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_op_records_op ON op_records(op);
CREATE INDEX IF NOT EXISTS idx_permissions_name ON permissions(name);
CREATE INDEX IF NOT EXISTS idx_scans_finished ON scans(finished_at);
`
