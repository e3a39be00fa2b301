package store

const Schema = `
CREATE TABLE IF NOT EXISTS download_tasks (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	playlist_ref TEXT NOT NULL DEFAULT '',
	total_tracks INTEGER NOT NULL DEFAULT 0,
	tracks_downloaded INTEGER NOT NULL DEFAULT 0,
	bundle_url TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_download_tasks_status_updated ON download_tasks(status, updated_at);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	started_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, started_at);

CREATE TABLE IF NOT EXISTS tracks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL REFERENCES download_tasks(id) ON DELETE CASCADE,
	track_number INTEGER NOT NULL,
	source_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	artist TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	cover_url TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	artifact_url TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(task_id, track_number)
);

CREATE INDEX IF NOT EXISTS idx_tracks_status_updated ON tracks(status, updated_at);

CREATE TABLE IF NOT EXISTS cache (
	key TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	expires_at DATETIME
);
`
