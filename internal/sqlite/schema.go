package sqlite

// Schema DDL. Timestamps are Unix milliseconds.
const (
	createSchemaVersion = `CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);`

	createJobs = `CREATE TABLE jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_number TEXT NOT NULL,
    work_date TEXT NOT NULL,
    vehicle_model TEXT NOT NULL,
    technician_id INTEGER NOT NULL,
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);`

	createPhotos = `CREATE TABLE photos (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id INTEGER NOT NULL,
    category TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    uploaded_at INTEGER NOT NULL,
    url TEXT NOT NULL DEFAULT '',
    thumbnail_url TEXT NOT NULL DEFAULT '',
    public_id TEXT NOT NULL DEFAULT '',
    width INTEGER NOT NULL DEFAULT 0,
    height INTEGER NOT NULL DEFAULT 0,
    format TEXT NOT NULL DEFAULT '',
    image_data BLOB,
    thumbnail_data BLOB,
    file_name TEXT NOT NULL DEFAULT '',
    file_size INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE
);`

	createUsers = `CREATE TABLE users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);`

	createSettings = `CREATE TABLE settings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    key TEXT NOT NULL UNIQUE,
    value TEXT NOT NULL
);`

	createStagedPhotos = `CREATE TABLE temp_photos (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    category TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    image_data BLOB,
    thumbnail_data BLOB,
    file_name TEXT NOT NULL DEFAULT '',
    file_size INTEGER NOT NULL DEFAULT 0,
    content_type TEXT NOT NULL DEFAULT ''
);`

	addJobsLocation = `ALTER TABLE jobs ADD COLUMN location TEXT NOT NULL DEFAULT '';`
)

// Index DDL.
const (
	indexJobsNumber     = `CREATE UNIQUE INDEX idx_jobs_job_number ON jobs(job_number);`
	indexJobsTechnician = `CREATE INDEX idx_jobs_technician_id ON jobs(technician_id);`
	indexJobsCreated    = `CREATE INDEX idx_jobs_created_at ON jobs(created_at);`
	indexJobsWorkDate   = `CREATE INDEX idx_jobs_work_date ON jobs(work_date);`
	indexPhotosJob      = `CREATE INDEX idx_photos_job_id ON photos(job_id);`
	indexPhotosCategory = `CREATE INDEX idx_photos_category ON photos(category);`

	indexStagedSession = `CREATE INDEX idx_temp_photos_session_id ON temp_photos(session_id);`
	indexStagedCreated = `CREATE INDEX idx_temp_photos_created_at ON temp_photos(created_at);`

	indexJobsDateStatus     = `CREATE INDEX idx_jobs_work_date_status ON jobs(work_date, status);`
	indexPhotosJobSequence  = `CREATE INDEX idx_photos_job_id_sequence ON photos(job_id, sequence);`
	indexStagedSessionCateg = `CREATE INDEX idx_temp_photos_session_category ON temp_photos(session_id, category);`
)

// migration moves the schema from version-1 to version.
type migration struct {
	version    int
	statements []string
}

// migrations are applied in order. Existing entries are never edited; a
// schema change is a new entry.
var migrations = []migration{
	{
		version: 1,
		statements: []string{
			createJobs, createPhotos, createUsers, createSettings,
			indexJobsNumber, indexJobsTechnician, indexJobsCreated, indexJobsWorkDate,
			indexPhotosJob, indexPhotosCategory,
		},
	},
	{
		version: 2,
		statements: []string{
			createStagedPhotos, indexStagedSession, indexStagedCreated,
			addJobsLocation,
		},
	},
	{
		version: 3,
		statements: []string{
			indexJobsDateStatus, indexPhotosJobSequence, indexStagedSessionCateg,
		},
	},
}

// latestVersion is the schema version after all migrations.
func latestVersion() int {
	return migrations[len(migrations)-1].version
}
