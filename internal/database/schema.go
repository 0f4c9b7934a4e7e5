package database

import "database/sql"

// Schema version for migrations
const currentSchemaVersion = 4

var migrations = []migration{
	{
		version: 1,
		up: []string{
			`CREATE TABLE schema_version (
				version INTEGER PRIMARY KEY,
				applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,

			// One preview/execute/rollback run
			`CREATE TABLE rename_batches (
				id TEXT PRIMARY KEY,
				target_path TEXT NOT NULL,
				options TEXT NOT NULL DEFAULT '{}',
				status TEXT NOT NULL DEFAULT 'pending',
				total_items INTEGER NOT NULL DEFAULT 0,
				success_items INTEGER NOT NULL DEFAULT 0,
				failed_items INTEGER NOT NULL DEFAULT 0,
				skipped_items INTEGER NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_rename_batches_status ON rename_batches(status)`,

			`CREATE TABLE rename_items (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				batch_id TEXT NOT NULL REFERENCES rename_batches(id) ON DELETE CASCADE,
				original_path TEXT NOT NULL,
				original_name TEXT NOT NULL,
				new_path TEXT NOT NULL DEFAULT '',
				new_name TEXT NOT NULL DEFAULT '',
				parsed TEXT,
				catalog_match TEXT,
				overall_confidence REAL NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT 'pending',
				needs_confirmation BOOLEAN NOT NULL DEFAULT 0,
				confirmation_reason TEXT NOT NULL DEFAULT '',
				related_files TEXT NOT NULL DEFAULT '[]',
				effective_action TEXT NOT NULL DEFAULT '',
				error_code TEXT NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				exec_order INTEGER NOT NULL DEFAULT 0,
				executed_at DATETIME,
				rolled_back_at DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE(batch_id, original_path)
			)`,
			`CREATE INDEX idx_rename_items_batch_status ON rename_items(batch_id, status)`,

			`CREATE TABLE operations_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				operation_type TEXT NOT NULL,
				batch_id TEXT NOT NULL DEFAULT '',
				item_id INTEGER NOT NULL DEFAULT 0,
				source_path TEXT NOT NULL,
				target_path TEXT NOT NULL DEFAULT '',
				reason TEXT NOT NULL DEFAULT '',
				bytes INTEGER NOT NULL DEFAULT 0,
				executed_by TEXT NOT NULL,
				executed_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_operations_log_batch ON operations_log(batch_id)`,

			`INSERT INTO schema_version (version) VALUES (1)`,
		},
	},
	{
		version: 2,
		up: []string{
			`CREATE TABLE scrape_jobs (
				id TEXT PRIMARY KEY,
				target_path TEXT NOT NULL,
				options TEXT NOT NULL DEFAULT '{}',
				status TEXT NOT NULL DEFAULT 'pending',
				total_items INTEGER NOT NULL DEFAULT 0,
				success_items INTEGER NOT NULL DEFAULT 0,
				failed_items INTEGER NOT NULL DEFAULT 0,
				skipped_items INTEGER NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				started_at DATETIME,
				finished_at DATETIME
			)`,
			`CREATE INDEX idx_scrape_jobs_status ON scrape_jobs(status)`,

			`CREATE TABLE scrape_items (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				job_id TEXT NOT NULL REFERENCES scrape_jobs(id) ON DELETE CASCADE,
				original_path TEXT NOT NULL,
				original_name TEXT NOT NULL,
				new_path TEXT NOT NULL DEFAULT '',
				new_name TEXT NOT NULL DEFAULT '',
				parsed TEXT,
				catalog_match TEXT,
				overall_confidence REAL NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT 'pending',
				needs_confirmation BOOLEAN NOT NULL DEFAULT 0,
				confirmation_reason TEXT NOT NULL DEFAULT '',
				related_files TEXT NOT NULL DEFAULT '[]',
				effective_action TEXT NOT NULL DEFAULT '',
				error_code TEXT NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				exec_order INTEGER NOT NULL DEFAULT 0,
				executed_at DATETIME,
				rolled_back_at DATETIME,
				nfo_path TEXT NOT NULL DEFAULT '',
				poster_path TEXT NOT NULL DEFAULT '',
				fanart_path TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE(job_id, original_path)
			)`,
			`CREATE INDEX idx_scrape_items_job_status ON scrape_items(job_id, status)`,

			// Projection of scrape_items that outlives job deletion
			`CREATE TABLE scrape_records (
				item_id INTEGER PRIMARY KEY,
				job_id TEXT NOT NULL,
				original_path TEXT NOT NULL,
				new_path TEXT NOT NULL DEFAULT '',
				title TEXT NOT NULL DEFAULT '',
				year INTEGER,
				season INTEGER,
				episode INTEGER,
				media_type TEXT NOT NULL DEFAULT '',
				external_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				nfo_path TEXT NOT NULL DEFAULT '',
				poster_path TEXT NOT NULL DEFAULT '',
				fanart_path TEXT NOT NULL DEFAULT '',
				error_code TEXT NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				updated_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_scrape_records_external ON scrape_records(external_id)`,

			`INSERT INTO schema_version (version) VALUES (2)`,
		},
	},
	{
		version: 3,
		up: []string{
			`CREATE TABLE category_strategy (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				enabled BOOLEAN NOT NULL DEFAULT 0,
				anime_keywords TEXT NOT NULL DEFAULT '[]',
				anime_folder TEXT NOT NULL DEFAULT '',
				movie_folder TEXT NOT NULL DEFAULT '',
				tv_folder TEXT NOT NULL DEFAULT '',
				updated_at DATETIME NOT NULL
			)`,
			`INSERT INTO schema_version (version) VALUES (3)`,
		},
	},
	{
		version: 4,
		up: []string{
			// Bumped by every execute that takes the batch over.
			`ALTER TABLE rename_batches ADD COLUMN claim INTEGER NOT NULL DEFAULT 0`,
			`INSERT INTO schema_version (version) VALUES (4)`,
		},
	},
}

type migration struct {
	version int
	up      []string
}

// applyMigrations applies any pending schema migrations
func applyMigrations(db *sql.DB) error {
	var currentVersion int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&currentVersion)
	if err != nil {
		// schema_version doesn't exist yet - this is a fresh database
		currentVersion = 0
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}

		for _, stmt := range m.up {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return err
			}
		}

		// Each migration inserts its own schema_version row.
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}
