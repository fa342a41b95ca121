// Package main hosts the apply4me pipeline entrypoint for container builds.
//
// Architecture overview:
//   - Scheduler: internal/scheduler keeps a registry of cron tasks (institution and bursary discovery, deadline
//     reminders, the weekly digest and the maintenance sweep). A robfig/cron clock enqueues due tasks onto a bounded
//     queue served by a fixed worker pool; a task never runs twice at once and every run is recorded.
//   - Discovery: internal/scraper fetches each active source through the colly fetcher, promoting to Chromedp when
//     the heuristic detector sees a script shell. Per-host token buckets and exponential retry keep sources polite.
//     Strategies turn goquery documents into institution or bursary candidates.
//   - Deadlines & sync: internal/deadline parses closing dates and drops expired candidates; internal/synchronizer
//     fuzzy-matches against the catalog through internal/dedup and creates or updates entities.
//   - Fanout: internal/notify renders subscriber emails (SendGrid, log or memory transport) and records sends in a
//     ledger; run summaries are published to Pub/Sub when a project and topic are configured.
//   - Persistence: entities, runs and the ledger live in Postgres (pgx), SQLite or memory. Raw pages can be archived
//     to GCS or local disk.
//   - Ops API: internal/api serves /healthz, /readyz, /metrics, task listing, manual triggers and run history.
//
// Quick checklist:
//   - Configure env vars with the APPLY4ME_ prefix (APPLY4ME_STORAGE_BACKEND, APPLY4ME_DB_DSN,
//     APPLY4ME_NOTIFY_SENDGRID_API_KEY, ...) or a config file; a .env file is read first when present.
//   - Run the service: go run ./cmd/apply4me serve --config config.yaml
//   - Run one task: go run ./cmd/apply4me run institution-discovery
package main
