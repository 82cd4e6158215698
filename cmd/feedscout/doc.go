// Command feedscout discovers, registers and resolves Podcasting 2.0 music feeds.
//
// Subcommands:
//   - serve: run the HTTP API (discovery, resolution, feed CRUD, publishers, /metrics).
//   - discover <url>: crawl the podroll graph of a seed feed and optionally register new feeds.
//   - feeds list|add|remove: inspect and edit the registry directly.
//   - resolve <externalId>: map an id, title or slug to a registered feed.
//
// Configuration is read from --config (YAML, TOML or JSON) and FEEDSCOUT_* environment
// variables, e.g. FEEDSCOUT_STORE_BACKEND=sqlite FEEDSCOUT_STORE_SQLITE_PATH=/data/feeds.db.
package main
