// Package notifications delivers run lifecycle events via ntfy.
//
// The ntfy implementation posts plain-text messages to the configured topic
// URL and gracefully degrades to a no-op when no topic is set. Each event
// type can be switched off in config.toml so operators only hear about the
// milestones they care about.
package notifications
