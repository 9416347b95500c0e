package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Auction Tracker Configuration

[store]
# SQLite database holding users, collections and scheduled notifications
# path = "~/.config/auction-tracker/auctions.db"

[sweep]
# How often due notifications are swept
interval = "1m"
# Maximum records processed per sweep
batch_size = 50
# Records dispatched in parallel within one sweep
concurrency = 10
# Dispatch attempts per record (1 = no retry)
dispatch_attempts = 1

[poller]
# Decrement legacy "hours left" countdowns
enabled = true
interval = "1m"

[notifications]
# Link target used in auction-ended messages
results_base_url = "https://yourapp.com"

[notifications.outbox]
# Record every message in the mail table
enabled = true

[notifications.webhook]
enabled = false
url = ""

[notifications.email]
enabled = false
smtp_host = ""
smtp_port = 587
username = ""
# Prefer AUCTION_SMTP_PASSWORD in .env over storing it here
password = ""
from = ""

[notifications.terminal]
# Print each message to the console while serving
enabled = false
bell = true

[notifications.breaker]
# Skip the webhook or email channel after this many consecutive failures
# (0 = never skip)
failure_threshold = 5
cooldown = "5m"

[logging]
level = "info"
console = true
file = true
max_size = 100
max_backups = 7
max_age = 30
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
