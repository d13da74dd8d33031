package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Trade Alert Configuration
# Every key may be overridden from the environment, e.g.
#   TRADE_ALERT_PRICE_FETCHER__MAX_RETRIES=5

[database]
# SQLite file; defaults to trade_alert.db next to this file
path = ""

[logging]
level = "info"
console = true
file = false
file_path = ""
max_size = 100
max_backups = 7
max_age = 30

[price_fetcher]
update_interval_secs = 60
cache_ttl_secs = 30
max_retries = 3
max_concurrent_requests = 5
max_requests_per_hour = 1000
request_timeout_secs = 10
pool_idle_timeout_secs = 90
# Wait before re-checking an exhausted hourly budget
rate_limit_backoff_secs = 60
# Unit of the exponential retry backoff (base * 2^attempt)
retry_base_delay_ms = 1000
upstream_requests_per_second = 5.0

[sources]
yahoo_url = "https://query1.finance.yahoo.com/v8/finance/chart"
sina_url = "https://hq.sinajs.cn/list="
tencent_url = "https://qt.gtimg.cn/q="

[alerts]
# 0 = unlimited
max_per_user = 0
default_user = "local"

[notifications]
enabled = false

[notifications.email]
enabled = false
smtp_host = "smtp.gmail.com"
smtp_port = 587
username = ""
password = ""
from = ""
from_name = "TradeAlert"
# Default recipient; an alert's notification_email takes precedence
to = ""

[notifications.webhook]
enabled = false
url = ""

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = ""

[notifications.kafka]
enabled = false
brokers = ["localhost:9092"]
topic = "trade_alert_triggers"

[metrics]
enabled = false
addr = ":9464"
`

// createTemplateConfig writes a commented config file holding the defaults.
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
