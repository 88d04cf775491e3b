package storage

var countQueries = map[string]string{
	"urls":            "SELECT COUNT(*) FROM urls",
	"url_daily_stats": "SELECT COUNT(*) FROM url_daily_stats",
	"click_events":    "SELECT COUNT(*) FROM click_events",
	"unprocessed":     "SELECT COUNT(*) FROM click_events WHERE processed = false",
}
