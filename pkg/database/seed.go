package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
)

// SeedTestData fills an empty users directory with a small mixed audience.
func SeedTestData(db *sqlx.DB) error {
	var count int

	err := db.Get(&count, "SELECT COUNT(*) FROM users")
	if err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Database already has %d users, skipping seed", count)
		return nil
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	daysAgo := func(d int) *time.Time {
		t := now.AddDate(0, 0, -d)
		return &t
	}

	testUsers := []struct {
		contactID   string
		displayName string
		premium     bool
		lastActive  *time.Time
		sign        string
	}{
		{"100000001", "Ayla", true, daysAgo(0), "leo"},
		{"100000002", "Deniz", false, daysAgo(2), "aries"},
		{"100000003", "Mert", false, daysAgo(45), "pisces"},
		{"100000004", "Selin", true, daysAgo(10), "virgo"},
		{"100000005", "Can", false, nil, "leo"},
		{"100000006", "Ece", false, daysAgo(90), "scorpio"},
		{"100000007", "Baran", true, daysAgo(1), "capricorn"},
		{"100000008", "Zeynep", false, daysAgo(31), "gemini"},
		{"100000009", "Emre", false, daysAgo(5), "libra"},
		{"", "Unreachable", true, daysAgo(3), "leo"},
	}

	query := db.Rebind(`INSERT INTO users (contact_id, display_name, is_premium, last_active_at, zodiac_sign)
		VALUES (?, ?, ?, ?, ?)`)

	for _, u := range testUsers {
		if _, err := db.Exec(query, u.contactID, u.displayName, u.premium, u.lastActive, u.sign); err != nil {
			return fmt.Errorf("failed to seed test data: %w", err)
		}
	}

	logger.Infof("Seeded %d directory users", len(testUsers))
	return nil
}
