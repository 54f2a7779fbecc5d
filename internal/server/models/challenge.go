package models

import "time"

type Challenge struct {
	ID        string
	Username  string
	Phrase    string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

// Valid reports whether c can still be consumed at now.
func (c *Challenge) Valid(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}
