package connection

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Secret tag keys that carry connection coordinates.
const (
	TagResourceARN = "resource-arn"
	TagDatabase    = "database"
)

// Credentials are the resolved coordinates and secrets for one database.
type Credentials struct {
	// SecretID identifies the secret, used directly by the Data API.
	SecretID string

	// ResourceID is the cluster ARN for the Data API.
	ResourceID string

	Database string
	Username string
	Password string
	Host     string
	Port     int
}

// String omits the password.
func (c Credentials) String() string {
	return fmt.Sprintf("secret=%s resource=%s database=%s user=%s host=%s:%d",
		c.SecretID, c.ResourceID, c.Database, c.Username, c.Host, c.Port)
}

// secretPayload is the JSON document stored in a database secret.
type secretPayload struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Host     string   `json:"host"`
	Port     flexPort `json:"port"`
	DBName   string   `json:"dbname"`
}

// flexPort accepts a port written as a JSON number or string.
type flexPort int

func (p *flexPort) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*p = flexPort(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("port: %w", err)
	}
	if s == "" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("port %q: %w", s, err)
	}
	*p = flexPort(n)
	return nil
}
