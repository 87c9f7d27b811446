package secrets

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ResolveMySQLDSN reads a database secret and returns a driver DSN. The secret
// either carries a ready "dsn" field or the RDS layout
// (username, password, host, port, dbname).
func ResolveMySQLDSN(ctx context.Context, p Provider, secretID string) (string, error) {
	fields, err := p.GetSecret(ctx, secretID)
	if err != nil {
		return "", err
	}

	if dsn, ok := fields["dsn"].(string); ok && dsn != "" {
		return dsn, nil
	}

	user, _ := fields["username"].(string)
	host, _ := fields["host"].(string)
	if user == "" || host == "" {
		return "", fmt.Errorf("secret [%s] has neither dsn nor username/host", secretID)
	}
	password, _ := fields["password"].(string)
	dbName, _ := fields["dbname"].(string)

	port := "3306"
	switch v := fields["port"].(type) {
	case float64:
		port = strconv.Itoa(int(v))
	case string:
		if v != "" {
			port = v
		}
	}

	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, port)
	cfg.DBName = dbName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}
