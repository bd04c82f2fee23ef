package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// dialect captures the differences between the supported SQL backends
type dialect struct {
	name       string
	driver     string
	columns    *strings.Replacer
	random     string
	returning  bool
	numbered   bool
	extraStmts []string
}

var (
	sqliteDialect = dialect{
		name:   "sqlite",
		driver: "sqlite3",
		columns: strings.NewReplacer(
			"{{id}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{key}}", "TEXT",
			"{{ts}}", "TIMESTAMP",
		),
		random:     "RANDOM()",
		extraStmts: []string{"PRAGMA foreign_keys = ON"},
	}

	mysqlDialect = dialect{
		name:   "mysql",
		driver: "mysql",
		columns: strings.NewReplacer(
			"{{id}}", "BIGINT AUTO_INCREMENT PRIMARY KEY",
			"{{key}}", "VARCHAR(255)",
			"{{ts}}", "DATETIME(6)",
		),
		random: "RAND()",
	}

	postgresDialect = dialect{
		name:   "postgres",
		driver: "pgx",
		columns: strings.NewReplacer(
			"{{id}}", "BIGSERIAL PRIMARY KEY",
			"{{key}}", "TEXT",
			"{{ts}}", "TIMESTAMPTZ",
		),
		random:    "RANDOM()",
		returning: true,
		numbered:  true,
	}
)

// rebind rewrites ? placeholders into $n for numbered dialects
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// mysqlDSN makes sure timestamps are scanned into time.Time
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("failed to parse MySQL DSN: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}
