package migrate

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/projectdash/dashboard-backend/pkg/migrate/migrations"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

// LedgerConstraints are the unique constraints reconciliation relies on for
// exactly-once effects. The migrations must create every one of them.
var LedgerConstraints = []string{
	"accounts_user_id_key",
	"accounts_customer_id_key",
	"processed_events_provider_event_id_key",
	"credit_grants_event_id_key",
}

type migrationFile struct {
	name    string
	version int64
	slug    string
	up      string
	down    string
}

// ValidateDir checks the migrations on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	_, err := scan(os.DirFS(dir))
	return err
}

// ValidateEmbedded checks the migrations compiled into the binary, including
// the ledger constraints.
func ValidateEmbedded() error {
	return CheckLedgerConstraints(migrations.FS)
}

// CheckLedgerConstraints validates fsys and requires every LedgerConstraints
// entry to be created by an Up section and never dropped afterwards.
func CheckLedgerConstraints(fsys fs.FS) error {
	files, err := scan(fsys)
	if err != nil {
		return err
	}
	for _, name := range LedgerConstraints {
		created := false
		for _, f := range files {
			up := strings.ToLower(f.up)
			drops := strings.Count(up, "drop constraint "+name) + strings.Count(up, "drop constraint if exists "+name)
			adds := strings.Count(up, "constraint "+name) - strings.Count(up, "drop constraint "+name)
			switch {
			case adds > 0:
				created = true
			case drops > 0:
				created = false
			}
		}
		if !created {
			return fmt.Errorf("ledger constraint %s is not created by any migration", name)
		}
	}
	return nil
}

// scan parses every migration in fsys, sorted by version. Filenames must be
// YYYYMMDDHHMMSS_name.sql with unique versions and unique names, and each file
// needs an Up section followed by a Down section with balanced statement blocks.
func scan(fsys fs.FS) ([]migrationFile, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var files []migrationFile
	versions := map[int64]string{}
	slugs := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		name := e.Name()
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		version, _ := strconv.ParseInt(m[1], 10, 64)
		if prev, ok := versions[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %d in %q and %q", version, prev, name)
		}
		if prev, ok := slugs[m[2]]; ok {
			return nil, fmt.Errorf("duplicate migration name %q in %q and %q", m[2], prev, name)
		}
		versions[version] = name
		slugs[m[2]] = name

		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", name, err)
		}
		up, down, err := splitSections(string(data))
		if err != nil {
			return nil, fmt.Errorf("migration %q: %w", name, err)
		}
		files = append(files, migrationFile{name: name, version: version, slug: m[2], up: up, down: down})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

func splitSections(sql string) (up, down string, err error) {
	const (
		none = iota
		inUp
		inDown
	)
	var (
		section        = none
		open           bool
		upSeen, dnSeen bool
		upBuf, dnBuf   strings.Builder
	)
	sc := bufio.NewScanner(strings.NewReader(sql))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "-- +goose Up":
			if upSeen || dnSeen {
				return "", "", fmt.Errorf("\"-- +goose Up\" must appear once, before Down")
			}
			upSeen, section = true, inUp
			continue
		case "-- +goose Down":
			if !upSeen || dnSeen {
				return "", "", fmt.Errorf("\"-- +goose Down\" must appear once, after Up")
			}
			if open {
				return "", "", fmt.Errorf("Up section has an unterminated StatementBegin")
			}
			dnSeen, section = true, inDown
			continue
		case "-- +goose StatementBegin":
			if open {
				return "", "", fmt.Errorf("nested StatementBegin")
			}
			open = true
			continue
		case "-- +goose StatementEnd":
			if !open {
				return "", "", fmt.Errorf("StatementEnd without StatementBegin")
			}
			open = false
			continue
		}
		switch section {
		case inUp:
			upBuf.WriteString(line + "\n")
		case inDown:
			dnBuf.WriteString(line + "\n")
		}
	}
	if err := sc.Err(); err != nil {
		return "", "", err
	}
	switch {
	case !upSeen:
		return "", "", fmt.Errorf("missing \"-- +goose Up\"")
	case !dnSeen:
		return "", "", fmt.Errorf("missing \"-- +goose Down\"")
	case open:
		return "", "", fmt.Errorf("Down section has an unterminated StatementBegin")
	}
	return upBuf.String(), dnBuf.String(), nil
}
