// Package migrations exposes the embedded cursor and throttle-state schema
// per SQL dialect and hands each dialect's files to a migration runner.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	botpoll "github.com/goliatone/go-botpoll"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	defaultSourceLabel = "go-botpoll"
	embeddedRoot       = "data/sql/migrations"
)

// dialectDirs maps each dialect to its directory under the migrations root.
// Postgres files live at the root itself.
var dialectDirs = []struct {
	dialect string
	dir     string
}{
	{DialectPostgres, "."},
	{DialectSQLite, "sqlite"},
}

type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives the migration files of one dialect, e.g. a
// go-persistence-bun client's RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.SourceLabel = label
		}
	}
}

// WithValidationTargets limits registration to the given dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if normalized := normalizeDialects(targets); len(normalized) > 0 {
			r.ValidationTargets = normalized
		}
	}
}

// WithFilesystems replaces the embedded sources. Entries without a dialect or
// filesystem are ignored.
func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		var kept []FilesystemSpec
		for _, spec := range filesystems {
			dialect := normalizeDialect(spec.Dialect)
			if dialect == "" || spec.FS == nil {
				continue
			}
			spec.Dialect = dialect
			kept = append(kept, spec)
		}
		if len(kept) > 0 {
			r.Filesystems = kept
		}
	}
}

// Filesystems resolves one filesystem per dialect from source, or from the
// embedded files when no source is given. The source may hold the files under
// data/sql/migrations or at its root. Every dialect must carry at least one
// up migration and each up file needs its down file.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	source := botpoll.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		source = sources[0]
	}
	root, rootPath, err := locateRoot(source)
	if err != nil {
		return nil, err
	}

	out := make([]FilesystemSpec, 0, len(dialectDirs))
	for _, entry := range dialectDirs {
		fsys := root
		if entry.dir != "." {
			if fsys, err = fs.Sub(root, entry.dir); err != nil {
				return nil, fmt.Errorf("migrations: resolve %s filesystem: %w", entry.dialect, err)
			}
		}
		spec := FilesystemSpec{
			Dialect: entry.dialect,
			Path:    cleanJoin(rootPath, entry.dir),
			FS:      fsys,
		}
		if err := checkPairs(spec); err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       defaultSourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	for _, spec := range reg.Filesystems {
		if !slices.Contains(reg.ValidationTargets, spec.Dialect) {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s from %s: %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

func locateRoot(source fs.FS) (fs.FS, string, error) {
	if info, err := fs.Stat(source, embeddedRoot); err == nil && info.IsDir() {
		sub, err := fs.Sub(source, embeddedRoot)
		if err != nil {
			return nil, "", fmt.Errorf("migrations: resolve %s: %w", embeddedRoot, err)
		}
		return sub, embeddedRoot, nil
	}
	if matches, _ := fs.Glob(source, "*.sql"); len(matches) > 0 {
		return source, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", embeddedRoot)
}

func checkPairs(spec FilesystemSpec) error {
	ups, err := fs.Glob(spec.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: list %s migrations in %s: %w", spec.Dialect, spec.Path, err)
	}
	if len(ups) == 0 {
		return fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", spec.Dialect, spec.Path)
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(spec.FS, down); err != nil {
			return fmt.Errorf("migrations: %s migration %s has no %s", spec.Dialect, up, down)
		}
	}
	return nil
}

func normalizeDialect(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func normalizeDialects(values []string) []string {
	var out []string
	for _, value := range values {
		dialect := normalizeDialect(value)
		if dialect != "" && !slices.Contains(out, dialect) {
			out = append(out, dialect)
		}
	}
	return out
}

func cleanJoin(base string, dir string) string {
	return path.Clean(path.Join(base, dir))
}
