package params

import (
	"fmt"
	"os"
	"regexp"

	"github.com/bitswalk/releng/internal/errs"
)

// bootstrapVersionPattern matches a double-quoted bootstrap_version
// assignment line, capturing everything up to the value so the
// replacement can preserve indentation and trailing comments. The
// enclosing table is not checked: such a line in any table matches.
var bootstrapVersionPattern = regexp.MustCompile(`(?m)^(\s*bootstrap_version\s*=\s*)"([^"]*)"(.*)$`)

// SetBootstrapVersion rewrites the bootstrap_version line(s) of the
// deps-description document at path, preserving every other
// byte verbatim (whitespace, comments, key ordering, other fields). This
// is a narrow regex-based edit rather than a full TOML CST rewrite,
// deliberately: no embedded TOML CST editor exists in the available
// ecosystem, and a full parse-then-reserialize round trip is overkill
// for a rewrite that only ever touches one field.
func SetBootstrapVersion(path, version string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.ErrConfig.WithCause(err).WithMessagef("reading %s", path)
	}

	if !bootstrapVersionPattern.Match(data) {
		return errs.ErrConfig.WithMessagef("no bootstrap_version key found in %s", path)
	}

	replacement := []byte(fmt.Sprintf(`${1}"%s"$3`, version))
	updated := bootstrapVersionPattern.ReplaceAll(data, replacement)

	info, err := os.Stat(path)
	if err != nil {
		return errs.ErrConfig.WithCause(err).WithMessagef("stat %s", path)
	}
	if err := os.WriteFile(path, updated, info.Mode()); err != nil {
		return errs.ErrConfig.WithCause(err).WithMessagef("writing %s", path)
	}
	return nil
}
