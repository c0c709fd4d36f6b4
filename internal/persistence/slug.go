package persistence

import (
	"fmt"
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

var foldCase = cases.Fold()

// NormalizeSlug canonicalizes a moderator-supplied game slug (spec
// section 6: "data/games/<slug>/ec4x.db, where <slug> is a human-readable
// identifier unique within the directory"). Case-folding plus NFC
// normalization means "Vega-Run" and "vega-run" are the same slug on a
// case-insensitive filesystem, which `games.slug`'s UNIQUE constraint
// alone would not catch if callers forgot to fold before writing.
func NormalizeSlug(raw string) (string, error) {
	folded := foldCase.String(norm.NFC.String(raw))
	if !slugPattern.MatchString(folded) {
		return "", fmt.Errorf("persistence: invalid slug %q: must match %s", raw, slugPattern.String())
	}
	return folded, nil
}
