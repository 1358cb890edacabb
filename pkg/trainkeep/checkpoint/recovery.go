package checkpoint

import (
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// FindRecovery returns the first recovery file in dir named
// <prefix>*<Extension>, or "" if there is none.
//
// Files named <prefix>-<epoch>-<batch><Extension> are ordered by
// (epoch, batch) numerically, so recovery-9-0 precedes recovery-10-0.
// Any other matching names follow them in lexicographic order.
func FindRecovery(store FileStore, dir, prefix string) (string, error) {
	matches, err := store.Glob(GlobEscape(filepath.Join(dir, prefix)) + "*" + Extension)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}

	slices.SortFunc(matches, func(a, b string) int {
		return compareRecoveryNames(a, b, prefix)
	})
	return matches[0], nil
}

// recoveryPosition is the (epoch, batch) parsed from a recovery file name.
type recoveryPosition struct {
	epoch, batch int
}

// parseRecoveryName extracts the position from <prefix>-<epoch>-<batch><Extension>.
func parseRecoveryName(path, prefix string) (recoveryPosition, bool) {
	name := strings.TrimSuffix(filepath.Base(path), Extension)
	rest, ok := strings.CutPrefix(name, prefix+"-")
	if !ok {
		return recoveryPosition{}, false
	}

	epochStr, batchStr, ok := strings.Cut(rest, "-")
	if !ok {
		return recoveryPosition{}, false
	}
	epoch, err := strconv.Atoi(epochStr)
	if err != nil || epoch < 0 {
		return recoveryPosition{}, false
	}
	batch, err := strconv.Atoi(batchStr)
	if err != nil || batch < 0 {
		return recoveryPosition{}, false
	}
	return recoveryPosition{epoch: epoch, batch: batch}, true
}

func compareRecoveryNames(a, b, prefix string) int {
	pa, okA := parseRecoveryName(a, prefix)
	pb, okB := parseRecoveryName(b, prefix)

	switch {
	case okA && okB:
		if pa.epoch != pb.epoch {
			return pa.epoch - pb.epoch
		}
		if pa.batch != pb.batch {
			return pa.batch - pb.batch
		}
	case okA:
		return -1
	case okB:
		return 1
	}
	return strings.Compare(a, b)
}
