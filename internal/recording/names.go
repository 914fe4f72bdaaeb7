package recording

import (
	"fmt"
	"strconv"
	"strings"
)

// Group and dataset name prefixes. The "timestamp_" prefix is historical: the
// suffix is a chunk index, not a time. Downstream readers depend on it.
const (
	GroupPrefix     = "timestamp_"
	ElectrodePrefix = "electrode_"

	// DTypeAttribute names the attribute carrying the sample element type.
	DTypeAttribute = "dtype"
)

// GroupName returns the root-level group name for chunk index i.
func GroupName(i int) string {
	return GroupPrefix + strconv.Itoa(i)
}

// ElectrodeName returns the dataset name for electrode j.
func ElectrodeName(j int) string {
	return ElectrodePrefix + strconv.Itoa(j)
}

// ParseGroupName extracts the chunk index from a "timestamp_<i>" name.
func ParseGroupName(name string) (int, error) {
	return parseIndexed(name, GroupPrefix)
}

// ParseElectrodeName extracts the electrode index from an "electrode_<j>" name.
func ParseElectrodeName(name string) (int, error) {
	return parseIndexed(name, ElectrodePrefix)
}

func parseIndexed(name, prefix string) (int, error) {
	suffix, ok := strings.CutPrefix(name, prefix)
	if !ok || suffix == "" {
		return 0, fmt.Errorf("name %q does not start with %q", name, prefix)
	}
	// Plain decimal only: no sign, no padding.
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("name %q has an invalid index", name)
		}
	}
	if suffix != "0" && strings.HasPrefix(suffix, "0") {
		return 0, fmt.Errorf("name %q has a zero-padded index", name)
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, fmt.Errorf("name %q has an invalid index: %w", name, err)
	}
	return n, nil
}

func datasetPath(index, electrode int) string {
	return "/" + GroupName(index) + "/" + ElectrodeName(electrode)
}
