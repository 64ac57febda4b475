package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parseEpochList parses a comma-separated epoch list like "3,4,5".
func parseEpochList(raw string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid epochs format %q: use comma-separated integers (e.g. '3,4,5')", raw)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("invalid epochs format %q: use comma-separated integers (e.g. '3,4,5')", raw)
	}
	return out, nil
}
