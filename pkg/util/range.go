package util

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Valid 802.1Q VLAN ids. 0 and 4095 are reserved.
const (
	MinVLANID = 1
	MaxVLANID = 4094
)

// ValidateVLANID checks if a VLAN ID is in the usable range
func ValidateVLANID(id int) error {
	if id < MinVLANID || id > MaxVLANID {
		return NewValidationError(fmt.Sprintf("VLAN ID %d out of range (%d-%d)", id, MinVLANID, MaxVLANID))
	}
	return nil
}

// ParseVLANID parses and validates a single VLAN id.
func ParseVLANID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, NewValidationError(fmt.Sprintf("invalid VLAN ID %q", s))
	}
	if err := ValidateVLANID(id); err != nil {
		return 0, err
	}
	return id, nil
}

// ExpandRange expands a range string like "1-5,10,20-22" into a sorted
// slice of unique integers.
func ExpandRange(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := strconv.Atoi(strings.TrimSpace(lo))
			if err != nil {
				return nil, fmt.Errorf("invalid range start %q: %w", lo, err)
			}
			end, err := strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("invalid range end %q: %w", hi, err)
			}
			if start > end {
				return nil, fmt.Errorf("invalid range %q: start > end", part)
			}
			for i := start; i <= end; i++ {
				seen[i] = true
			}
		} else {
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q: %w", part, err)
			}
			seen[n] = true
		}
	}

	result := make([]int, 0, len(seen))
	for n := range seen {
		result = append(result, n)
	}
	sort.Ints(result)
	return result, nil
}

// CompactRange converts a slice of integers into a compact range string.
// Example: [1, 2, 3, 5, 10, 11, 12] -> "1-3,5,10-12"
func CompactRange(nums []int) string {
	if len(nums) == 0 {
		return ""
	}

	sorted := make([]int, len(nums))
	copy(sorted, nums)
	sort.Ints(sorted)

	var parts []string
	start, end := sorted[0], sorted[0]
	flush := func() {
		if start == end {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, end))
		}
	}
	for _, n := range sorted[1:] {
		switch {
		case n == end:
		case n == end+1:
			end = n
		default:
			flush()
			start, end = n, n
		}
	}
	flush()
	return strings.Join(parts, ",")
}

// ExpandVLANRange expands a VLAN list and validates every id.
func ExpandVLANRange(s string) ([]int, error) {
	vlans, err := ExpandRange(s)
	if err != nil {
		return nil, NewValidationError(err.Error())
	}
	if len(vlans) == 0 {
		return nil, NewValidationError("empty VLAN list")
	}
	for _, v := range vlans {
		if err := ValidateVLANID(v); err != nil {
			return nil, err
		}
	}
	return vlans, nil
}
