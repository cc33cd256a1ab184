package config

import (
	"fmt"
	"strconv"
	"strings"
)

// FacilitySeed is one facility given to the memory backend.
type FacilitySeed struct {
	ID       string
	Name     string
	Capacity int
}

// ParseFacilitySeeds parses "id:capacity[:name],..." as used by
// MEMORY_FACILITIES, for example "gym:12:Fitness room,court-1:1".
func ParseFacilitySeeds(s string) ([]FacilitySeed, error) {
	var out []FacilitySeed
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, ":", 3)
		if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf("facility %q: want id:capacity[:name]", item)
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("facility %q: capacity must be a positive integer", item)
		}
		seed := FacilitySeed{ID: strings.TrimSpace(parts[0]), Capacity: n}
		seed.Name = seed.ID
		if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
			seed.Name = strings.TrimSpace(parts[2])
		}
		out = append(out, seed)
	}
	return out, nil
}
