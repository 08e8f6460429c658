// Package selector resolves a deployment request's include/exclude
// expression into the concrete set of teams an operation touches.
// Selection failures are fatal for the whole operation and happen
// before any side effect.
package selector

import (
	"fmt"
	"strings"

	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
)

// ParseList splits a comma-separated team list, trimming whitespace and
// discarding empty tokens.
func ParseList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token != "" {
			out = append(out, token)
		}
	}
	return out
}

// Resolve computes the target team subset from the full registry
// snapshot. Include and exclude are mutually exclusive; any name in
// either list that is absent from the registry fails the operation; a
// duplicated include name resolves once; a result of zero teams is
// rejected so "deploy nothing" can never look like success.
func Resolve(teams []models.Team, include, exclude []string) ([]models.Team, error) {
	if len(include) > 0 && len(exclude) > 0 {
		return nil, fmt.Errorf("%w: include and exclude are mutually exclusive", models.ErrValidation)
	}

	byName := make(map[string]models.Team, len(teams))
	names := make([]string, 0, len(teams))
	for _, t := range teams {
		byName[t.Name] = t
		names = append(names, t.Name)
	}

	var result []models.Team
	switch {
	case len(include) > 0:
		seen := make(map[string]bool, len(include))
		for _, name := range include {
			team, ok := byName[name]
			if !ok {
				return nil, &models.UnknownTeamError{Name: name, Valid: names}
			}
			// A repeated name resolves once; one team, one transaction.
			if seen[name] {
				continue
			}
			seen[name] = true
			result = append(result, team)
		}
	case len(exclude) > 0:
		excluded := make(map[string]bool, len(exclude))
		for _, name := range exclude {
			if _, ok := byName[name]; !ok {
				return nil, &models.UnknownTeamError{Name: name, Valid: names}
			}
			excluded[name] = true
		}
		for _, t := range teams {
			if !excluded[t.Name] {
				result = append(result, t)
			}
		}
	default:
		result = teams
	}

	if len(result) == 0 {
		return nil, models.ErrEmptySelection
	}
	return result, nil
}
