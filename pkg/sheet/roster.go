package sheet

import (
	"fmt"
	"strings"
)

// Promotion is one career-level transition with its date.
type Promotion struct {
	Level string
	Date  string
}

// Person is one roster row reduced to the lifecycle fields the
// knowledge base cares about.
type Person struct {
	Name            string
	Status          string
	Direction       string
	TeamLead        string
	Position        string
	StartDate       string
	ProbationEnd    string
	ProbationPassed string
	Promotions      []Promotion
	CoreDate        string

	TerminationStatus string
	TerminationReason string
	TerminationDate   string
}

// promotionLevels is the career ladder in ascending order; column names
// follow the "promotion to <level>" convention.
var promotionLevels = []string{"intern", "junior", "middle", "senior"}

// ParsePeople converts a grid into roster entries. The first row of the
// given grid is the header row; header matching is case-insensitive.
// Rows without a name are dropped.
func ParsePeople(grid [][]string) []Person {
	if len(grid) < 2 {
		return nil
	}

	headers := make(map[string]int, len(grid[0]))
	for i, h := range grid[0] {
		headers[strings.ToLower(strings.TrimSpace(h))] = i
	}

	people := make([]Person, 0, len(grid)-1)
	for _, row := range grid[1:] {
		field := func(names ...string) string {
			for _, name := range names {
				if idx, ok := headers[name]; ok && idx < len(row) {
					if v := strings.TrimSpace(row[idx]); v != "" {
						return v
					}
				}
			}
			return ""
		}

		p := Person{
			Name:              field("name"),
			Status:            strings.ToLower(field("status")),
			Direction:         field("direction"),
			TeamLead:          field("team lead", "teamlead"),
			Position:          field("current position", "position"),
			StartDate:         field("start date", "probation start"),
			ProbationEnd:      field("probation end"),
			ProbationPassed:   field("probation passed"),
			CoreDate:          field("moved to core"),
			TerminationStatus: field("termination"),
			TerminationReason: field("termination reason"),
			TerminationDate:   field("termination date", "contract end date"),
		}
		if p.Name == "" {
			continue
		}

		for _, level := range promotionLevels {
			if date := field("promotion to " + level); date != "" {
				p.Promotions = append(p.Promotions, Promotion{Level: level, Date: date})
			}
		}

		people = append(people, p)
	}

	return people
}

// KnowledgeLines renders the roster as bulleted plain text, one block
// per person. Fields without a value are omitted.
func KnowledgeLines(people []Person) []string {
	var lines []string

	for _, p := range people {
		lines = append(lines, "- Person: "+p.Name)
		if p.Position != "" {
			lines = append(lines, "  - Current position: "+p.Position)
		}
		if p.Direction != "" {
			lines = append(lines, "  - Direction: "+p.Direction)
		}
		if p.TeamLead != "" {
			lines = append(lines, "  - Team lead: "+p.TeamLead)
		}
		if p.StartDate != "" {
			lines = append(lines, "  - Start date: "+p.StartDate)
		}
		if p.ProbationEnd != "" {
			passed := p.ProbationPassed
			if passed == "" {
				passed = "unknown"
			}
			lines = append(lines, fmt.Sprintf("  - Probation end: %s (passed: %s)", p.ProbationEnd, passed))
		}
		if len(p.Promotions) > 0 {
			lines = append(lines, "  - Promotions:")
			for _, pr := range p.Promotions {
				lines = append(lines, fmt.Sprintf("    - %s: %s", pr.Level, pr.Date))
			}
		}
		if p.CoreDate != "" {
			lines = append(lines, "  - Moved to Core: "+p.CoreDate)
		}
		if p.TerminationStatus != "" {
			lines = append(lines, "  - Termination:")
			if p.TerminationDate != "" {
				lines = append(lines, "    - date: "+p.TerminationDate)
			}
			if p.TerminationReason != "" {
				lines = append(lines, "    - reason: "+p.TerminationReason)
			}
		}
		lines = append(lines, "")
	}

	return lines
}
