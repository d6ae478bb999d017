package records

import "strings"

// NoMatch is written in place of every MatchResult field when the matcher has
// no answer. Downstream commands key on this value, never on empty strings.
const NoMatch = "No Match"

// WorkflowApproved marks the authoritative record within a duplicate group.
const WorkflowApproved = "Approved"

// Header lists the enriched CSV columns in order.
var Header = []string{
	"Pure API name",
	"Pure UUID",
	"Workflow Step",
	"Score",
	"ROR ID",
	"ROR Name",
	"Substring",
	"Chosen",
	"Matching Type",
}

// Column names used when reading enriched and input files.
const (
	ColumnName         = "Pure API name"
	ColumnUUID         = "Pure UUID"
	ColumnWorkflowStep = "Workflow Step"
	ColumnScore        = "Score"
	ColumnRORID        = "ROR ID"
	ColumnRORName      = "ROR Name"
	ColumnSubstring    = "Substring"
	ColumnChosen       = "Chosen"
	ColumnMatchingType = "Matching Type"

	InputColumnName         = "Name"
	InputColumnUUID         = "UUID"
	InputColumnWorkflowStep = "Current workflow step"
)

// Organization is one registry record as seen by the enrichment pipeline.
type Organization struct {
	Name         string
	UUID         string
	WorkflowStep string
}

// MatchResult is the best matcher candidate for an organization name. Every
// field is either the matcher's value rendered as text or NoMatch.
type MatchResult struct {
	Score        string
	RORID        string
	RORName      string
	Substring    string
	Chosen       string
	MatchingType string
}

// NoMatchResult returns the all-sentinel result.
func NoMatchResult() MatchResult {
	return MatchResult{
		Score:        NoMatch,
		RORID:        NoMatch,
		RORName:      NoMatch,
		Substring:    NoMatch,
		Chosen:       NoMatch,
		MatchingType: NoMatch,
	}
}

// Matched reports whether the result carries a canonical identifier.
func (m MatchResult) Matched() bool {
	return IsResolvedID(m.RORID)
}

// EnrichedRow is the CSV interchange record between the exporters and the
// merge and write-back commands.
type EnrichedRow struct {
	Organization
	MatchResult
}

// Approved reports whether the row's workflow step designates the merge target.
func (r EnrichedRow) Approved() bool {
	return strings.TrimSpace(r.WorkflowStep) == WorkflowApproved
}

// Fields renders the row in Header order.
func (r EnrichedRow) Fields() []string {
	return []string{
		r.Name,
		r.UUID,
		r.WorkflowStep,
		r.Score,
		r.RORID,
		r.RORName,
		r.Substring,
		r.Chosen,
		r.MatchingType,
	}
}

// IsResolvedID reports whether id is a usable canonical identifier, i.e. not
// blank and not the sentinel.
func IsResolvedID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && id != NoMatch
}
