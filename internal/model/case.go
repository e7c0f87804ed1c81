package model

import (
	"fmt"
	"strings"
)

type FactStatus string

const (
	FactStatusConfirmed FactStatus = "confirmed"
	FactStatusDisputed  FactStatus = "disputed"
	FactStatusAssumed   FactStatus = "assumed"
)

// ParseFactStatus normalizes s. Empty input means the fact was not verified and maps to assumed.
func ParseFactStatus(s string) (FactStatus, error) {
	switch FactStatus(strings.ToLower(strings.TrimSpace(s))) {
	case "", FactStatusAssumed:
		return FactStatusAssumed, nil
	case FactStatusConfirmed:
		return FactStatusConfirmed, nil
	case FactStatusDisputed:
		return FactStatusDisputed, nil
	default:
		return "", fmt.Errorf("unknown fact status %q", s)
	}
}

type PartyRole string

const (
	PartyRolePlaintiff PartyRole = "plaintiff"
	PartyRoleDefendant PartyRole = "defendant"
	PartyRoleWitness   PartyRole = "witness"
	PartyRoleOther     PartyRole = "other"
)

// ParsePartyRole normalizes s. Empty input maps to other.
func ParsePartyRole(s string) (PartyRole, error) {
	switch PartyRole(strings.ToLower(strings.TrimSpace(s))) {
	case "", PartyRoleOther:
		return PartyRoleOther, nil
	case PartyRolePlaintiff:
		return PartyRolePlaintiff, nil
	case PartyRoleDefendant:
		return PartyRoleDefendant, nil
	case PartyRoleWitness:
		return PartyRoleWitness, nil
	default:
		return "", fmt.Errorf("unknown party role %q", s)
	}
}

type Fact struct {
	Content string     `json:"content"`
	Source  string     `json:"source"`
	Status  FactStatus `json:"status"`
}

type Evidence struct {
	Description string  `json:"description"`
	Type        string  `json:"type"`
	Relevance   *string `json:"relevance,omitempty"`
}

type Party struct {
	Name        string    `json:"name"`
	Role        PartyRole `json:"role"`
	Description *string   `json:"description,omitempty"`
}

// CaseState is the case record a session accumulates across turns.
//
// Facts, Evidence and Parties only grow. The one permitted in-place change is a fact
// moving from assumed to confirmed or disputed. MissingInfo is replaced wholesale by
// every gap analysis.
type CaseState struct {
	Summary        string     `json:"summary"`
	Topic          string     `json:"topic,omitempty"`
	Jurisdiction   string     `json:"jurisdiction,omitempty"`
	Facts          []Fact     `json:"facts"`
	Evidence       []Evidence `json:"evidence"`
	Parties        []Party    `json:"parties"`
	MissingInfo    []string   `json:"missing_info"`
	Classification *string    `json:"classification,omitempty"`
}

func NewCaseState() *CaseState {
	return &CaseState{
		Facts:       []Fact{},
		Evidence:    []Evidence{},
		Parties:     []Party{},
		MissingInfo: []string{},
	}
}

// Clone returns a deep copy. Stages work on clones and hand them back, so an abandoned
// call can never leave a half-merged state behind.
func (s *CaseState) Clone() *CaseState {
	if s == nil {
		return NewCaseState()
	}

	out := &CaseState{
		Summary:      s.Summary,
		Topic:        s.Topic,
		Jurisdiction: s.Jurisdiction,
		Facts:        append([]Fact{}, s.Facts...),
		Evidence:     make([]Evidence, len(s.Evidence)),
		Parties:      make([]Party, len(s.Parties)),
		MissingInfo:  append([]string{}, s.MissingInfo...),
	}
	for i, e := range s.Evidence {
		e.Relevance = clonePtr(e.Relevance)
		out.Evidence[i] = e
	}
	for i, p := range s.Parties {
		p.Description = clonePtr(p.Description)
		out.Parties[i] = p
	}
	out.Classification = clonePtr(s.Classification)
	return out
}

// AppendFact adds f, or upgrades an existing assumed fact with the same content when f
// carries a verified status. Returns true when a status transition happened.
func (s *CaseState) AppendFact(f Fact) bool {
	if f.Status == "" {
		f.Status = FactStatusAssumed
	}

	if f.Status != FactStatusAssumed {
		key := normalizeContent(f.Content)
		for i := range s.Facts {
			existing := &s.Facts[i]
			if existing.Status == FactStatusAssumed && normalizeContent(existing.Content) == key {
				existing.Status = f.Status
				return true
			}
		}
	}

	s.Facts = append(s.Facts, f)
	return false
}

func (s *CaseState) AppendEvidence(e Evidence) {
	s.Evidence = append(s.Evidence, e)
}

func (s *CaseState) AppendParty(p Party) {
	if p.Role == "" {
		p.Role = PartyRoleOther
	}
	s.Parties = append(s.Parties, p)
}

// ReplaceMissingInfo discards the previous gap list.
func (s *CaseState) ReplaceMissingInfo(items []string) {
	s.MissingInfo = append([]string{}, items...)
}

func (s *CaseState) IsEmpty() bool {
	return s == nil || (s.Summary == "" && s.Topic == "" && len(s.Facts) == 0 &&
		len(s.Evidence) == 0 && len(s.Parties) == 0)
}

// Render formats the state as plain text for use as drafting context.
func (s *CaseState) Render() string {
	if s.IsEmpty() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Case File\n")
	if s.Topic != "" {
		fmt.Fprintf(&sb, "Topic: %s\n", s.Topic)
	}
	if s.Classification != nil && *s.Classification != "" {
		fmt.Fprintf(&sb, "Classification: %s\n", *s.Classification)
	}
	if s.Jurisdiction != "" {
		fmt.Fprintf(&sb, "Jurisdiction: %s\n", s.Jurisdiction)
	}
	if s.Summary != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", s.Summary)
	}

	if len(s.Parties) > 0 {
		sb.WriteString("\n### Parties\n")
		for _, p := range s.Parties {
			fmt.Fprintf(&sb, "- %s (%s)", p.Name, p.Role)
			if p.Description != nil && *p.Description != "" {
				fmt.Fprintf(&sb, ": %s", *p.Description)
			}
			sb.WriteString("\n")
		}
	}

	if len(s.Facts) > 0 {
		sb.WriteString("\n### Facts\n")
		for _, f := range s.Facts {
			fmt.Fprintf(&sb, "- [%s] %s", f.Status, f.Content)
			if f.Source != "" {
				fmt.Fprintf(&sb, " (source: %s)", f.Source)
			}
			sb.WriteString("\n")
		}
	}

	if len(s.Evidence) > 0 {
		sb.WriteString("\n### Evidence\n")
		for _, e := range s.Evidence {
			fmt.Fprintf(&sb, "- %s [%s]", e.Description, e.Type)
			if e.Relevance != nil && *e.Relevance != "" {
				fmt.Fprintf(&sb, ": %s", *e.Relevance)
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func normalizeContent(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
