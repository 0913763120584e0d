// Package types holds document types shared between packages.
package types

// Runbook is a remediation guide for findings raised by scenarios. It
// applies to a finding when the finding's type or origin is listed.
type Runbook struct {
	// Name is the title of the runbook.
	Name string `yaml:"name" json:"name"`
	// Description is a one sentence summary.
	Description string `yaml:"description" json:"description"`
	// IssueTypes are raised types the runbook covers, e.g. OpenvSwitchWarning.
	IssueTypes []string `yaml:"issue_types,omitempty" json:"issue_types,omitempty"`
	// Origins are finding origins the runbook covers, e.g. openvswitch.logs.
	Origins []string `yaml:"origins,omitempty" json:"origins,omitempty"`
	Tags    []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	// Content is the markdown body (not from frontmatter).
	Content string `yaml:"-" json:"content"`
	// FilePath is the source file for debugging.
	FilePath string `yaml:"-" json:"file_path"`
}

// Covers reports whether the runbook applies to a finding.
func (r *Runbook) Covers(issueType, origin string) bool {
	for _, o := range r.Origins {
		if o == origin {
			return true
		}
	}

	for _, t := range r.IssueTypes {
		if t == issueType {
			return true
		}
	}

	return false
}
