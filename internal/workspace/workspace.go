package workspace

// Entry is one batch-evaluation case: a rendered capture with its
// optional reference image and diagram source.
type Entry struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Capture   string `json:"capture" yaml:"capture"` // rendered capture image path
	Reference string `json:"reference,omitempty" yaml:"reference,omitempty"`
	Source    string `json:"source,omitempty" yaml:"source,omitempty"` // diagram source path
}

// Suite is a batch manifest: the list of captures to score in one run.
type Suite struct {
	Entries []Entry `json:"entries" yaml:"entries"`
}
