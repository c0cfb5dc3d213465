package intake

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/extract"
)

//go:embed flows.yaml
var defaultFlowsYAML []byte

// maxFollowUps is the number of category follow-up steps a flow can use.
const maxFollowUps = 2

// FollowUp is a category-specific question asked after evidence review.
type FollowUp struct {
	// Field names where the answer is stored: an extracted field, the
	// additionalDetails field, or a free-form answer key.
	Field        string `yaml:"field"`
	Prompt       string `yaml:"prompt"`
	OfferReasons bool   `yaml:"offer_reasons"`
}

// Category is one claim type a flow offers.
type Category struct {
	Value domain.ClaimType `yaml:"value"`
	Label string           `yaml:"label"`

	// Line is the protection line (shipping or product) the category
	// belongs to. Keyword inference maps onto categories through it.
	Line           domain.ClaimType `yaml:"line"`
	Intro          string           `yaml:"intro"`
	Questions      []string         `yaml:"questions"`
	EvidencePrompt string           `yaml:"evidence_prompt"`
	AcceptedMedia  []string         `yaml:"accepted_media"`
	Reasons        []string         `yaml:"reasons"`
	RequiredFields []string         `yaml:"required_fields"`
	FollowUps      []FollowUp       `yaml:"follow_ups"`
}

// Flow configures the presentation of the intake state machine: the
// category set, prompts, and which optional steps run.
type Flow struct {
	Name            string     `yaml:"name"`
	Title           string     `yaml:"title"`
	Greeting        string     `yaml:"greeting"`
	GreetingOptions []Option   `yaml:"greeting_options"`
	HelpText        string     `yaml:"help_text"`
	StatusPrompt    string     `yaml:"status_prompt"`
	ChoosePrompt    string     `yaml:"choose_prompt"`
	CollectFreeform bool       `yaml:"collect_freeform"`
	FreeformPrompt  string     `yaml:"freeform_prompt"`
	Extractors      []string   `yaml:"extractors"`
	NotesField      string     `yaml:"notes_field"`
	NotesPrompt     string     `yaml:"notes_prompt"`
	Categories      []Category `yaml:"categories"`

	strategies []extract.Strategy
}

type flowFile struct {
	Flows []*Flow `yaml:"flows"`
}

// Flows indexes configured flows by name.
type Flows map[string]*Flow

// DefaultFlows returns the built-in protection and assistant flows.
func DefaultFlows() (Flows, error) {
	return ParseFlows(defaultFlowsYAML)
}

// LoadFlows reads flow definitions from a YAML file.
func LoadFlows(path string) (Flows, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flows %s: %w", path, err)
	}
	return ParseFlows(data)
}

// ParseFlows decodes and validates flow definitions.
func ParseFlows(data []byte) (Flows, error) {
	var file flowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse flows: %w", err)
	}
	if len(file.Flows) == 0 {
		return nil, fmt.Errorf("parse flows: no flows defined")
	}

	flows := make(Flows, len(file.Flows))
	for _, f := range file.Flows {
		if err := f.validate(); err != nil {
			return nil, err
		}
		if _, dup := flows[f.Name]; dup {
			return nil, fmt.Errorf("flow %q defined twice", f.Name)
		}
		flows[f.Name] = f
	}
	return flows, nil
}

func (f *Flow) validate() error {
	if f.Name == "" {
		return fmt.Errorf("flow without name")
	}
	if len(f.Categories) == 0 {
		return fmt.Errorf("flow %q: no categories", f.Name)
	}

	seen := make(map[domain.ClaimType]bool)
	for _, c := range f.Categories {
		if c.Value == "" || c.Label == "" {
			return fmt.Errorf("flow %q: category needs value and label", f.Name)
		}
		if seen[c.Value] {
			return fmt.Errorf("flow %q: duplicate category %q", f.Name, c.Value)
		}
		seen[c.Value] = true
		if c.Line != domain.ClaimTypeShipping && c.Line != domain.ClaimTypeProduct {
			return fmt.Errorf("flow %q: category %q has invalid line %q", f.Name, c.Value, c.Line)
		}
		if len(c.FollowUps) > maxFollowUps {
			return fmt.Errorf("flow %q: category %q has more than %d follow-ups", f.Name, c.Value, maxFollowUps)
		}
		for _, fu := range c.FollowUps {
			if fu.Field == "" || fu.Prompt == "" {
				return fmt.Errorf("flow %q: category %q follow-up needs field and prompt", f.Name, c.Value)
			}
		}
	}

	if len(f.Extractors) == 0 {
		f.Extractors = []string{"invoice"}
	}
	f.strategies = f.strategies[:0]
	for _, name := range f.Extractors {
		s, ok := extract.Lookup(name)
		if !ok {
			return fmt.Errorf("flow %q: unknown extractor %q", f.Name, name)
		}
		f.strategies = append(f.strategies, s)
	}

	if f.NotesPrompt != "" && f.NotesField == "" {
		f.NotesField = "additionalDetails"
	}
	return nil
}

// Category returns the category with the given value.
func (f *Flow) Category(value domain.ClaimType) (*Category, bool) {
	for i := range f.Categories {
		if f.Categories[i].Value == value {
			return &f.Categories[i], true
		}
	}
	return nil, false
}

// MatchCategory finds a category by value or label, ignoring case.
func (f *Flow) MatchCategory(text string) (*Category, bool) {
	text = strings.TrimSpace(text)
	for i := range f.Categories {
		c := &f.Categories[i]
		if strings.EqualFold(string(c.Value), text) || strings.EqualFold(c.Label, text) {
			return c, true
		}
	}
	return nil, false
}

// CategoryForLine returns the first category on the given protection line.
func (f *Flow) CategoryForLine(line domain.ClaimType) (*Category, bool) {
	for i := range f.Categories {
		if f.Categories[i].Line == line {
			return &f.Categories[i], true
		}
	}
	return nil, false
}

// CategoryOptions renders the categories as selectable options.
func (f *Flow) CategoryOptions() []Option {
	opts := make([]Option, 0, len(f.Categories))
	for _, c := range f.Categories {
		opts = append(opts, Option{Label: c.Label, Value: string(c.Value)})
	}
	return opts
}

// Extract runs the flow's extraction strategies over text.
func (f *Flow) Extract(text string) domain.ExtractedFields {
	return extract.Run(text, f.strategies...)
}

// Accepts reports whether contentType may be uploaded for the category.
// Categories without a media list accept anything the service accepts.
func (c *Category) Accepts(contentType string) bool {
	if len(c.AcceptedMedia) == 0 {
		return true
	}
	for _, m := range c.AcceptedMedia {
		if strings.EqualFold(m, contentType) {
			return true
		}
	}
	return false
}

// step returns the prompt configured for an optional freeform step, if any.
func (f *Flow) step(c *Category, s Step) (FollowUp, bool) {
	switch s {
	case StepDetails, StepFollowUp:
		idx := int(s - StepDetails)
		if c != nil && idx < len(c.FollowUps) {
			return c.FollowUps[idx], true
		}
	case StepNotes:
		if f.NotesPrompt != "" {
			return FollowUp{Field: f.NotesField, Prompt: f.NotesPrompt}, true
		}
	}
	return FollowUp{}, false
}
