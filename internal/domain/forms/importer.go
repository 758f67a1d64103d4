package forms

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// DecodeFormDefinitions reads one or more YAML documents, each describing a
// form with its questions, options and score rules:
//
//	title: PHQ-9 screening
//	is_screening: true
//	questions:
//	  - text: Little interest or pleasure in doing things?
//	    kind: SINGLE_CHOICE
//	    options:
//	      - {text: Never, value: 0}
//	      - {text: Sometimes, value: 1}
//	score_rules:
//	  - {min_score: 0, max_score: 4, classification: Minimal, conduct: Reassess in a year}
func DecodeFormDefinitions(r io.Reader) ([]FormInput, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var out []FormInput
	for {
		var in FormInput
		err := dec.Decode(&in)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode form definition %d: %w", len(out)+1, err)
		}
		// An empty document, such as one after a trailing "---", carries no form.
		if in.isEmpty() {
			continue
		}
		out = append(out, in)
	}
	if len(out) == 0 {
		return nil, errors.New("no form definitions found")
	}
	return out, nil
}

// ImportForms creates every form in r inside one transaction, so a bad
// document leaves nothing behind.
func (s *Service) ImportForms(ctx context.Context, r io.Reader) ([]*Form, error) {
	defs, err := DecodeFormDefinitions(r)
	if err != nil {
		return nil, err
	}

	var created []*Form
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		for i, def := range defs {
			f, err := s.CreateForm(ctx, def)
			if err != nil {
				return fmt.Errorf("form %d (%q): %w", i+1, def.Title, err)
			}
			created = append(created, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
